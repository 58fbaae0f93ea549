package session

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher is the pluggable AEAD contract §4.3 requires: the service must
// keep working when the concrete cipher is a placeholder, provided it is
// swappable for a real AEAD. crypto/cipher.AEAD already has exactly this
// shape, so real ciphers satisfy Cipher with no adapter.
type Cipher = cipher.AEAD

// NewRealCipher builds the production AEAD: ChaCha20-Poly1305 keyed by a
// 32-byte session key, per SPEC_FULL §11 (substituting the teacher's
// AES-GCM precedent in pkg/network/session_manager.go with the same
// golang.org/x/crypto family already in the teacher's go.mod).
func NewRealCipher(key []byte) (Cipher, error) {
	return chacha20poly1305.New(key)
}

// NewPlaceholderCipher builds a trivial XOR-keystream cipher usable when no
// real AEAD is configured. It satisfies the Cipher interface but provides
// no authentication; Open always succeeds for same-length input, so the
// session's sequence-counter check is the only replay defense it gets.
func NewPlaceholderCipher(key []byte) Cipher {
	return xorCipher{key: key}
}

type xorCipher struct {
	key []byte
}

func (x xorCipher) NonceSize() int { return 12 }
func (x xorCipher) Overhead() int  { return 0 }

func (x xorCipher) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	out := make([]byte, len(plaintext))
	x.xor(nonce, plaintext, out)
	return append(dst, out...)
}

func (x xorCipher) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	out := make([]byte, len(ciphertext))
	x.xor(nonce, ciphertext, out)
	return append(dst, out...), nil
}

func (x xorCipher) xor(nonce, in, out []byte) {
	for i := range in {
		out[i] = in[i] ^ x.key[i%len(x.key)] ^ nonce[i%len(nonce)]
	}
}

var errShortRandom = errors.New("session: short random read")

func randomNonce(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, errShortRandom
	}
	return buf, nil
}
