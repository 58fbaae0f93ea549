// Package session implements the per-connection key-exchange handshake and
// transparent encrypt/decrypt of eligible packets described in spec.md §4.3.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/chatrelay/relayd/internal/wire"
)

// hkdfInfo is the domain-separation string for session-key derivation,
// mirroring the teacher's pkg/protocol/x3dh.go use of a named info string
// with HKDF.
const hkdfInfo = "chatrelay session v1"

// ErrSecurityViolation is returned by DecryptIncoming on replay or tamper.
var ErrSecurityViolation = errors.New("session: security violation")

// ErrNoSession is returned when an operation requires an established
// session that does not exist for the channel.
var ErrNoSession = errors.New("session: no established session")

// ChannelID identifies a connection to the encryption service. The
// connection manager owns the mapping from its own connections to
// ChannelIDs.
type ChannelID uint64

type pendingExchange struct {
	private [32]byte
}

type established struct {
	mu       sync.Mutex
	cipher   Cipher
	sendSeq  uint64
	recvSeq  uint64 // highest sequence number accepted so far
	recvSeen bool
}

// CipherFactory builds a Cipher from a derived session key. Swap this for
// NewPlaceholderCipher to run without a real AEAD (see §4.3: "must run even
// when the concrete crypto is a placeholder").
type CipherFactory func(key []byte) (Cipher, error)

// Service is the per-server encryption service: one instance serves every
// connection, keyed by the caller-assigned ChannelID.
type Service struct {
	newCipher CipherFactory

	mu       sync.Mutex
	pending  map[ChannelID]*pendingExchange
	sessions map[ChannelID]*established
}

// NewService builds a Service using factory to construct ciphers from
// derived session keys. Pass a factory wrapping NewRealCipher for
// production use.
func NewService(factory CipherFactory) *Service {
	return &Service{
		newCipher: factory,
		pending:   make(map[ChannelID]*pendingExchange),
		sessions:  make(map[ChannelID]*established),
	}
}

// InitiateKeyExchange generates an ephemeral X25519 key pair for channel,
// stores the private half, and returns the SERVER_KEY_EXCHANGE packet
// carrying the public half (§4.3/§6 step 1).
func (s *Service) InitiateKeyExchange(channel ChannelID) (*wire.Packet, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending[channel] = &pendingExchange{private: priv}
	s.mu.Unlock()

	msg := &wire.ProtocolMessage{
		Type: wire.TypeServerKeyExchange,
		Body: &wire.ServerKeyExchange{PublicKey: pub},
	}
	return wire.Encode(msg), nil
}

// IsKeyExchangePending reports whether channel is awaiting a
// SERVER_KEY_EXCHANGE_RESPONSE.
func (s *Service) IsKeyExchangePending(channel ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[channel]
	return ok
}

// HandleKeyExchangeResponse derives the shared session key from the stored
// private half and the client's public key, and establishes the session.
// It returns false on any cryptographic failure; the caller must close the
// connection in that case (§4.3).
func (s *Service) HandleKeyExchangeResponse(channel ChannelID, clientPublicKey []byte) bool {
	s.mu.Lock()
	pend, ok := s.pending[channel]
	s.mu.Unlock()
	if !ok || len(clientPublicKey) != 32 {
		return false
	}

	shared, err := curve25519.X25519(pend.private[:], clientPublicKey)
	if err != nil {
		return false
	}

	key, err := DeriveSessionKey(shared)
	if err != nil {
		return false
	}

	c, err := s.newCipher(key)
	if err != nil {
		return false
	}

	s.mu.Lock()
	delete(s.pending, channel)
	s.sessions[channel] = &established{cipher: c}
	s.mu.Unlock()
	return true
}

// DeriveSessionKey derives the 32-byte session key used by both the real
// and placeholder ciphers from an X25519 shared secret. Exported so a test
// or client implementation simulating the handshake's far side can derive
// the same key the service does.
func DeriveSessionKey(shared []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ShouldEncrypt reports whether packets of type t must be encrypted before
// hitting the wire: everything except the connection-level and
// application-level handshake tags (§4.3).
func ShouldEncrypt(t wire.MessageType) bool {
	return !t.IsHandshake()
}

// EncryptOutgoing wraps msg's encoded payload in an ENCRYPTED packet,
// preserving msg.From/msg.To in the clear so routing still works (§4.3/§9).
func (s *Service) EncryptOutgoing(channel ChannelID, msg *wire.ProtocolMessage) (*wire.Packet, error) {
	sess, ok := s.session(channel)
	if !ok {
		return nil, ErrNoSession
	}

	plainPkt := wire.Encode(msg)
	nonce, err := randomNonce(sess.cipher.NonceSize())
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	seq := sess.sendSeq
	sess.sendSeq++
	sess.mu.Unlock()

	ciphertext := sess.cipher.Seal(nil, nonce, plainPkt.Payload, nil)

	wrapper := &wire.EncryptedWrapper{
		InnerType:  msg.Type,
		Sequence:   seq,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	outer := &wire.ProtocolMessage{
		From: msg.From,
		To:   msg.To,
		Type: wire.TypeEncrypted,
		Body: wrapper,
	}
	return wire.Encode(outer), nil
}

// DecryptIncoming verifies and unwraps an ENCRYPTED packet, enforcing a
// strictly-increasing per-direction sequence number for replay defense
// (§4.3/§9). On replay or tamper it returns ErrSecurityViolation; the
// caller must close the connection.
func (s *Service) DecryptIncoming(channel ChannelID, outer *wire.Packet) (*wire.ProtocolMessage, error) {
	sess, ok := s.session(channel)
	if !ok {
		return nil, ErrNoSession
	}

	outerMsg, err := wire.Decode(outer)
	if err != nil {
		return nil, err
	}
	wrapper, ok := outerMsg.Body.(*wire.EncryptedWrapper)
	if !ok {
		return nil, ErrSecurityViolation
	}

	sess.mu.Lock()
	if sess.recvSeen && wrapper.Sequence <= sess.recvSeq {
		sess.mu.Unlock()
		return nil, ErrSecurityViolation
	}
	sess.mu.Unlock()

	plaintext, err := sess.cipher.Open(nil, wrapper.Nonce, wrapper.Ciphertext, nil)
	if err != nil {
		return nil, ErrSecurityViolation
	}

	sess.mu.Lock()
	sess.recvSeq = wrapper.Sequence
	sess.recvSeen = true
	sess.mu.Unlock()

	innerPkt := &wire.Packet{
		Header: wire.Header{
			Length: uint32(len(plaintext)),
			Type:   wrapper.InnerType,
			From:   outer.Header.From,
			To:     outer.Header.To,
		},
		Payload: plaintext,
	}
	return wire.Decode(innerPkt)
}

// OnConnectionClosed drops all ephemeral and session material for channel.
func (s *Service) OnConnectionClosed(channel ChannelID) {
	s.mu.Lock()
	delete(s.pending, channel)
	delete(s.sessions, channel)
	s.mu.Unlock()
}

func (s *Service) session(channel ChannelID) (*established, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[channel]
	return sess, ok
}

// Established reports whether channel completed its handshake.
func (s *Service) Established(channel ChannelID) bool {
	_, ok := s.session(channel)
	return ok
}
