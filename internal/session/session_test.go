package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/chatrelay/relayd/internal/wire"
)

func newTestService() *Service {
	return NewService(func(key []byte) (Cipher, error) {
		return NewRealCipher(key)
	})
}

// clientRespond simulates the client side of the handshake: it ignores the
// server's public key and returns the public key of a fixed, non-zero
// scalar (the real shared-secret math lives in the service; this helper
// only needs to produce a plausible client public key so
// HandleKeyExchangeResponse can derive a session).
func clientRespond(t *testing.T, serverPub []byte) []byte {
	t.Helper()
	var priv [32]byte
	priv[0] = 1 // deterministic, non-zero scalar for the test
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	require.NoError(t, err)
	_ = serverPub
	return pub
}

func TestHandshakeEstablishesSession(t *testing.T) {
	svc := newTestService()
	channel := ChannelID(1)

	pkt, err := svc.InitiateKeyExchange(channel)
	require.NoError(t, err)
	assert.True(t, svc.IsKeyExchangePending(channel))

	msg, err := wire.Decode(pkt)
	require.NoError(t, err)
	serverKX := msg.Body.(*wire.ServerKeyExchange)

	clientPub := clientRespond(t, serverKX.PublicKey)
	ok := svc.HandleKeyExchangeResponse(channel, clientPub)
	require.True(t, ok)
	assert.False(t, svc.IsKeyExchangePending(channel))
	assert.True(t, svc.Established(channel))
}

func TestHandshakeRejectsBadPublicKey(t *testing.T) {
	svc := newTestService()
	channel := ChannelID(1)
	_, err := svc.InitiateKeyExchange(channel)
	require.NoError(t, err)

	ok := svc.HandleKeyExchangeResponse(channel, []byte("too short"))
	assert.False(t, ok)
	assert.False(t, svc.Established(channel))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestService()
	channel := ChannelID(7)
	pkt, _ := svc.InitiateKeyExchange(channel)
	msg, _ := wire.Decode(pkt)
	serverKX := msg.Body.(*wire.ServerKeyExchange)
	clientPub := clientRespond(t, serverKX.PublicKey)
	require.True(t, svc.HandleKeyExchangeResponse(channel, clientPub))

	plain := &wire.ProtocolMessage{
		From: 1,
		To:   2,
		Type: wire.TypeText,
		Body: &wire.TextMessage{MessageID: "m1", Timestamp: 1, Content: "hi"},
	}

	encPkt, err := svc.EncryptOutgoing(channel, plain)
	require.NoError(t, err)

	encMsg, err := wire.Decode(encPkt)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeEncrypted, encMsg.Type)
	assert.Equal(t, int32(1), encMsg.From)
	assert.Equal(t, int32(2), encMsg.To)

	decoded, err := svc.DecryptIncoming(channel, encPkt)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeText, decoded.Type)
	tm := decoded.Body.(*wire.TextMessage)
	assert.Equal(t, "hi", tm.Content)
}

func TestDecryptRejectsReplay(t *testing.T) {
	svc := newTestService()
	channel := ChannelID(3)
	pkt, _ := svc.InitiateKeyExchange(channel)
	msg, _ := wire.Decode(pkt)
	serverKX := msg.Body.(*wire.ServerKeyExchange)
	clientPub := clientRespond(t, serverKX.PublicKey)
	require.True(t, svc.HandleKeyExchangeResponse(channel, clientPub))

	plain := &wire.ProtocolMessage{
		From: 1, To: 2, Type: wire.TypeText,
		Body: &wire.TextMessage{MessageID: "m1", Timestamp: 1, Content: "hi"},
	}
	encPkt, err := svc.EncryptOutgoing(channel, plain)
	require.NoError(t, err)

	_, err = svc.DecryptIncoming(channel, encPkt)
	require.NoError(t, err)

	// Replaying the exact same ciphertext must be rejected.
	_, err = svc.DecryptIncoming(channel, encPkt)
	assert.ErrorIs(t, err, ErrSecurityViolation)
}

func TestOnConnectionClosedDropsSession(t *testing.T) {
	svc := newTestService()
	channel := ChannelID(9)
	pkt, _ := svc.InitiateKeyExchange(channel)
	msg, _ := wire.Decode(pkt)
	serverKX := msg.Body.(*wire.ServerKeyExchange)
	clientPub := clientRespond(t, serverKX.PublicKey)
	require.True(t, svc.HandleKeyExchangeResponse(channel, clientPub))

	svc.OnConnectionClosed(channel)
	assert.False(t, svc.Established(channel))
}

func TestPlaceholderCipherRoundTrip(t *testing.T) {
	svc := NewService(func(key []byte) (Cipher, error) {
		return NewPlaceholderCipher(key), nil
	})
	channel := ChannelID(1)
	pkt, _ := svc.InitiateKeyExchange(channel)
	msg, _ := wire.Decode(pkt)
	serverKX := msg.Body.(*wire.ServerKeyExchange)
	clientPub := clientRespond(t, serverKX.PublicKey)
	require.True(t, svc.HandleKeyExchangeResponse(channel, clientPub))

	plain := &wire.ProtocolMessage{
		From: 1, To: 2, Type: wire.TypeText,
		Body: &wire.TextMessage{MessageID: "m1", Timestamp: 1, Content: "placeholder"},
	}
	encPkt, err := svc.EncryptOutgoing(channel, plain)
	require.NoError(t, err)
	decoded, err := svc.DecryptIncoming(channel, encPkt)
	require.NoError(t, err)
	assert.Equal(t, "placeholder", decoded.Body.(*wire.TextMessage).Content)
}
