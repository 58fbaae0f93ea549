package connmgr

import (
	"crypto/rand"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/chatrelay/relayd/internal/ack"
	"github.com/chatrelay/relayd/internal/handler"
	"github.com/chatrelay/relayd/internal/idgen"
	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/router"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/session"
	"github.com/chatrelay/relayd/internal/wire"
)

// newTestManager wires a full relay stack (repositories, router, handlers,
// connection manager) listening on an OS-assigned loopback port, the same
// composition cmd/relayserver performs in production.
func newTestManager(t *testing.T) (*Manager, int) {
	t.Helper()

	sessionSvc := session.NewService(func(key []byte) (session.Cipher, error) {
		return session.NewRealCipher(key)
	})
	rtr := router.New()
	rtr.Register(handler.NewUserManagementHandler())
	rtr.Register(handler.NewRelayMessageHandler())
	rtr.Register(handler.NewAckMessageHandler())
	rtr.Register(handler.NewContactRequestHandler())
	rtr.Register(handler.NewGroupHandler())
	rtr.Register(handler.NewKeyExchangeRelayHandler())

	cfg := Config{Port: 0, WorkerThreads: 4, IdentifyTimeout: 2 * time.Second, KeyExchangeTimeout: 5 * time.Second}
	mgr := New(cfg, sessionSvc, rtr)
	sc := servercontext.New(repo.NewUsers(), repo.NewGroups(), repo.NewContactRequests(), idgen.New(), mgr)
	mgr.SetContext(sc)

	require.NoError(t, mgr.Start())
	t.Cleanup(func() { mgr.Stop() })

	return mgr, mgr.listener.Addr().(*net.TCPAddr).Port
}

// testClient simulates a real client's half of the connection-level
// handshake (spec.md §4.3/§6) and every subsequent ENCRYPTED packet, so
// these tests exercise the same gate production connections must pass
// through once a session is established.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	cipher  session.Cipher
	sendSeq uint64
}

// dialAndHandshake dials addr, reads the server's plaintext
// SERVER_KEY_EXCHANGE, derives a session key from a fresh X25519 keypair the
// same way session.Service does, and answers with
// SERVER_KEY_EXCHANGE_RESPONSE so the server establishes its half too.
func dialAndHandshake(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	header, err := wire.ReadHeader(conn)
	require.NoError(t, err)
	payload := make([]byte, header.Length)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	serverMsg, err := wire.Decode(&wire.Packet{Header: *header, Payload: payload})
	require.NoError(t, err)
	serverKex, ok := serverMsg.Body.(*wire.ServerKeyExchange)
	require.True(t, ok)

	var priv [32]byte
	_, err = io.ReadFull(rand.Reader, priv[:])
	require.NoError(t, err)
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	require.NoError(t, err)
	shared, err := curve25519.X25519(priv[:], serverKex.PublicKey)
	require.NoError(t, err)
	key, err := session.DeriveSessionKey(shared)
	require.NoError(t, err)
	cipher, err := session.NewRealCipher(key)
	require.NoError(t, err)

	resp := &wire.ProtocolMessage{
		Type: wire.TypeServerKeyExchangeResponse,
		Body: &wire.ServerKeyExchangeResponse{PublicKey: pub},
	}
	_, err = conn.Write(wire.Encode(resp).Encode())
	require.NoError(t, err)

	return &testClient{t: t, conn: conn, cipher: cipher}
}

// send encrypts msg the way session.Service.EncryptOutgoing does and writes
// it as an ENCRYPTED wrapper packet.
func (c *testClient) send(msg *wire.ProtocolMessage) {
	c.t.Helper()

	plainPkt := wire.Encode(msg)
	nonce := make([]byte, c.cipher.NonceSize())
	_, err := io.ReadFull(rand.Reader, nonce)
	require.NoError(c.t, err)
	ciphertext := c.cipher.Seal(nil, nonce, plainPkt.Payload, nil)

	wrapper := &wire.EncryptedWrapper{
		InnerType:  msg.Type,
		Sequence:   c.sendSeq,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	c.sendSeq++

	outer := &wire.ProtocolMessage{From: msg.From, To: msg.To, Type: wire.TypeEncrypted, Body: wrapper}
	_, err = c.conn.Write(wire.Encode(outer).Encode())
	require.NoError(c.t, err)
}

// recv reads one packet and, mirroring session.Service.DecryptIncoming,
// unwraps and decrypts it into its inner ProtocolMessage.
func (c *testClient) recv() *wire.ProtocolMessage {
	c.t.Helper()

	header, err := wire.ReadHeader(c.conn)
	require.NoError(c.t, err)
	payload := make([]byte, header.Length)
	_, err = io.ReadFull(c.conn, payload)
	require.NoError(c.t, err)
	outerMsg, err := wire.Decode(&wire.Packet{Header: *header, Payload: payload})
	require.NoError(c.t, err)
	wrapper, ok := outerMsg.Body.(*wire.EncryptedWrapper)
	require.True(c.t, ok)

	plaintext, err := c.cipher.Open(nil, wrapper.Nonce, wrapper.Ciphertext, nil)
	require.NoError(c.t, err)

	inner, err := wire.Decode(&wire.Packet{
		Header: wire.Header{
			Length: uint32(len(plaintext)),
			Type:   wrapper.InnerType,
			From:   outerMsg.From,
			To:     outerMsg.To,
		},
		Payload: plaintext,
	})
	require.NoError(c.t, err)
	return inner
}

func (c *testClient) close() { c.conn.Close() }

// createUser completes the handshake's follow-on CREATE_USER exchange over
// an already-established encrypted client, returning the assigned client id.
func createUser(t *testing.T, c *testClient, pseudo string) int32 {
	t.Helper()

	body := wire.NewManagementMessage()
	body.Params["pseudo"] = pseudo
	c.send(&wire.ProtocolMessage{Type: wire.TypeCreateUser, Body: body})

	reply := c.recv()
	require.Equal(t, wire.TypeCreateUser, reply.Type)
	mm := reply.Body.(*wire.ManagementMessage)
	id, ok := mm.Params["clientId"].(int64)
	require.True(t, ok)
	return int32(id)
}

func TestRelayTextMessageEndToEnd(t *testing.T) {
	_, port := newTestManager(t)
	addr := (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String()

	alice := dialAndHandshake(t, addr)
	defer alice.close()
	bob := dialAndHandshake(t, addr)
	defer bob.close()

	aliceID := createUser(t, alice, "alice")
	bobID := createUser(t, bob, "bob")

	addContact := wire.NewManagementMessage()
	addContact.Params["contactId"] = int64(bobID)
	alice.send(&wire.ProtocolMessage{From: aliceID, Type: wire.TypeAddContact, Body: addContact})

	// Alice's ADD_CONTACT notifies bob (already connected); drain it.
	notifyBob := bob.recv()
	require.Equal(t, wire.TypeAddContact, notifyBob.Type)

	addContact2 := wire.NewManagementMessage()
	addContact2.Params["contactId"] = int64(aliceID)
	bob.send(&wire.ProtocolMessage{From: bobID, Type: wire.TypeAddContact, Body: addContact2})

	// Bob's ADD_CONTACT notifies alice (already connected); drain it.
	notifyAlice := alice.recv()
	require.Equal(t, wire.TypeAddContact, notifyAlice.Type)

	alice.send(&wire.ProtocolMessage{
		From: aliceID, To: bobID, Type: wire.TypeText,
		Body: &wire.TextMessage{MessageID: "m1", Content: "hello bob"},
	})

	delivered := bob.recv()
	require.Equal(t, wire.TypeText, delivered.Type)
	require.Equal(t, "hello bob", delivered.Body.(*wire.TextMessage).Content)

	sentAck := alice.recv()
	require.Equal(t, wire.TypeMessageAck, sentAck.Type)
	require.Equal(t, ack.Sent("m1"), sentAck.Body.(*wire.AckMessage))
}

func TestConnectUserRejectsSecondActiveConnection(t *testing.T) {
	_, port := newTestManager(t)
	addr := (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}).String()

	c1 := dialAndHandshake(t, addr)
	defer c1.close()
	aliceID := createUser(t, c1, "alice")

	c2 := dialAndHandshake(t, addr)
	defer c2.close()

	connectBody := wire.NewManagementMessage()
	c2.send(&wire.ProtocolMessage{From: aliceID, Type: wire.TypeConnectUser, Body: connectBody})

	errMsg := c2.recv()
	require.Equal(t, wire.TypeError, errMsg.Type)
	require.Equal(t, wire.ErrTypeAlreadyConnected, errMsg.Body.(*wire.ErrorMessage).Type)
}
