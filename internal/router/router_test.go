package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/relayd/internal/idgen"
	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

type stubHandler struct {
	name    string
	types   map[wire.MessageType]bool
	handled []servercontext.HandlerCall
}

func (s *stubHandler) Name() string { return s.name }
func (s *stubHandler) CanHandle(t wire.MessageType) bool { return s.types[t] }
func (s *stubHandler) Handle(_ context.Context, _ *servercontext.Context, call servercontext.HandlerCall) error {
	s.handled = append(s.handled, call)
	return nil
}

type noopSender struct{}

func (noopSender) Send(*wire.ProtocolMessage)                    {}
func (noopSender) SendAs(*wire.ProtocolMessage, int32)            {}
func (noopSender) Close(uint64)                                  {}
func (noopSender) Bind(channel uint64, id int32) bool            { return true }
func (noopSender) IsActive(id int32) bool                        { return false }
func (noopSender) Reply(channel uint64, _ *wire.ProtocolMessage) {}

func newTestSC() *servercontext.Context {
	return servercontext.New(repo.NewUsers(), repo.NewGroups(), repo.NewContactRequests(), idgen.New(), noopSender{})
}

func TestDispatchPicksFirstMatch(t *testing.T) {
	r := New()
	text := &stubHandler{name: "text", types: map[wire.MessageType]bool{wire.TypeText: true}}
	ack := &stubHandler{name: "ack", types: map[wire.MessageType]bool{wire.TypeMessageAck: true}}
	r.Register(text)
	r.Register(ack)

	sc := newTestSC()
	call := servercontext.HandlerCall{Message: &wire.ProtocolMessage{Type: wire.TypeText}}
	require.NoError(t, r.Dispatch(context.Background(), sc, call))
	assert.Len(t, text.handled, 1)
	assert.Len(t, ack.handled, 0)
}

func TestDispatchNoHandler(t *testing.T) {
	r := New()
	sc := newTestSC()
	call := servercontext.HandlerCall{Message: &wire.ProtocolMessage{Type: wire.TypeText}}
	err := r.Dispatch(context.Background(), sc, call)
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestRegisterPanicsOnConflict(t *testing.T) {
	r := New()
	a := &stubHandler{name: "a", types: map[wire.MessageType]bool{wire.TypeText: true}}
	b := &stubHandler{name: "b", types: map[wire.MessageType]bool{wire.TypeText: true}}
	r.Register(a)
	assert.Panics(t, func() { r.Register(b) })
}
