package servercontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/relayd/internal/idgen"
	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/wire"
)

type fakeSender struct {
	sent   []*wire.ProtocolMessage
	closed []uint64
	bound  map[uint64]int32
}

func (f *fakeSender) Send(msg *wire.ProtocolMessage) { f.sent = append(f.sent, msg) }
func (f *fakeSender) SendAs(msg *wire.ProtocolMessage, clientID int32) {
	f.sent = append(f.sent, msg)
}
func (f *fakeSender) Close(channel uint64) { f.closed = append(f.closed, channel) }
func (f *fakeSender) Bind(channel uint64, clientID int32) bool {
	if f.bound == nil {
		f.bound = make(map[uint64]int32)
	}
	f.bound[channel] = clientID
	return true
}
func (f *fakeSender) IsActive(clientID int32) bool {
	for _, id := range f.bound {
		if id == clientID {
			return true
		}
	}
	return false
}
func (f *fakeSender) Reply(channel uint64, msg *wire.ProtocolMessage) { f.sent = append(f.sent, msg) }

func newTestContext() (*Context, *fakeSender) {
	sender := &fakeSender{}
	ctx := New(repo.NewUsers(), repo.NewGroups(), repo.NewContactRequests(), idgen.New(), sender)
	return ctx, sender
}

func TestSendAck(t *testing.T) {
	ctx, sender := newTestContext()
	ctx.SendAck(5, &wire.AckMessage{AcknowledgedMessageID: "m1", Status: wire.AckSent})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int32(5), sender.sent[0].To)
	assert.Equal(t, wire.TypeMessageAck, sender.sent[0].Type)
}

func TestSendError(t *testing.T) {
	ctx, sender := newTestContext()
	ctx.SendError(7, wire.LevelError, wire.ErrTypeUserNotFound, "no such user")
	require.Len(t, sender.sent, 1)
	body := sender.sent[0].Body.(*wire.ErrorMessage)
	assert.Equal(t, wire.ErrTypeUserNotFound, body.Type)
}

func TestNextIDMonotonic(t *testing.T) {
	ctx, _ := newTestContext()
	a := ctx.NextID()
	b := ctx.NextID()
	assert.Greater(t, b, a)
}

func TestClose(t *testing.T) {
	ctx, sender := newTestContext()
	ctx.Close(42)
	assert.Equal(t, []uint64{42}, sender.closed)
}
