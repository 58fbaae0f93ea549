// Package router dispatches a decoded message to the one handler willing to
// take it: a small registry in place of a growing switch on message type,
// so each handler can be unit-tested in isolation.
package router

import (
	"context"
	"fmt"

	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// Handler processes every message of the types it claims via CanHandle.
type Handler interface {
	// Name identifies the handler in logs and panic messages.
	Name() string
	// CanHandle reports whether this handler owns messages of type t.
	CanHandle(t wire.MessageType) bool
	// Handle processes one inbound message. sc carries shared server
	// state; call carries the message and the connection it arrived on.
	Handle(ctx context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error
}

// Router holds an ordered list of handlers and dispatches to the first one
// whose CanHandle reports true for the incoming message's type.
type Router struct {
	handlers []Handler
}

// New creates an empty Router.
func New() *Router {
	return &Router{}
}

// Register appends h to the dispatch order. It panics if h claims a message
// type already claimed by a previously-registered handler: two handlers
// silently racing for the same type is a wiring bug, not a runtime
// condition to tolerate.
func (r *Router) Register(h Handler) {
	for _, t := range wire.AllTypes() {
		if !h.CanHandle(t) {
			continue
		}
		for _, existing := range r.handlers {
			if existing.CanHandle(t) {
				panic(fmt.Sprintf("router: %s and %s both claim %s", existing.Name(), h.Name(), t))
			}
		}
	}
	r.handlers = append(r.handlers, h)
}

// Dispatch finds the first handler claiming call.Message.Type and runs it.
// ErrNoHandler is returned if no handler claims the type.
func (r *Router) Dispatch(ctx context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	for _, h := range r.handlers {
		if h.CanHandle(call.Message.Type) {
			return h.Handle(ctx, sc, call)
		}
	}
	return fmt.Errorf("%w: %s", ErrNoHandler, call.Message.Type)
}
