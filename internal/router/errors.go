package router

import "errors"

// ErrNoHandler is returned by Dispatch when no registered handler claims a
// message's type.
var ErrNoHandler = errors.New("router: no handler registered for type")
