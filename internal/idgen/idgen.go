// Package idgen is the monotonic source of client and group ids.
package idgen

import "sync/atomic"

// Generator produces monotonically increasing, never-zero int32 ids. Zero
// is reserved on the wire for "no recipient" / "not yet identified".
type Generator struct {
	counter atomic.Int32
}

// New returns a Generator whose first Next() is 1.
func New() *Generator {
	return &Generator{}
}

// Next returns the next id in sequence.
func (g *Generator) Next() int32 {
	return g.counter.Add(1)
}
