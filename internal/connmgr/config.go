package connmgr

import (
	"runtime"
	"time"
)

// Config holds the connection manager's tunables, grounded on the
// flag-parsed knobs of cmd/relay/main.go generalized to the spec's
// identify/key-exchange timeout pair (spec.md §5).
type Config struct {
	// Port the relay listens on.
	Port int
	// WorkerThreads bounds how many packets are processed concurrently
	// across all connections (default: max(2, runtime.NumCPU())).
	WorkerThreads int
	// IdentifyTimeout is how long a connection may stay key-exchanged but
	// unidentified before it is closed. Default 1s per spec.md §5.
	IdentifyTimeout time.Duration
	// KeyExchangeTimeout is how long a connection may stay accepted but not
	// yet key-exchanged before it is closed. Default 5s per spec.md §5.
	KeyExchangeTimeout time.Duration
}

// DefaultConfig returns the spec's default timeouts for the given port, with
// a worker pool sized max(2, runtime.NumCPU()) per spec.md §6.
func DefaultConfig(port int) Config {
	return Config{
		Port:               port,
		WorkerThreads:      defaultWorkerThreads(),
		IdentifyTimeout:    time.Second,
		KeyExchangeTimeout: 5 * time.Second,
	}
}

func defaultWorkerThreads() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}
