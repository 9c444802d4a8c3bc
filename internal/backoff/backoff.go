// Package backoff implements the recovery contracts the concurrent core
// relies on (§4.9): retrying a CAS-style operation with a bounded random
// spin between attempts, and running a cleanup clause on every exit path
// of a try clause without letting the cleanup's own failure escape.
package backoff

import "math/rand/v2"

// State is the outcome a retried function reports back to
// RetryWithRandomBackoff.
type State int

const (
	// Done signals the retried function completed; stop retrying.
	Done State = iota
	// Retry signals contention was detected; spin briefly and call again.
	Retry
)

// defaultMaxBackoff matches the original turbo::algorithm::recovery
// default of 8 spin iterations.
const defaultMaxBackoff = 8

// RetryWithRandomBackoff repeatedly invokes fn until it returns Done,
// spinning a random number of iterations below maxBackoff between
// attempts. A maxBackoff <= 0 uses the default of 8.
func RetryWithRandomBackoff(fn func() State, maxBackoff int) {
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	for fn() == Retry {
		spin(rand.IntN(maxBackoff))
	}
}

//go:noinline
func spin(iterations int) {
	for i := 0; i < iterations; i++ {
	}
}

// TryAndEnsure runs try, then runs ensure exactly once regardless of
// whether try panics. A panic raised by ensure itself is swallowed, never
// the panic from try: this mirrors the original's RAII destructor, whose
// own exceptions must never mask (or replace) an in-flight one from the
// guarded block.
func TryAndEnsure(try func(), ensure func()) {
	defer func() {
		defer func() {
			_ = recover() // ensure's own failure is swallowed
		}()
		ensure()
	}()
	try()
}
