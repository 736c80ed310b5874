package sync

import "time"

// Decision is the outcome of a reconnection policy evaluation.
type Decision int

const (
	// RetryPush keeps trying the push channel.
	RetryPush Decision = iota
	// FallbackToPolling activates the timed refresh fallback.
	FallbackToPolling
	// StopAll ends live synchronization; the session is unauthorized.
	StopAll
)

// FailureKind classifies what went wrong with the last connection attempt.
type FailureKind int

const (
	// FailureNetwork is a dial error, handshake timeout, or dropped socket.
	FailureNetwork FailureKind = iota
	// FailurePrecondition means no token was available; the attempt never
	// reached the network and must not count toward retry statistics.
	FailurePrecondition
	// FailureUnauthorized means the backend rejected the credentials.
	FailureUnauthorized
)

// DefaultFailureThreshold is the number of consecutive network failures
// tolerated before falling back to polling.
const DefaultFailureThreshold = 3

const (
	backoffBase = 1 * time.Second
	backoffCap  = 5 * time.Second
)

// Policy is the pure reconnection decision function. It holds no state and
// performs no I/O; the controller feeds it the running failure count.
type Policy struct {
	// Threshold is the consecutive-network-failure count at which the
	// policy gives up on the push channel. Zero means the default.
	Threshold int
}

func (p Policy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultFailureThreshold
	}
	return p.Threshold
}

// Decide returns what the controller should do after a failure.
// consecutiveFailures is the count including the failure being decided.
// A precondition failure falls back immediately without counting — retrying
// the push channel without credentials is pointless, but polling still works.
func (p Policy) Decide(consecutiveFailures int, kind FailureKind) Decision {
	switch kind {
	case FailureUnauthorized:
		return StopAll
	case FailurePrecondition:
		return FallbackToPolling
	}
	if consecutiveFailures >= p.threshold() {
		return FallbackToPolling
	}
	return RetryPush
}

// Backoff returns the delay before retry attempt n (1-based): 1s, 2s, 4s,
// capped at 5s.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
