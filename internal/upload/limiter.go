package upload

import "net/http"

const (
	// defaultConcurrency is the fallback slot count when maxConcurrent ≤ 0.
	defaultConcurrency = 64

	// retryAfterSeconds is the value of the Retry-After header sent on 503.
	retryAfterSeconds = "5"

	capacityErrorPayload = `{"error":"server at capacity — retry in 5s"}`
)

// SessionLimiter caps the number of concurrently active upload engine
// sessions using a non-blocking channel semaphore, same shape as the
// teacher's per-request upload limiter, repurposed here to gate the
// WebSocket upgrade itself rather than an HTTP handler body (§4.D NEW).
// A session that cannot acquire a slot is rejected with 503 before the
// upgrade happens — there is no queueing, since queueing under a spike
// would hold open file descriptors without providing any relief.
type SessionLimiter struct {
	sem chan struct{}
}

// NewSessionLimiter creates a limiter allowing at most maxConcurrent
// simultaneous upload sessions.
func NewSessionLimiter(maxConcurrent int) *SessionLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultConcurrency
	}
	return &SessionLimiter{sem: make(chan struct{}, maxConcurrent)}
}

// Acquire attempts to reserve a slot, writing a 503 response and returning
// false if the limiter is at capacity. release must be called exactly once
// when true is returned.
func (l *SessionLimiter) Acquire(w http.ResponseWriter) (release func(), ok bool) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, true
	default:
		w.Header().Set("Retry-After", retryAfterSeconds)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(capacityErrorPayload)) //nolint:errcheck
		return nil, false
	}
}

// Active returns the number of upload slots currently in use.
func (l *SessionLimiter) Active() int { return len(l.sem) }

// Cap returns the maximum number of concurrent upload slots.
func (l *SessionLimiter) Cap() int { return cap(l.sem) }
