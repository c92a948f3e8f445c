package capacity

import "time"

// Outcome labels a reservation attempt.
type Outcome string

const (
	OutcomeReserved  Outcome = "reserved"
	OutcomeExhausted Outcome = "capacity_exceeded"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeError     Outcome = "error"
)

// Observer receives coordinator measurements. The prometheus implementation
// lives in infra/obs.
type Observer interface {
	ReserveAttempt(outcome Outcome, lockWait time.Duration)
	Released(quantity int)
	HoldExpired(quantity int)
	WindowFlagged()
}

type nopObserver struct{}

func (nopObserver) ReserveAttempt(Outcome, time.Duration) {}
func (nopObserver) Released(int)                          {}
func (nopObserver) HoldExpired(int)                       {}
func (nopObserver) WindowFlagged()                        {}
