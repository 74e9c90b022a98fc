package engine

import (
	"errors"
	"fmt"
	"time"
)

// Run-aborting failure kinds. Both are unrecoverable for the run: no partial
// result is returned and the retry/discard decision belongs to the caller.
var (
	// ErrSignalExplosion marks a strategy producing implausibly many daily
	// candidates, a rule-authoring defect rather than a resource limit.
	ErrSignalExplosion = errors.New("signal explosion")
	// ErrCancelled marks a run aborted through its cancellation check.
	ErrCancelled = errors.New("run cancelled")
)

// ExplosionError reports the offending day range and observed average.
type ExplosionError struct {
	FromDate time.Time
	ToDate   time.Time
	Avg      float64
	Limit    float64
}

func (e *ExplosionError) Error() string {
	return fmt.Sprintf("%v: avg %.1f candidates/day over %s..%s exceeds limit %.0f",
		ErrSignalExplosion, e.Avg,
		e.FromDate.Format("2006-01-02"), e.ToDate.Format("2006-01-02"), e.Limit)
}

func (e *ExplosionError) Unwrap() error { return ErrSignalExplosion }

// CancelledError records where in the run cancellation was observed.
type CancelledError struct {
	Day  int
	Date time.Time
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%v at day %d (%s)", ErrCancelled, e.Day, e.Date.Format("2006-01-02"))
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }
