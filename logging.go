package forkjoin

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// schedLogger bundles the configured logiface logger with the rate limiter
// guarding the noisy paths. Logging is an opt-in concern: with no logger
// configured every call site short-circuits inside logiface (nil loggers
// are disabled at every level), so the scheduler never pays for log
// formatting it didn't ask for.
type schedLogger struct {
	logger *logiface.Logger[logiface.Event]

	// dropLimiter rate-limits the dropped-sibling-exception log entries: a
	// pathological workload can drop an exception per join scope, and the
	// log is diagnostic, not an accounting mechanism (the metrics counter
	// is).
	dropLimiter *catrate.Limiter
}

// dropCategory is the rate limiter category for dropped sibling exceptions.
type dropCategory struct{}

func newSchedLogger(logger *logiface.Logger[logiface.Event]) schedLogger {
	return schedLogger{
		logger: logger,
		dropLimiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 5,
			time.Minute: 30,
		}),
	}
}

// base returns the underlying logger for direct fluent use.
func (l *schedLogger) base() *logiface.Logger[logiface.Event] {
	return l.logger
}

// Debug, Info, Warning expose the fluent builders of the underlying logger.
func (l *schedLogger) Debug() *logiface.Builder[logiface.Event]   { return l.logger.Debug() }
func (l *schedLogger) Info() *logiface.Builder[logiface.Event]    { return l.logger.Info() }
func (l *schedLogger) Warning() *logiface.Builder[logiface.Event] { return l.logger.Warning() }

// logDroppedException logs a sibling exception that lost the first-wins race
// for the parent's exception slot, subject to rate limiting. Structured
// concurrency surfaces exactly one failure per join scope; the rest are
// observable only here and in the metrics.
func (s *Scheduler) logDroppedException(worker int, err error) {
	if s.logger.base() == nil {
		return
	}
	if _, ok := s.logger.dropLimiter.Allow(dropCategory{}); !ok {
		return
	}
	s.logger.Warning().
		Int("worker", worker).
		Err(err).
		Log("forkjoin: sibling exception dropped (another failure was captured first)")
}
