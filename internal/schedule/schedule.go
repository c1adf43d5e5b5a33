package schedule

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
)

// Policy holds the constants of the SM-2 style scheduler.
type Policy struct {
	InitialEase        float64 `koanf:"initial_ease"`
	MinEase            float64 `koanf:"min_ease"`
	MaxEase            float64 `koanf:"max_ease"`
	FailEasePenalty    float64 `koanf:"fail_ease_penalty"`
	HardEasePenalty    float64 `koanf:"hard_ease_penalty"`
	EasyEaseBonus      float64 `koanf:"easy_ease_bonus"`
	HardIntervalFactor float64 `koanf:"hard_interval_factor"`
	EasyIntervalFactor float64 `koanf:"easy_interval_factor"`
	FirstInterval      float64 `koanf:"first_interval"` // days
	MaxInterval        float64 `koanf:"max_interval"`   // days
}

// MaxDueDays bounds how far ahead any due date may be. It keeps due dates
// within four-digit years so they survive RFC 3339 round trips.
const MaxDueDays = 365_000

// DefaultPolicy returns the stock SM-2 constants.
func DefaultPolicy() Policy {
	return Policy{
		InitialEase:        2.5,
		MinEase:            1.3,
		MaxEase:            5.0,
		FailEasePenalty:    0.2,
		HardEasePenalty:    0.15,
		EasyEaseBonus:      0.15,
		HardIntervalFactor: 1.2,
		EasyIntervalFactor: 1.3,
		FirstInterval:      1,
		MaxInterval:        36500,
	}
}

// Validate rejects policies that would break the ease or interval invariants.
func (p Policy) Validate() error {
	var errs []error
	if p.MinEase <= 0 {
		errs = append(errs, fmt.Errorf("min_ease %g must be positive", p.MinEase))
	}
	if p.MinEase > p.MaxEase {
		errs = append(errs, fmt.Errorf("min_ease %g exceeds max_ease %g", p.MinEase, p.MaxEase))
	}
	if p.InitialEase < p.MinEase || p.InitialEase > p.MaxEase {
		errs = append(errs, fmt.Errorf("initial_ease %g outside [%g, %g]", p.InitialEase, p.MinEase, p.MaxEase))
	}
	if p.FailEasePenalty < 0 || p.HardEasePenalty < 0 || p.EasyEaseBonus < 0 {
		errs = append(errs, errors.New("ease penalties and bonus must not be negative"))
	}
	if p.HardIntervalFactor < 1 || p.EasyIntervalFactor < 1 {
		errs = append(errs, errors.New("interval factors must be at least 1"))
	}
	if p.FirstInterval < 1 {
		errs = append(errs, fmt.Errorf("first_interval %g must be at least 1 day", p.FirstInterval))
	}
	if p.MaxInterval < p.FirstInterval || p.MaxInterval > MaxDueDays {
		errs = append(errs, fmt.Errorf("max_interval %g outside [first_interval %g, %d]", p.MaxInterval, p.FirstInterval, MaxDueDays))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid schedule policy: %w", errors.Join(errs...))
	}
	return nil
}

// Initial returns the review state of an entry that has never been reviewed.
// It is due immediately.
func (p Policy) Initial(created time.Time) domain.ReviewState {
	return domain.ReviewState{
		NextDue: created,
		Ease:    p.InitialEase,
	}
}

// Next applies grade g at time now and returns the new state.
func (p Policy) Next(rs domain.ReviewState, g Grade, now time.Time) domain.ReviewState {
	first := rs.Reviews == 0
	next := rs
	next.Reviews++
	next.LastReviewed = now

	switch g {
	case Fail:
		next.Interval = p.FirstInterval
		next.Streak = 0
		next.Ease = p.clamp(rs.Ease - p.FailEasePenalty)
	case Hard:
		next.Interval = math.Max(1, rs.Interval*p.HardIntervalFactor)
		next.Streak++
		next.Ease = p.clamp(rs.Ease - p.HardEasePenalty)
	case Good:
		next.Interval = rs.Interval * rs.Ease
		next.Streak++
		next.Ease = p.clamp(rs.Ease)
	case Easy:
		next.Interval = rs.Interval * rs.Ease * p.EasyIntervalFactor
		next.Streak++
		next.Ease = p.clamp(rs.Ease + p.EasyEaseBonus)
	}

	if first {
		next.Interval = p.FirstInterval
	}
	if p.MaxInterval > 0 && next.Interval > p.MaxInterval {
		next.Interval = p.MaxInterval
	}
	next.NextDue = DueDate(now, next.Interval)
	return next
}

func (p Policy) clamp(ease float64) float64 {
	return math.Min(p.MaxEase, math.Max(p.MinEase, ease))
}

// DueDate returns now plus the interval rounded to whole days, at least one
// day and at most MaxDueDays.
func DueDate(now time.Time, interval float64) time.Time {
	r := math.Round(interval)
	switch {
	case math.IsNaN(r) || r < 1:
		r = 1
	case r > MaxDueDays:
		r = MaxDueDays
	}
	return now.AddDate(0, 0, int(r))
}
