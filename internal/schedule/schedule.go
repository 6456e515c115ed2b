// Package schedule decides when daemon routines run next.
//
// Supported forms:
//   - a cron expression such as "0 22 * * 6" (UTC); absolute, independent of
//     when the routine last finished
//   - "with 5m interval": wait the interval after the previous run finished
//   - "continuously": alias for "with 0s interval"
//   - "manual": never fires on its own; run it from the CLI
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// Never is returned by Next for manual schedules.
var Never = time.Date(2115, time.December, 31, 0, 0, 0, 0, time.UTC)

type kind int

const (
	kindManual kind = iota
	kindCron
	kindInterval
)

// Schedule knows when to run a routine given the current time and when the
// routine last finished.
type Schedule struct {
	definition string
	kind       kind
	cron       *cronexpr.Expression
	every      time.Duration
	// offset is the fraction of one interval the first run is delayed by.
	offset float64
}

// Parse converts a schedule definition into a Schedule. seed spreads the
// first run of interval schedules so routines do not all start together.
func Parse(expr string, seed uint64) (*Schedule, error) {
	definition := strings.TrimSpace(expr)
	s := &Schedule{definition: definition}
	switch definition {
	case "", "manual":
		s.definition = "manual"
		s.kind = kindManual
		return s, nil
	case "continuously":
		s.kind = kindInterval
		s.offset = spread(seed)
		return s, nil
	}

	if strings.HasPrefix(definition, "with ") {
		every, err := intervalOf(definition)
		if err != nil {
			return nil, err
		}
		s.kind = kindInterval
		s.every = every
		s.offset = spread(seed)
		return s, nil
	}

	cron, err := cronexpr.Parse(definition)
	if err != nil {
		return nil, fmt.Errorf("bad cron expression %q: %w", definition, err)
	}
	s.kind = kindCron
	s.cron = cron
	return s, nil
}

// IsManual reports whether the schedule never fires on its own.
func (s *Schedule) IsManual() bool {
	return s.kind == kindManual
}

// IsAbsolute is true for schedules that do not depend on the previous run.
func (s *Schedule) IsAbsolute() bool {
	return s.kind != kindInterval
}

// Next returns when the routine should run next. prev is when the previous
// run finished, or the zero time when it has never run. An overdue interval
// run fires at now.
func (s *Schedule) Next(now, prev time.Time) time.Time {
	switch s.kind {
	case kindManual:
		return Never
	case kindCron:
		return s.cron.Next(now.UTC())
	}
	if prev.IsZero() {
		return now.Add(time.Duration(s.offset * float64(s.every)))
	}
	if due := prev.Add(s.every); due.After(now) {
		return due
	}
	return now
}

// String returns the definition the schedule was parsed from.
func (s *Schedule) String() string {
	return s.definition
}

// intervalOf reads the duration out of "with <duration> interval".
func intervalOf(definition string) (time.Duration, error) {
	fields := strings.Fields(definition)
	if len(fields) != 3 || fields[0] != "with" || fields[2] != "interval" {
		return 0, errors.New("expecting format \"with <duration> interval\"")
	}
	every, err := time.ParseDuration(fields[1])
	if err != nil {
		return 0, fmt.Errorf("bad duration %q: %w", fields[1], err)
	}
	if every < 0 {
		return 0, fmt.Errorf("bad interval %q: must not be negative", fields[1])
	}
	return every, nil
}

// spread maps seed onto [0, 1) with a splitmix64 finalizer, so neighbouring
// seeds land far apart.
func spread(seed uint64) float64 {
	z := seed + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11) / (1 << 53)
}
