package cache

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Schedule truncates a cache duration to a recurring wall-clock boundary so
// that every instance flushes at the same predictable moments.
type Schedule int

const (
	ScheduleNone Schedule = iota
	ScheduleHourly
	ScheduleHalfHourly
)

func (s Schedule) String() string {
	switch s {
	case ScheduleNone:
		return "None"
	case ScheduleHourly:
		return "Hourly"
	case ScheduleHalfHourly:
		return "HalfHourly"
	}
	return "Schedule(" + strconv.Itoa(int(s)) + ")"
}

// Validate returns a configuration error for values outside the enum.
func (s Schedule) Validate() error {
	switch s {
	case ScheduleNone, ScheduleHourly, ScheduleHalfHourly:
		return nil
	}
	return configErrorf("cache: unrecognised expiry schedule %d", int(s))
}

// ParseSchedule accepts "none", "hourly" and "halfhourly" in any case, with
// optional "-" or "_" separators. An empty string is ScheduleNone.
func ParseSchedule(s string) (Schedule, error) {
	normalised := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch normalised {
	case "", "none":
		return ScheduleNone, nil
	case "hourly":
		return ScheduleHourly, nil
	case "halfhourly":
		return ScheduleHalfHourly, nil
	}
	return ScheduleNone, configErrorf("cache: unrecognised expiry schedule %q", s)
}

func (s Schedule) MarshalYAML() (interface{}, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s.String(), nil
}

func (s *Schedule) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseSchedule(value.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Schedule) step() (time.Duration, error) {
	switch s {
	case ScheduleHourly:
		return time.Hour, nil
	case ScheduleHalfHourly:
		return 30 * time.Minute, nil
	case ScheduleNone:
		return 0, nil
	}
	return 0, s.Validate()
}

// NextScheduleBoundaryAfter returns the first hour (or half hour) mark
// strictly after t, aligned to UTC. ok is false for ScheduleNone, meaning
// the schedule never truncates. An unknown schedule panics: it can only be
// produced by bypassing ParseSchedule and Validate.
func NextScheduleBoundaryAfter(t time.Time, schedule Schedule) (next time.Time, ok bool) {
	step, err := schedule.step()
	if err != nil {
		panic(err)
	}
	if step == 0 {
		return time.Time{}, false
	}
	return t.Truncate(step).Add(step), true
}

// ExpiryPolicy describes how long a cached value stays valid.
type ExpiryPolicy struct {
	Duration time.Duration
	Schedule Schedule
}

// NewExpiryPolicy builds a policy from a duration in whole seconds.
func NewExpiryPolicy(durationSeconds int, schedule Schedule) (ExpiryPolicy, error) {
	p := ExpiryPolicy{Duration: time.Duration(durationSeconds) * time.Second, Schedule: schedule}
	return p, p.Validate()
}

// Validate rejects negative durations and unknown schedules.
func (p ExpiryPolicy) Validate() error {
	if p.Duration < 0 {
		return configErrorf("cache: expiry duration must be >= 0, got %s", p.Duration)
	}
	return p.Schedule.Validate()
}

// EffectiveExpiry is the instant a value stored at storedAt stops being
// valid: storedAt+Duration, pulled back to the next schedule boundary when
// that comes first.
func (p ExpiryPolicy) EffectiveExpiry(storedAt time.Time) time.Time {
	expiry := storedAt.Add(p.Duration)
	if boundary, ok := NextScheduleBoundaryAfter(storedAt, p.Schedule); ok && boundary.Before(expiry) {
		return boundary
	}
	return expiry
}

// Expired reports whether a value stored at storedAt is no longer valid at now.
// A zero duration is expired immediately.
func (p ExpiryPolicy) Expired(storedAt, now time.Time) bool {
	return !now.Before(p.EffectiveExpiry(storedAt))
}

func (p ExpiryPolicy) String() string {
	return p.Duration.String() + "/" + p.Schedule.String()
}
