package cache

import (
	"sync"
	"time"
)

// MemoryOverride replaces the expiry of every memory directive built with
// WithOverridable. Nil fields keep the directive's own value.
type MemoryOverride struct {
	DurationSeconds *int      `yaml:"durationInSeconds,omitempty"`
	ExpirySchedule  *Schedule `yaml:"expirySchedule,omitempty"`
}

// Validate rejects negative durations and unknown schedules.
func (o MemoryOverride) Validate() error {
	if o.DurationSeconds != nil && *o.DurationSeconds < 0 {
		return configErrorf("cache: override durationInSeconds must be >= 0, got %d", *o.DurationSeconds)
	}
	if o.ExpirySchedule != nil {
		return o.ExpirySchedule.Validate()
	}
	return nil
}

func (o MemoryOverride) apply(policy ExpiryPolicy) ExpiryPolicy {
	if o.DurationSeconds != nil {
		policy.Duration = time.Duration(*o.DurationSeconds) * time.Second
	}
	if o.ExpirySchedule != nil {
		policy.Schedule = *o.ExpirySchedule
	}
	return policy
}

// Overrides holds the process-wide expiry overrides of one Dispatcher.
type Overrides struct {
	mu     sync.RWMutex
	memory *MemoryOverride
}

// SetMemory installs o for all overridable memory directives.
func (ov *Overrides) SetMemory(o MemoryOverride) error {
	if err := o.Validate(); err != nil {
		return err
	}
	ov.mu.Lock()
	defer ov.mu.Unlock()
	ov.memory = &o
	return nil
}

// ClearMemory removes the memory override.
func (ov *Overrides) ClearMemory() {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	ov.memory = nil
}

// Memory returns the installed memory override, if any.
func (ov *Overrides) Memory() (MemoryOverride, bool) {
	ov.mu.RLock()
	defer ov.mu.RUnlock()
	if ov.memory == nil {
		return MemoryOverride{}, false
	}
	return *ov.memory, true
}

// ApplyMemory returns policy with the memory override applied.
func (ov *Overrides) ApplyMemory(policy ExpiryPolicy) ExpiryPolicy {
	if o, ok := ov.Memory(); ok {
		return o.apply(policy)
	}
	return policy
}
