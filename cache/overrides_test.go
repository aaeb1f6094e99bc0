package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverridesApplyMemory(t *testing.T) {
	var ov Overrides
	policy := ExpiryPolicy{Duration: time.Hour, Schedule: ScheduleHourly}
	assert.Equal(t, policy, ov.ApplyMemory(policy))

	seconds := 600
	schedule := ScheduleHalfHourly
	require.NoError(t, ov.SetMemory(MemoryOverride{DurationSeconds: &seconds, ExpirySchedule: &schedule}))
	assert.Equal(t, ExpiryPolicy{Duration: 10 * time.Minute, Schedule: ScheduleHalfHourly}, ov.ApplyMemory(policy))

	require.NoError(t, ov.SetMemory(MemoryOverride{DurationSeconds: &seconds}))
	assert.Equal(t, ExpiryPolicy{Duration: 10 * time.Minute, Schedule: ScheduleHourly}, ov.ApplyMemory(policy))

	ov.ClearMemory()
	_, ok := ov.Memory()
	assert.False(t, ok)
	assert.Equal(t, policy, ov.ApplyMemory(policy))
}

func TestOverridesValidation(t *testing.T) {
	var ov Overrides
	negative := -5
	assert.True(t, IsConfigurationError(ov.SetMemory(MemoryOverride{DurationSeconds: &negative})))
	bad := Schedule(12)
	assert.True(t, IsConfigurationError(ov.SetMemory(MemoryOverride{ExpirySchedule: &bad})))
	_, ok := ov.Memory()
	assert.False(t, ok)
}
