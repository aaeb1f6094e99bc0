package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaultSelection(t *testing.T) {
	r := NewRegistry[string]()
	_, ok := r.Service("")
	assert.False(t, ok)

	require.NoError(t, r.AddService("primary", "a"))
	require.NoError(t, r.AddService("secondary", "b"))

	svc, ok := r.Service("")
	require.True(t, ok)
	assert.Equal(t, "a", svc)

	svc, ok = r.Service("secondary")
	require.True(t, ok)
	assert.Equal(t, "b", svc)

	_, ok = r.Service("missing")
	assert.False(t, ok)

	assert.True(t, r.RemoveService("primary"))
	svc, _ = r.Service("")
	assert.Equal(t, "b", svc)
	assert.Equal(t, []string{"secondary"}, r.Names())
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.AddService("", 1))
	assert.ErrorIs(t, r.AddService("default", 2), ErrServiceExists)

	svc, ok := r.Service(DefaultServiceName)
	require.True(t, ok)
	assert.Equal(t, 1, svc)
}

func TestRegistryRemoveAndClear(t *testing.T) {
	r := NewRegistry[int]()
	assert.False(t, r.RemoveService("missing"))
	require.NoError(t, r.AddService("a", 1))
	require.NoError(t, r.AddService("b", 2))
	assert.Equal(t, 2, r.Len())

	r.ClearServices()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Names())
	_, ok := r.Service("")
	assert.False(t, ok)

	require.NoError(t, r.AddService("a", 3))
}

func TestRegistryConcurrentReads(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.AddService("a", 1))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				svc, ok := r.Service("")
				assert.True(t, ok)
				assert.Equal(t, 1, svc)
			}
		}()
	}
	wg.Wait()
}
