package blobstore

import (
	"context"
	"strings"
	"sync"
)

type memoryBlob struct {
	data []byte
	meta Metadata
}

// Memory is an in-process Storage for local development and tests. Expired
// blobs are still returned; expiry is enforced by the caller.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]map[string]memoryBlob
}

var _ Storage = (*Memory)(nil)

// NewMemory returns an empty in-process storage.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]map[string]memoryBlob)}
}

func (m *Memory) Put(ctx context.Context, container, path string, data []byte, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	blobs, ok := m.blobs[container]
	if !ok {
		blobs = make(map[string]memoryBlob)
		m.blobs[container] = blobs
	}
	blobs[path] = memoryBlob{data: buf, meta: meta}
	return nil
}

func (m *Memory) Get(ctx context.Context, container, path string) ([]byte, Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, Metadata{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[container][path]
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	buf := make([]byte, len(blob.data))
	copy(buf, blob.data)
	return buf, blob.meta, nil
}

func (m *Memory) Delete(ctx context.Context, container, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs[container], path)
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, container, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for path := range m.blobs[container] {
		if strings.HasPrefix(path, prefix) {
			delete(m.blobs[container], path)
		}
	}
	return nil
}

// Paths lists the stored paths of a container, for diagnostics and tests.
func (m *Memory) Paths(container string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.blobs[container]))
	for path := range m.blobs[container] {
		paths = append(paths, path)
	}
	return paths
}
