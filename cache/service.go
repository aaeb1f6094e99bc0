package cache

import (
	"context"
)

// MemoryService is an in-process cache. It never performs I/O and so takes
// no context. There is no delete: an entry removed from one instance would
// still be served by every other instance, so entries only lapse by expiry.
type MemoryService interface {
	// GetItem returns the value stored under key, or false when absent or expired.
	GetItem(key Key) (any, bool)
	// SetItem stores value under key, replacing any previous value.
	SetItem(key Key, value any, policy ExpiryPolicy) error
}

// BlobService is a cache backed by remote blob storage.
type BlobService interface {
	// GetItem decodes the value stored under key into target, which must be
	// a pointer. A missing, expired or undecodable blob is a miss, not an
	// error; storage failures are returned.
	GetItem(ctx context.Context, key BlobKey, target any) (bool, error)
	// SetItem encodes value and stores it under key. A nil policy stores a
	// blob which never expires.
	SetItem(ctx context.Context, key BlobKey, value any, policy *ExpiryPolicy) error
	// DeleteItem removes the blob under key, if any.
	DeleteItem(ctx context.Context, key BlobKey) error
	// DeleteCacheFolder removes every blob below the folder named by key.
	DeleteCacheFolder(ctx context.Context, folder BlobKey) error
}

// GetMemoryItem retrieves a typed value from a memory service. A value of
// another type counts as a miss.
func GetMemoryItem[T any](svc MemoryService, key Key) (T, bool) {
	var zero T
	v, ok := svc.GetItem(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// GetBlobItem retrieves a typed value from a blob service.
func GetBlobItem[T any](ctx context.Context, svc BlobService, key BlobKey) (T, bool, error) {
	var result T
	found, err := svc.GetItem(ctx, key, &result)
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return result, true, nil
}
