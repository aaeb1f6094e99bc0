package cache

import (
	"context"
)

type directiveConfig struct {
	serviceName string
	forceUpdate bool
	priority    uint8
	blobExpiry  *ExpiryPolicy
	overridable bool
}

// DirectiveOption configures a memory or blob directive.
type DirectiveOption func(*directiveConfig)

// WithServiceName selects a named service instead of the first registered.
func WithServiceName(name string) DirectiveOption {
	return func(c *directiveConfig) { c.serviceName = name }
}

// WithForceUpdate makes the directive skip its lookup and always overwrite
// the cached value with a fresh result.
func WithForceUpdate() DirectiveOption {
	return func(c *directiveConfig) { c.forceUpdate = true }
}

// WithPriority orders directives on the same call; higher is consulted first.
func WithPriority(p uint8) DirectiveOption {
	return func(c *directiveConfig) { c.priority = p }
}

// WithBlobExpiry gives blob entries an expiry. Blob entries never expire
// without it. Only valid on blob directives.
func WithBlobExpiry(policy ExpiryPolicy) DirectiveOption {
	return func(c *directiveConfig) { c.blobExpiry = &policy }
}

// WithOverridable lets the dispatcher's memory override replace the
// directive's policy. Only valid on memory directives.
func WithOverridable() DirectiveOption {
	return func(c *directiveConfig) { c.overridable = true }
}

func applyDirectiveOptions(opts []DirectiveOption) directiveConfig {
	var cfg directiveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// MemoryDirective caches results of an operation in a MemoryService, keyed
// by K. Build one per operation, typically as a package-level variable.
type MemoryDirective[K Key] struct {
	cfg    directiveConfig
	policy ExpiryPolicy
}

// NewMemoryDirective validates policy and options.
func NewMemoryDirective[K Key](policy ExpiryPolicy, opts ...DirectiveOption) (*MemoryDirective[K], error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	cfg := applyDirectiveOptions(opts)
	if cfg.blobExpiry != nil {
		return nil, configErrorf("cache: blob expiry set on a memory directive")
	}
	return &MemoryDirective[K]{cfg: cfg, policy: policy}, nil
}

// MustMemoryDirective is NewMemoryDirective for package-level variables.
func MustMemoryDirective[K Key](policy ExpiryPolicy, opts ...DirectiveOption) *MemoryDirective[K] {
	d, err := NewMemoryDirective[K](policy, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Policy returns the directive's own policy, before any override.
func (d *MemoryDirective[K]) Policy() ExpiryPolicy { return d.policy }

func (d *MemoryDirective[K]) ForceUpdate() bool { return d.cfg.forceUpdate }

func (d *MemoryDirective[K]) Priority() uint8 { return d.cfg.priority }

// For binds the directive to the key of one call.
func (d *MemoryDirective[K]) For(key K) MemoryBinding {
	return MemoryBinding{key: key, policy: d.policy, cfg: d.cfg}
}

// BlobDirective caches results of an operation in a BlobService, keyed by K.
type BlobDirective[K BlobKey] struct {
	cfg directiveConfig
}

// NewBlobDirective validates the options.
func NewBlobDirective[K BlobKey](opts ...DirectiveOption) (*BlobDirective[K], error) {
	cfg := applyDirectiveOptions(opts)
	if cfg.overridable {
		return nil, configErrorf("cache: blob directives cannot be overridable")
	}
	if cfg.blobExpiry != nil {
		if err := cfg.blobExpiry.Validate(); err != nil {
			return nil, err
		}
	}
	return &BlobDirective[K]{cfg: cfg}, nil
}

// MustBlobDirective is NewBlobDirective for package-level variables.
func MustBlobDirective[K BlobKey](opts ...DirectiveOption) *BlobDirective[K] {
	d, err := NewBlobDirective[K](opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *BlobDirective[K]) ForceUpdate() bool { return d.cfg.forceUpdate }

func (d *BlobDirective[K]) Priority() uint8 { return d.cfg.priority }

// For binds the directive to the key of one call.
func (d *BlobDirective[K]) For(key K) BlobBinding {
	return BlobBinding{key: key, cfg: d.cfg}
}

// Binding is a directive applied to one call's key. Bindings are consumed
// by Exec and ExecSync.
type Binding interface {
	backend() string
	config() directiveConfig
	cacheKey() Key
	resolved(d *Dispatcher) bool
	lookup(ctx context.Context, d *Dispatcher, dst sink) (bool, error)
	store(ctx context.Context, d *Dispatcher, value any) error
}

const (
	backendMemory = "memory"
	backendBlob   = "blob"
)

// MemoryBinding is a MemoryDirective bound to a key.
type MemoryBinding struct {
	key    Key
	policy ExpiryPolicy
	cfg    directiveConfig
}

var _ Binding = MemoryBinding{}

func (b MemoryBinding) backend() string         { return backendMemory }
func (b MemoryBinding) config() directiveConfig { return b.cfg }
func (b MemoryBinding) cacheKey() Key           { return b.key }

func (b MemoryBinding) resolved(d *Dispatcher) bool {
	_, ok := d.memory.Service(b.cfg.serviceName)
	return ok
}

func (b MemoryBinding) lookup(_ context.Context, d *Dispatcher, dst sink) (bool, error) {
	svc, ok := d.memory.Service(b.cfg.serviceName)
	if !ok {
		return false, nil
	}
	v, found := svc.GetItem(b.key)
	if !found {
		return false, nil
	}
	if !dst.assign(v) {
		d.logger.Warn("treating memory entry %s as a miss, holds %T not %s", b.key.Key(), v, dst.typeName())
		return false, nil
	}
	return true, nil
}

func (b MemoryBinding) store(_ context.Context, d *Dispatcher, value any) error {
	svc, ok := d.memory.Service(b.cfg.serviceName)
	if !ok {
		return nil
	}
	policy := b.policy
	if b.cfg.overridable {
		policy = d.overrides.ApplyMemory(policy)
	}
	return svc.SetItem(b.key, value, policy)
}

// BlobBinding is a BlobDirective bound to a key.
type BlobBinding struct {
	key BlobKey
	cfg directiveConfig
}

var _ Binding = BlobBinding{}

func (b BlobBinding) backend() string         { return backendBlob }
func (b BlobBinding) config() directiveConfig { return b.cfg }
func (b BlobBinding) cacheKey() Key           { return b.key }

func (b BlobBinding) resolved(d *Dispatcher) bool {
	_, ok := d.blob.Service(b.cfg.serviceName)
	return ok
}

func (b BlobBinding) lookup(ctx context.Context, d *Dispatcher, dst sink) (bool, error) {
	svc, ok := d.blob.Service(b.cfg.serviceName)
	if !ok {
		return false, nil
	}
	return dst.decode(func(target any) (bool, error) {
		return svc.GetItem(ctx, b.key, target)
	})
}

func (b BlobBinding) store(ctx context.Context, d *Dispatcher, value any) error {
	svc, ok := d.blob.Service(b.cfg.serviceName)
	if !ok {
		return nil
	}
	return svc.SetItem(ctx, b.key, value, b.cfg.blobExpiry)
}
