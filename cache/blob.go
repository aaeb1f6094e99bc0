package cache

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/blobstore"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/jonboulle/clockwork"
)

// Blob is the BlobService over a blobstore.Storage. Values are encoded with
// the configured codec; expiry is recorded in blob metadata and checked on
// every read.
type Blob struct {
	storage     blobstore.Storage
	codec       Codec
	logger      logger.Logger
	clock       clockwork.Clock
	maxItemSize int64
}

var _ BlobService = (*Blob)(nil)

// BlobOption configures a Blob service.
type BlobOption func(*Blob)

// WithCodec sets the codec used for writes. Reads pick the codec matching
// the stored content type. Defaults to JSONCodec.
func WithCodec(codec Codec) BlobOption {
	return func(b *Blob) { b.codec = codec }
}

func WithBlobLogger(log logger.Logger) BlobOption {
	return func(b *Blob) { b.logger = log }
}

// WithBlobClock replaces the wall clock, for tests.
func WithBlobClock(clock clockwork.Clock) BlobOption {
	return func(b *Blob) { b.clock = clock }
}

// WithMaxItemSize rejects encoded values larger than n bytes. Zero means
// no limit.
func WithMaxItemSize(n int64) BlobOption {
	return func(b *Blob) { b.maxItemSize = n }
}

// NewBlob returns a BlobService storing values in storage.
func NewBlob(storage blobstore.Storage, opts ...BlobOption) *Blob {
	b := &Blob{
		storage: storage,
		codec:   JSONCodec,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.NewConsoleLogger(logger.LevelInfo)
	}
	b.logger = b.logger.WithPrefix("[blob-cache]")
	return b
}

func (b *Blob) GetItem(ctx context.Context, key BlobKey, target any) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	container, path := string(key.Container()), key.Key()
	data, meta, err := b.storage.Get(ctx, container, path)
	if blobstore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, translateIOError(ctx, err, "blob cache get "+container+"/"+path)
	}
	if meta.Expired(b.clock.Now()) {
		b.logger.Trace("%s/%s expired at %s", container, path, meta.ExpiresAt)
		return false, nil
	}
	codec := codecForContentType(meta.ContentType, b.codec)
	if err := codec.Unmarshal(data, target); err != nil {
		b.logger.Warn("treating %s/%s as a miss, cannot decode as %T: %s", container, path, target, err)
		return false, nil
	}
	return true, nil
}

func (b *Blob) SetItem(ctx context.Context, key BlobKey, value any, policy *ExpiryPolicy) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if policy != nil {
		if err := policy.Validate(); err != nil {
			return err
		}
	}
	container, path := string(key.Container()), key.Key()
	data, err := b.codec.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "blob cache encode %s/%s", container, path)
	}
	if b.maxItemSize > 0 && int64(len(data)) > b.maxItemSize {
		return errors.Wrapf(ErrItemTooLarge, "%s/%s is %d bytes, limit %d", container, path, len(data), b.maxItemSize)
	}
	now := b.clock.Now().UTC()
	meta := blobstore.Metadata{ContentType: b.codec.ContentType(), StoredAt: now}
	if policy != nil {
		expiresAt := policy.EffectiveExpiry(now)
		meta.ExpiresAt = &expiresAt
	}
	if err := b.storage.Put(ctx, container, path, data, meta); err != nil {
		return translateIOError(ctx, err, "blob cache set "+container+"/"+path)
	}
	return nil
}

func (b *Blob) DeleteItem(ctx context.Context, key BlobKey) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	container, path := string(key.Container()), key.Key()
	if err := b.storage.Delete(ctx, container, path); err != nil {
		return translateIOError(ctx, err, "blob cache delete "+container+"/"+path)
	}
	return nil
}

// DeleteCacheFolder removes everything below the folder named by the key's
// path. The folder itself need not exist.
func (b *Blob) DeleteCacheFolder(ctx context.Context, folder BlobKey) error {
	if err := ValidateKey(folder); err != nil {
		return err
	}
	container := string(folder.Container())
	prefix := strings.TrimSuffix(folder.Key(), "/") + "/"
	if err := b.storage.DeletePrefix(ctx, container, prefix); err != nil {
		return translateIOError(ctx, err, "blob cache delete folder "+container+"/"+prefix)
	}
	b.logger.Debug("deleted cache folder %s/%s", container, prefix)
	return nil
}
