package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

const (
	metaStoredAt  = "Stored-At"
	metaExpiresAt = "Expires-At"
)

// MinioConfig holds MinIO/S3 storage configuration.
type MinioConfig struct {
	// Endpoint is the server address (e.g., "localhost:9000")
	Endpoint string

	// AccessKey is the access key ID for authentication
	AccessKey string

	// SecretKey is the secret access key for authentication
	SecretKey string

	// UseSSL enables HTTPS connections
	UseSSL bool

	// Region is passed to the client and used when creating buckets
	Region string

	// BucketPrefix is prepended to each container name, separated by "-",
	// to form the bucket name
	BucketPrefix string

	// Client is an optional pre-configured client.
	// If provided, Endpoint/AccessKey/SecretKey are ignored
	Client *minio.Client

	// QueryTimeout bounds a single request. Defaults to DefaultQueryTimeout.
	QueryTimeout time.Duration
}

func (c *MinioConfig) validate() error {
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" {
		return errors.New("access key is required when client is not provided")
	}
	if c.SecretKey == "" {
		return errors.New("secret key is required when client is not provided")
	}
	return nil
}

// Minio stores each container in its own bucket. Store and expiry times
// travel as user metadata on the object.
type Minio struct {
	client       *minio.Client
	bucketPrefix string
	region       string
	queryTimeout time.Duration
}

var _ Storage = (*Minio)(nil)

// NewMinio creates a MinIO-backed storage.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid minio config")
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create minio client")
		}
	}
	timeout := cfg.QueryTimeout
	if timeout == 0 {
		timeout = DefaultQueryTimeout
	}
	return &Minio{
		client:       client,
		bucketPrefix: strings.Trim(cfg.BucketPrefix, "-"),
		region:       cfg.Region,
		queryTimeout: timeout,
	}, nil
}

// Bucket returns the bucket holding a container.
func (m *Minio) Bucket(container string) string {
	if m.bucketPrefix == "" {
		return container
	}
	return m.bucketPrefix + "-" + container
}

func (m *Minio) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if m.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, m.queryTimeout)
}

// EnsureBuckets creates any missing container buckets.
func (m *Minio) EnsureBuckets(ctx context.Context, containers ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, container := range containers {
		bucket := m.Bucket(container)
		g.Go(func() error {
			qctx, cancel := m.queryCtx(gctx)
			defer cancel()
			exists, err := m.client.BucketExists(qctx, bucket)
			if err != nil {
				return errors.Wrapf(translateMinio(err), "checking bucket %s", bucket)
			}
			if exists {
				return nil
			}
			err = m.client.MakeBucket(qctx, bucket, minio.MakeBucketOptions{Region: m.region})
			if err != nil {
				code := minio.ToErrorResponse(err).Code
				if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
					return nil
				}
				return errors.Wrapf(err, "creating bucket %s", bucket)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Minio) Put(ctx context.Context, container, path string, data []byte, meta Metadata) error {
	userMeta := map[string]string{metaStoredAt: formatTime(meta.StoredAt)}
	if meta.ExpiresAt != nil {
		userMeta[metaExpiresAt] = formatTime(*meta.ExpiresAt)
	}
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()
	bucket := m.Bucket(container)
	_, err := m.client.PutObject(qctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: userMeta,
	})
	if err != nil {
		return errors.Wrapf(translateMinio(err), "minio put %s/%s", bucket, path)
	}
	return nil
}

func (m *Minio) Get(ctx context.Context, container, path string) ([]byte, Metadata, error) {
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()
	bucket := m.Bucket(container)
	obj, err := m.client.GetObject(qctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, Metadata{}, m.getError(err, bucket, path)
	}
	defer func() {
		_ = obj.Close()
	}()
	info, err := obj.Stat()
	if err != nil {
		return nil, Metadata{}, m.getError(err, bucket, path)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, Metadata{}, m.getError(err, bucket, path)
	}
	meta, err := metadataFromObject(info)
	if err != nil {
		return nil, Metadata{}, errors.Wrapf(err, "minio get %s/%s", bucket, path)
	}
	return data, meta, nil
}

func (m *Minio) getError(err error, bucket, path string) error {
	err = translateMinio(err)
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return errors.Wrapf(err, "minio get %s/%s", bucket, path)
}

func (m *Minio) Delete(ctx context.Context, container, path string) error {
	qctx, cancel := m.queryCtx(ctx)
	defer cancel()
	bucket := m.Bucket(container)
	err := translateMinio(m.client.RemoveObject(qctx, bucket, path, minio.RemoveObjectOptions{}))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrapf(err, "minio delete %s/%s", bucket, path)
	}
	return nil
}

// DeletePrefix lists every object under prefix and removes them with the
// batch delete API.
func (m *Minio) DeletePrefix(ctx context.Context, container, prefix string) error {
	bucket := m.Bucket(container)
	objectsCh := make(chan minio.ObjectInfo, 100)

	var listErr error
	go func() {
		defer close(objectsCh)
		for object := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				listErr = object.Err
				return
			}
			select {
			case objectsCh <- object:
			case <-ctx.Done():
				listErr = ctx.Err()
				return
			}
		}
	}()

	var removeErrs error
	for result := range m.client.RemoveObjects(ctx, bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			removeErrs = errors.CombineErrors(removeErrs, errors.Wrapf(result.Err, "removing %s", result.ObjectName))
		}
	}

	if listErr != nil {
		listErr = translateMinio(listErr)
		if errors.Is(listErr, ErrNotFound) {
			return removeErrs
		}
		return errors.Wrapf(listErr, "minio list %s/%s", bucket, prefix)
	}
	return removeErrs
}

func metadataFromObject(info minio.ObjectInfo) (Metadata, error) {
	meta := Metadata{ContentType: info.ContentType, StoredAt: info.LastModified}
	if at := lookupMeta(info.UserMetadata, metaStoredAt); at != "" {
		storedAt, err := parseTime(at)
		if err != nil {
			return Metadata{}, err
		}
		meta.StoredAt = storedAt
	}
	if exp := lookupMeta(info.UserMetadata, metaExpiresAt); exp != "" {
		expiresAt, err := parseTime(exp)
		if err != nil {
			return Metadata{}, err
		}
		meta.ExpiresAt = &expiresAt
	}
	return meta, nil
}

// lookupMeta finds a user metadata value regardless of the header
// canonicalisation applied by the server or the SDK.
func lookupMeta(userMeta map[string]string, name string) string {
	for k, v := range userMeta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// translateMinio maps missing keys and buckets to ErrNotFound.
func translateMinio(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Mark(err, ErrNotFound)
	}
	return err
}
