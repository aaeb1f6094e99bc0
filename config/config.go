// Package config loads cache configuration from YAML and builds a
// dispatcher from it.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/dfe-analytical-services/ees-cache/env"
	"gopkg.in/yaml.v3"
)

const (
	BlobTypeMemory = "memory"
	BlobTypeRedis  = "redis"
	BlobTypeMinio  = "minio"
)

type Config struct {
	Caching Caching `yaml:"caching"`
}

type Caching struct {
	// Enabled defaults to true when omitted.
	Enabled   *bool           `yaml:"enabled,omitempty"`
	Memory    MemorySection   `yaml:"memory"`
	Blob      BlobSection     `yaml:"blob"`
	Overrides OverrideSection `yaml:"overrides"`
}

func (c Caching) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type MemorySection struct {
	Services []MemoryService `yaml:"services"`
}

type MemoryService struct {
	Name            string    `yaml:"name"`
	CleanupInterval *Duration `yaml:"cleanupInterval,omitempty"`
	Shards          int       `yaml:"shards,omitempty"`
}

type BlobSection struct {
	Services []BlobService `yaml:"services"`
}

type BlobService struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// minio
	Endpoint      string   `yaml:"endpoint,omitempty"`
	AccessKey     string   `yaml:"accessKey,omitempty"`
	SecretKey     string   `yaml:"secretKey,omitempty"`
	UseSSL        bool     `yaml:"useSSL,omitempty"`
	Region        string   `yaml:"region,omitempty"`
	CreateBuckets bool     `yaml:"createBuckets,omitempty"`
	Containers    []string `yaml:"containers,omitempty"`

	// redis
	URL string `yaml:"url,omitempty"`

	Prefix       string   `yaml:"prefix,omitempty"`
	Codec        string   `yaml:"codec,omitempty"`
	QueryTimeout Duration `yaml:"queryTimeout,omitempty"`
	MaxItemSize  Size     `yaml:"maxItemSize,omitempty"`
	Breaker      Breaker  `yaml:"breaker,omitempty"`
	Retry        Retry    `yaml:"retry,omitempty"`
}

// Breaker fields left at zero keep the circuit breaker defaults.
type Breaker struct {
	MaxFailures      int      `yaml:"maxFailures,omitempty"`
	ResetTimeout     Duration `yaml:"resetTimeout,omitempty"`
	HalfOpenRequests int      `yaml:"halfOpenRequests,omitempty"`
	SuccessThreshold int      `yaml:"successThreshold,omitempty"`
	RequestTimeout   Duration `yaml:"requestTimeout,omitempty"`
}

// Retry fields left at zero keep the retry defaults. Disabled turns
// retries off entirely.
type Retry struct {
	Disabled       bool     `yaml:"disabled,omitempty"`
	MaxRetries     int      `yaml:"maxRetries,omitempty"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty"`
}

type OverrideSection struct {
	MemoryCache *cache.MemoryOverride `yaml:"memoryCache,omitempty"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}
	cfg, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates YAML. Every scalar may reference the
// environment as ${env:NAME} or ${env:NAME:-default}.
func Parse(buf []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(buf, &root); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "config: invalid yaml"), cache.ErrConfiguration)
	}
	cfg := &Config{}
	if root.Kind == 0 {
		return cfg, nil
	}
	if err := expandNode(&root); err != nil {
		return nil, errors.Mark(err, cache.ErrConfiguration)
	}
	if err := root.Decode(cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "config: decoding"), cache.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandNode(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		val, err := env.Expand(node.Value, env.Lookup(nil))
		if err != nil {
			return errors.Wrapf(err, "config: line %d", node.Line)
		}
		node.Value = val
		return nil
	}
	for _, child := range node.Content {
		if err := expandNode(child); err != nil {
			return err
		}
	}
	return nil
}

func invalidf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("config: "+format, args...), cache.ErrConfiguration)
}

func serviceName(name string) string {
	if name == "" {
		return cache.DefaultServiceName
	}
	return name
}

// Validate checks names are unique and each blob service has what its
// type needs. Errors are marked cache.ErrConfiguration.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, svc := range c.Caching.Memory.Services {
		name := serviceName(svc.Name)
		if seen[name] {
			return invalidf("duplicate memory service %q", name)
		}
		seen[name] = true
		if svc.Shards < 0 {
			return invalidf("memory service %q: shards must be >= 0", name)
		}
	}

	seen = make(map[string]bool)
	for _, svc := range c.Caching.Blob.Services {
		name := serviceName(svc.Name)
		if seen[name] {
			return invalidf("duplicate blob service %q", name)
		}
		seen[name] = true
		if err := svc.validate(); err != nil {
			return errors.Wrapf(err, "blob service %q", name)
		}
	}

	if ov := c.Caching.Overrides.MemoryCache; ov != nil {
		if err := ov.Validate(); err != nil {
			return errors.Wrap(err, "config: overrides.memoryCache")
		}
	}
	return nil
}

func (s BlobService) validate() error {
	switch strings.ToLower(s.Type) {
	case BlobTypeMemory:
	case BlobTypeRedis:
		if s.URL == "" {
			return invalidf("redis requires url")
		}
	case BlobTypeMinio:
		if s.Endpoint == "" {
			return invalidf("minio requires endpoint")
		}
		if s.AccessKey == "" || s.SecretKey == "" {
			return invalidf("minio requires accessKey and secretKey")
		}
		for _, c := range s.Containers {
			if err := cache.Container(c).Validate(); err != nil {
				return err
			}
		}
	default:
		return invalidf("unknown type %q, want memory, redis or minio", s.Type)
	}
	if _, err := cache.CodecByName(s.Codec); err != nil {
		return err
	}
	if s.QueryTimeout < 0 || s.Breaker.ResetTimeout < 0 || s.Breaker.RequestTimeout < 0 ||
		s.Retry.InitialBackoff < 0 || s.Retry.MaxBackoff < 0 {
		return invalidf("durations must be >= 0")
	}
	if s.MaxItemSize < 0 || s.Retry.MaxRetries < 0 || s.Breaker.MaxFailures < 0 {
		return invalidf("sizes and counts must be >= 0")
	}
	return nil
}
