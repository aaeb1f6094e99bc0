package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/dfe-analytical-services/ees-cache/config"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/dfe-analytical-services/ees-cache/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	tui.HasTTY = false
}

// seed writes a config pointing at a fresh miniredis and stores blobs
// through a dispatcher built from it.
func seed(t *testing.T, blobs map[string]any) (string, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	yaml := "caching:\n  blob:\n    services:\n      - name: shared\n        type: redis\n        url: redis://" + mr.Addr() + "/0\n        prefix: ees\n"
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	d, closer, err := config.Build(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	defer closer.Close()
	svc, ok := d.Blob().Service("shared")
	require.True(t, ok)
	for p, v := range blobs {
		container, rest, _ := strings.Cut(p, "/")
		require.NoError(t, svc.SetItem(context.Background(), cache.NewBlobKey(cache.Container(container), rest), v, nil))
	}
	return path, mr
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--no-telemetry", "--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestGet(t *testing.T) {
	path, _ := seed(t, map[string]any{
		"publiccontent/publication-tree.json": map[string]any{"themes": []string{"Pupils and schools"}},
	})
	out, _, err := run(t, "--config", path, "get", "shared", "publiccontent", "publication-tree.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"themes":["Pupils and schools"]}`, out)

	out, errOut, err := run(t, "--config", path, "get", "shared", "publiccontent", "missing.json")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "nothing cached at publiccontent/missing.json")
}

func TestDeleteAndDeleteFolder(t *testing.T) {
	path, mr := seed(t, map[string]any{
		"cache/releases/abc/release.json":     "r",
		"cache/releases/abc/data/table.json":  "t",
		"cache/releases/abcd/release.json":    "other",
		"publiccontent/publication-tree.json": "tree",
	})

	out, _, err := run(t, "--config", path, "delete", "-", "publiccontent", "publication-tree.json")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted publiccontent/publication-tree.json")
	assert.False(t, mr.Exists("ees:publiccontent:publication-tree.json"))

	out, _, err = run(t, "--config", path, "delete-folder", "shared", "cache", "releases/abc")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted everything below cache/releases/abc/")
	assert.Equal(t, []string{"ees:cache:releases/abcd/release.json"}, mr.Keys())
}

func TestUnknownService(t *testing.T) {
	path, _ := seed(t, nil)
	_, _, err := run(t, "--config", path, "get", "nope", "cache", "a.json")
	require.Error(t, err)
	assert.True(t, cache.IsConfigurationError(err))
	assert.Contains(t, err.Error(), `no blob service named "nope"`)
}

func TestMissingConfig(t *testing.T) {
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "get", "-", "cache", "a.json")
	assert.Error(t, err)
}

func TestStorageUnavailable(t *testing.T) {
	path, mr := seed(t, nil)
	mr.Close()
	_, _, err := run(t, "--config", path, "--timeout", "200ms", "get", "shared", "cache", "a.json")
	assert.Error(t, err)
}

func TestExpiry(t *testing.T) {
	out, _, err := run(t, "expiry", "--duration", "1h", "--schedule", "HalfHourly", "--at", "2024-03-01T14:27:00Z")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Stored\tPolicy\tNext boundary\tExpires\tLifetime", lines[0])
	assert.Equal(t, "2024-03-01T14:27:00Z\t1h0m0s/HalfHourly\t2024-03-01T14:30:00Z\t2024-03-01T14:30:00Z\t3m", lines[1])

	out, _, err = run(t, "expiry", "--duration", "10m", "--at", "2024-03-01T14:27:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "\t-\t2024-03-01T14:37:00Z\t10m")
}

func TestExpiryInvalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"expiry", "--duration", "soon"},
		{"expiry", "--schedule", "weekly"},
		{"expiry", "--at", "yesterday"},
		{"expiry", "--duration", "-5m"},
	} {
		_, _, err := run(t, args...)
		require.Error(t, err, args)
		assert.True(t, cache.IsConfigurationError(err), args)
	}
}
