package env

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Setenv("EES_TEST_ENDPOINT", "minio:9000")
	t.Setenv("EES_TEST_EMPTY", "")
	lookup := Lookup(map[string]string{"PREFIX": "ees"})

	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"${env:EES_TEST_ENDPOINT}", "minio:9000"},
		{"http://${env:EES_TEST_ENDPOINT}/x", "http://minio:9000/x"},
		{"${env:EES_TEST_MISSING:-localhost:9000}", "localhost:9000"},
		{"${env:EES_TEST_EMPTY:-fallback}", "fallback"},
		{"${env:EES_TEST_EMPTY:-}", ""},
		{"${PREFIX}-cache", "ees-cache"},
		{"${PREFIX}/${env:EES_TEST_ENDPOINT}", "ees/minio:9000"},
		{"${}", "${}"},
		{"${unterminated", "${unterminated"},
		{"cost: $5", "cost: $5"},
	}
	for _, tt := range tests {
		got, err := Expand(tt.input, lookup)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestExpandUnresolved(t *testing.T) {
	_, err := Expand("${env:EES_TEST_NOT_SET_ANYWHERE}", Lookup(nil))
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Contains(t, err.Error(), "env:EES_TEST_NOT_SET_ANYWHERE")
}

func TestParse(t *testing.T) {
	t.Setenv("EES_TEST_HOME", "/home/ees")
	lines, err := Parse([]byte(`
# minio
export MINIO_ACCESS_KEY=minioadmin
MINIO_SECRET_KEY="s3cr3t=="
CACHE_DIR='${env:EES_TEST_HOME}/cache'
BUCKET=${MINIO_ACCESS_KEY}-bucket
`))
	require.NoError(t, err)
	assert.Equal(t, []Line{
		{Key: "MINIO_ACCESS_KEY", Val: "minioadmin"},
		{Key: "MINIO_SECRET_KEY", Val: "s3cr3t=="},
		{Key: "CACHE_DIR", Val: "/home/ees/cache"},
		{Key: "BUCKET", Val: "minioadmin-bucket"},
	}, lines)

	_, err = Parse([]byte("NOT A LINE"))
	assert.Error(t, err)
	_, err = Parse([]byte("A=${MISSING}"))
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestParseFileAndApply(t *testing.T) {
	lines, err := ParseFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, lines)

	fn := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(fn, []byte("EES_TEST_APPLY_A=1\nEES_TEST_APPLY_B=2\n"), 0o600))
	lines, err = ParseFile(fn)
	require.NoError(t, err)

	t.Setenv("EES_TEST_APPLY_A", "kept")
	t.Setenv("EES_TEST_APPLY_B", "")
	os.Unsetenv("EES_TEST_APPLY_B")
	require.NoError(t, Apply(lines))
	assert.Equal(t, "kept", os.Getenv("EES_TEST_APPLY_A"))
	assert.Equal(t, "2", os.Getenv("EES_TEST_APPLY_B"))
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("log-format", "", "")
	cmd.Flags().String("otlp-url", "", "")
	cmd.Flags().Bool("no-telemetry", false, "")
	return cmd
}

func TestFlagOrEnv(t *testing.T) {
	cmd := newCommand()
	t.Setenv(OTLPURLEnv, "http://collector:4318")
	assert.Equal(t, "http://collector:4318", FlagOrEnv(cmd, "otlp-url", OTLPURLEnv, "default"))
	require.NoError(t, cmd.Flags().Set("otlp-url", "http://flag:4318"))
	assert.Equal(t, "http://flag:4318", FlagOrEnv(cmd, "otlp-url", OTLPURLEnv, "default"))
	assert.Equal(t, "default", FlagOrEnv(cmd, "unknown", "EES_TEST_UNKNOWN", "default"))
}

func TestLogLevel(t *testing.T) {
	cmd := newCommand()
	t.Setenv(LogLevelEnv, "debug")
	assert.Equal(t, logger.LevelDebug, LogLevel(cmd))
	require.NoError(t, cmd.Flags().Set("log-level", "WARN"))
	assert.Equal(t, logger.LevelWarn, LogLevel(cmd))
	require.NoError(t, cmd.Flags().Set("log-level", "nonsense"))
	assert.Equal(t, logger.LevelInfo, LogLevel(cmd))
}

func TestNewLoggerFormat(t *testing.T) {
	cmd := newCommand()
	t.Setenv(LogFormatEnv, "")
	assert.Equal(t, "*logger.consoleLogger", fmt.Sprintf("%T", NewLogger(cmd)))
	require.NoError(t, cmd.Flags().Set("log-format", "JSON"))
	assert.Equal(t, "*logger.jsonLogger", fmt.Sprintf("%T", NewLogger(cmd)))
}

func TestNewTelemetryDisabled(t *testing.T) {
	cmd := newCommand()
	require.NoError(t, cmd.Flags().Set("no-telemetry", "true"))
	t.Setenv(OTLPURLEnv, "http://collector:4318")
	log, shutdown, err := NewTelemetry(t.Context(), cmd, "cachectl")
	require.NoError(t, err)
	assert.NotNil(t, log)
	shutdown()

	cmd = newCommand()
	t.Setenv(OTLPURLEnv, "")
	log, shutdown, err = NewTelemetry(t.Context(), cmd, "cachectl")
	require.NoError(t, err)
	assert.NotNil(t, log)
	shutdown()
}

func TestNewTelemetryBadHeaders(t *testing.T) {
	cmd := newCommand()
	t.Setenv(OTLPURLEnv, "http://collector:4318")
	t.Setenv(OTLPHeadersEnv, "broken")
	_, _, err := NewTelemetry(t.Context(), cmd, "cachectl")
	assert.Error(t, err)
}
