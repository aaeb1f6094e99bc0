package env

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/dfe-analytical-services/ees-cache/telemetry"
	"github.com/spf13/cobra"
)

const (
	LogLevelEnv    = logger.LevelEnv
	LogFormatEnv   = "EES_CACHE_LOG_FORMAT"
	OTLPURLEnv     = "EES_CACHE_OTLP_URL"
	OTLPHeadersEnv = "EES_CACHE_OTLP_HEADERS"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", LogLevelEnv, "info"))
	return level
}

// NewLogger returns a logger at the level from --log-level, then
// EES_CACHE_LOG_LEVEL, then info. --log-format (or EES_CACHE_LOG_FORMAT)
// set to json selects one JSON document per line instead of the console.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	if strings.EqualFold(FlagOrEnv(cmd, "log-format", LogFormatEnv, "console"), "json") {
		return logger.NewJSONLogger(LogLevel(cmd))
	}
	return logger.NewConsoleLogger(LogLevel(cmd))
}

// NewTelemetry returns a logger and shutdown function. The cobra flags it expects are:
//
// --no-telemetry (boolean): if set, only the console logger is used
//
// --otlp-url (string): the base url of an OTLP/HTTP collector
//
// Headers for the collector are read from EES_CACHE_OTLP_HEADERS as
// comma separated key=value pairs.
func NewTelemetry(ctx context.Context, cmd *cobra.Command, serviceName string) (logger.Logger, telemetry.ShutdownFunc, error) {
	console := NewLogger(cmd)
	if noTelemetry, err := cmd.Flags().GetBool("no-telemetry"); err == nil && noTelemetry {
		return console, func() {}, nil
	}
	otlpURL := FlagOrEnv(cmd, "otlp-url", OTLPURLEnv, "")
	if otlpURL == "" {
		console.Debug("no otlp url configured, telemetry disabled")
		return console, func() {}, nil
	}
	headers, err := telemetry.ParseHeaders(os.Getenv(OTLPHeadersEnv))
	if err != nil {
		return nil, nil, err
	}
	otelLog, shutdown, err := telemetry.New(ctx, telemetry.Config{
		ServiceName: serviceName,
		URL:         otlpURL,
		Headers:     headers,
	}, console)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating telemetry")
	}
	return otelLog, shutdown, nil
}
