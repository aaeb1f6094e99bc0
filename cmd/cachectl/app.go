package main

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/dfe-analytical-services/ees-cache/config"
	"github.com/dfe-analytical-services/ees-cache/env"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/dfe-analytical-services/ees-cache/telemetry"
	"github.com/spf13/cobra"
)

const (
	serviceName   = "cachectl"
	configEnv     = "EES_CACHE_CONFIG"
	defaultConfig = "cache.yaml"
)

// app holds what a command opened so it can be released afterwards.
type app struct {
	log        logger.Logger
	dispatcher *cache.Dispatcher
	closer     io.Closer
	shutdown   telemetry.ShutdownFunc
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Inspect and invalidate the Explore Education Statistics content cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "cache config file (env "+configEnv+", default "+defaultConfig+")")
	flags.String("env-file", ".env", "file of KEY=value pairs loaded before the config")
	flags.String("log-level", "", "trace, debug, info, warn or error (env "+env.LogLevelEnv+")")
	flags.String("log-format", "", "console or json (env "+env.LogFormatEnv+")")
	flags.Bool("no-telemetry", false, "disable OTLP export")
	flags.String("otlp-url", "", "OTLP/HTTP collector url (env "+env.OTLPURLEnv+")")
	flags.Duration("timeout", 30*time.Second, "give up on storage after this long")

	root.AddCommand(
		newGetCommand(a),
		newDeleteCommand(a),
		newDeleteFolderCommand(a),
		newExpiryCommand(),
	)
	return root
}

// open loads the env file and config and builds the dispatcher.
func (a *app) open(cmd *cobra.Command) error {
	if fn, _ := cmd.Flags().GetString("env-file"); fn != "" {
		lines, err := env.ParseFile(fn)
		if err != nil {
			return err
		}
		if err := env.Apply(lines); err != nil {
			return err
		}
	}
	log, shutdown, err := env.NewTelemetry(cmd.Context(), cmd, serviceName)
	if err != nil {
		return err
	}
	a.log, a.shutdown = log, shutdown

	path := env.FlagOrEnv(cmd, "config", configEnv, defaultConfig)
	cfg, err := config.Load(path)
	if err != nil {
		a.close()
		return err
	}
	d, closer, err := config.Build(cmd.Context(), cfg, log)
	if err != nil {
		a.close()
		return err
	}
	a.dispatcher, a.closer = d, closer
	log.Debug("loaded %s with blob services %v", path, d.Blob().Names())
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.log.Warn("error closing cache services: %s", err)
		}
		a.closer = nil
	}
	if a.shutdown != nil {
		a.shutdown()
		a.shutdown = nil
	}
}

func (a *app) blobService(name string) (cache.BlobService, error) {
	if name == "-" {
		name = ""
	}
	svc, ok := a.dispatcher.Blob().Service(name)
	if !ok {
		return nil, errors.Mark(errors.Newf("no blob service named %q, have %v", name, a.dispatcher.Blob().Names()), cache.ErrConfiguration)
	}
	return svc, nil
}
