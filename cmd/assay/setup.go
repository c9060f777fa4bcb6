package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/assay"
	"github.com/farcloser/assay/internal/arbiter"
	"github.com/farcloser/assay/internal/config"
)

var errNoEnvironment = errors.New("command environment not initialized")

type environmentKey struct{}

// environment is what every command needs: the effective configuration and the logger built from it.
type environment struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, resolved, exists, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}

	if cmd.IsSet("config") && !exists {
		return ctx, fmt.Errorf("config file %s not found", resolved)
	}

	if err = applyOverrides(cmd, cfg); err != nil {
		return ctx, err
	}

	logger := newLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Debug("configuration loaded", "path", resolved, "found", exists, "store", cfg.Paths.Store)

	return context.WithValue(ctx, environmentKey{}, &environment{cfg: cfg, configPath: resolved, logger: logger}), nil
}

func applyOverrides(cmd *cli.Command, cfg *config.Config) error {
	var err error

	if cmd.IsSet("store") {
		if cfg.Paths.Store, err = config.ExpandPath(cmd.String("store")); err != nil {
			return err
		}
	}

	if cmd.IsSet("model") {
		if cfg.Paths.Model, err = config.ExpandPath(cmd.String("model")); err != nil {
			return err
		}
	}

	if cmd.IsSet("llm-endpoint") {
		cfg.LLM.Endpoint = cmd.String("llm-endpoint")
	}

	if cmd.IsSet("log-level") {
		cfg.Logging.Level = cmd.String("log-level")
	}

	if cmd.IsSet("log-format") {
		cfg.Logging.Format = cmd.String("log-format")
	}

	return cfg.Validate()
}

func fromContext(ctx context.Context) (*environment, error) {
	env, ok := ctx.Value(environmentKey{}).(*environment)
	if !ok {
		return nil, errNoEnvironment
	}

	return env, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level

	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func (env *environment) options() assay.Options {
	a := env.cfg.Analysis

	return assay.Options{
		GrayZone:        assay.GrayZone{Low: a.GrayZoneLow, High: a.GrayZoneHigh},
		BanThreshold:    a.BanThreshold,
		Weights:         a.Weights,
		SpectralWeights: a.SpectralWeights,
		ClipThreshold:   a.ClipThreshold,
		Parallelism:     a.Parallelism,
		Logger:          env.logger,
	}
}

func (env *environment) arbiter() arbiter.Arbiter {
	if env.cfg.LLM.Endpoint == "" {
		env.logger.Debug("arbiter disabled, gray-zone files will be marked AI_FAILED")

		return arbiter.Disabled{}
	}

	return arbiter.NewClient(arbiter.Config{
		Endpoint: env.cfg.LLM.Endpoint,
		Model:    env.cfg.LLM.Model,
		Timeout:  time.Duration(env.cfg.LLM.TimeoutSeconds) * time.Second,
		ForceCPU: env.cfg.Runtime.ForceCPU,
	}, arbiter.WithLogger(env.logger))
}
