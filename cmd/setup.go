package cmd

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/database"
	"github.com/anicoll/sensor-monitor/internal/pkg/remote"
)

type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	settings *config.SettingsStore
	store    database.Store
	source   remote.Source
}

func (e *environment) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("failed to close store", zap.Error(err))
		}
	}
	_ = e.logger.Sync() // flushes buffer, if any.
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// loadConfig reads the environment and lets explicitly set flags win.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(func(cfg *config.Config) {
		if c.IsSet("database-url") {
			cfg.DatabaseURL = c.String("database-url")
		}
		if c.IsSet("http-addr") {
			cfg.HTTPAddr = c.String("http-addr")
		}
		if c.IsSet("log-level") {
			cfg.LogLevel = c.String("log-level")
		}
		if c.IsSet("remote-kind") {
			cfg.RemoteCfg.Kind = config.RemoteKind(c.String("remote-kind"))
		}
		if c.IsSet("firebase-url") {
			cfg.RemoteCfg.FirebaseURL = c.String("firebase-url")
		}
		if c.IsSet("settings-path") {
			cfg.SettingsPath = c.String("settings-path")
		}
		if c.IsSet("retention-days") {
			cfg.RetentionDays = c.Int("retention-days")
		}
	})
}

// setupBase loads config and installs the global logger.
func setupBase(c *cli.Context) (*environment, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	settings, err := config.NewSettingsStore(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, settings: settings}, nil
}

// setup additionally opens the store and builds the remote source.
func setup(c *cli.Context) (*environment, error) {
	env, err := setupBase(c)
	if err != nil {
		return nil, err
	}
	env.store, err = database.Open(c.Context, env.cfg.DatabaseURL)
	if err != nil {
		env.close()
		return nil, err
	}
	env.source, err = remote.New(env.cfg.RemoteCfg, env.settings.Endpoint)
	if err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}
