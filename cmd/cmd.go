package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/sensor-monitor/internal/pkg/aggregator"
	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/database"
	"github.com/anicoll/sensor-monitor/internal/pkg/ingest"
	"github.com/anicoll/sensor-monitor/internal/pkg/mqtt"
	"github.com/anicoll/sensor-monitor/internal/pkg/publisher"
	"github.com/anicoll/sensor-monitor/internal/pkg/refresh"
	"github.com/anicoll/sensor-monitor/internal/pkg/retention"
	"github.com/anicoll/sensor-monitor/internal/pkg/server"
	"github.com/anicoll/sensor-monitor/internal/pkg/workers"
)

const (
	poolQueueSize   = 64
	probeTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// ServeCommand runs the collector and the API until interrupted.
func ServeCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.close()

	return run(c.Context, env.cfg, env.settings, env.source, env.store)
}

func run(ctx context.Context, cfg *config.Config, settings *config.SettingsStore, source RemoteSource, store database.Store) error {
	logger := zap.L()
	errorChan := make(chan error, 1000)
	eg, ctx := errgroup.WithContext(ctx)

	notifier := database.NewNotifier(store)
	pub := publisher.New()
	if err := pub.Register("store", notifier); err != nil {
		return err
	}
	if cfg.MqttCfg.Host != "" {
		mqttSvc := mqtt.New(mqtt.NewClient(cfg.MqttCfg), cfg.MqttCfg.DeviceName)
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		defer mqttSvc.Close()
		if err := pub.RegisterMirror("mqtt", mqttSvc); err != nil {
			return err
		}
	}

	pool := workers.New(ctx, cfg.WorkerPoolSize, poolQueueSize)
	defer pool.Close()

	ingestSvc := ingest.New(source, pool, pub)
	agg := aggregator.New(notifier)
	eg.Go(func() error {
		return agg.Run(ctx)
	})

	cleanup := retention.Job{Store: notifier, Horizon: cfg.RetentionHorizon()}
	scheduler := refresh.New(ctx, refresh.WithConstraint(refresh.NetworkConnected(source.Addr, probeTimeout)))
	syncJob := refresh.SyncJob(ctx, ingestSvc, cleanup)
	if _, err := scheduler.EnqueueUniquePeriodic(refresh.SyncJobName, settings.Get().UpdateInterval(), refresh.Keep, syncJob); err != nil {
		return err
	}
	settings.OnChange(func(old, updated config.Settings) {
		if old.UpdateIntervalMinutes != updated.UpdateIntervalMinutes {
			if _, err := scheduler.EnqueueUniquePeriodic(refresh.SyncJobName, updated.UpdateInterval(), refresh.Replace, syncJob); err != nil {
				errorChan <- err
			}
		}
		if old.Endpoint != updated.Endpoint {
			ingestSvc.Stop()
			ingestSvc.SubscribeRealtime(ctx)
		}
	})
	scheduler.Start()
	ingestSvc.SubscribeRealtime(ctx)

	auth, err := server.NewAuth(cfg.AuthCfg)
	if err != nil {
		return err
	}
	handler, err := server.New(server.Deps{
		Store:    notifier,
		Latest:   agg,
		Ingest:   ingestSvc,
		Settings: settings,
		Schedule: scheduler,
		Auth:     auth,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      handler,
		Addr:         cfg.HTTPAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	eg.Go(func() error {
		logger.Info("api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		scheduler.Cancel(refresh.SyncJobName)
		scheduler.Stop()
		ingestSvc.Stop()
		return err
	})

	eg.Go(func() error {
		// handle any async errors from services
		for {
			select {
			case err := <-errorChan:
				logger.Error("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}
