package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/discovery"
	"github.com/anicoll/sensor-monitor/internal/pkg/ingest"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
	"github.com/anicoll/sensor-monitor/internal/pkg/publisher"
	"github.com/anicoll/sensor-monitor/internal/pkg/retention"
	"github.com/anicoll/sensor-monitor/internal/pkg/workers"
	"github.com/anicoll/sensor-monitor/pkg/hasher"
)

var errMissingArg = errors.New("missing argument")

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FetchCommand reads one snapshot and waits until it is stored.
func FetchCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.close()

	pub := publisher.New()
	if err := pub.Register("store", env.store); err != nil {
		return err
	}
	pool := workers.New(c.Context, 1, 1)
	svc := ingest.New(env.source, pool, pub)
	fetchErr := svc.FetchOnce(c.Context)
	if err := pool.Close(); err != nil {
		return err
	}
	if fetchErr != nil {
		return fetchErr
	}
	return printJSON(c, svc.State())
}

func CleanupCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.close()

	deleted, err := retention.Job{Store: env.store, Horizon: env.cfg.RetentionHorizon()}.Run(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d readings\n", deleted)
	return nil
}

// HistoryCommand prints readings for one sensor type, either the last --days
// or the newest --limit rows.
func HistoryCommand(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("%w: sensor type", errMissingArg)
	}
	sensorType, err := model.ParseSensorType(c.Args().First())
	if err != nil {
		return err
	}
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.close()

	var readings model.Readings
	if c.IsSet("limit") {
		readings, err = env.store.GetHistory(c.Context, sensorType, c.Int("limit"))
	} else {
		to := time.Now()
		readings, err = env.store.GetReadings(c.Context, sensorType, to.AddDate(0, 0, -c.Int("days")), to)
	}
	if err != nil {
		return err
	}
	for _, r := range readings {
		fmt.Fprintf(c.App.Writer, "%s\t%g %s\n", r.Timestamp.Local().Format(time.DateTime), r.Value, r.Unit)
	}
	return nil
}

func LatestCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.close()

	readings, err := env.store.GetLatestReadings(c.Context)
	if err != nil {
		return err
	}
	for _, r := range readings {
		fmt.Fprintf(c.App.Writer, "%-14s %8g %-3s %s\n", r.SensorType.DisplayName(), r.Value, r.Unit, r.Timestamp.Local().Format(time.DateTime))
	}
	return nil
}

func SettingsShowCommand(c *cli.Context) error {
	env, err := setupBase(c)
	if err != nil {
		return err
	}
	defer env.close()
	return printJSON(c, env.settings.Get())
}

func SettingsSetCommand(c *cli.Context) error {
	env, err := setupBase(c)
	if err != nil {
		return err
	}
	defer env.close()

	updated := env.settings.Get()
	if c.IsSet("endpoint") {
		updated.Endpoint = c.String("endpoint")
	}
	if c.IsSet("interval") {
		updated.UpdateIntervalMinutes = c.Int("interval")
	}
	if err := env.settings.Update(updated); err != nil {
		return err
	}
	return printJSON(c, updated)
}

// DiscoverCommand lists ESP32 rigs on the local network.
func DiscoverCommand(c *cli.Context) error {
	env, err := setupBase(c)
	if err != nil {
		return err
	}
	defer env.close()

	devices, err := discovery.Browse(c.Context, c.Duration("timeout"))
	if err != nil {
		return err
	}
	if err := printJSON(c, devices); err != nil {
		return err
	}
	if !c.Bool("save") || len(devices) == 0 {
		return nil
	}
	updated := env.settings.Get()
	updated.Endpoint = devices[0].Endpoint()
	if err := env.settings.Update(updated); err != nil {
		return err
	}
	env.logger.Info("endpoint saved", zap.String("endpoint", updated.Endpoint))
	return nil
}

// MigrateCommand brings the schema up to date and exits.
func MigrateCommand(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.close()
	env.logger.Info("database schema up to date")
	return nil
}

// HashPasswordCommand prints the bcrypt hash to put in API_PASSWORD_HASH.
func HashPasswordCommand(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("%w: password", errMissingArg)
	}
	hash, err := hasher.HashPassword(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hash)
	return nil
}

