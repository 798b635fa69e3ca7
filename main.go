package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/anicoll/sensor-monitor/cmd"
	"github.com/anicoll/sensor-monitor/internal/pkg/discovery"
)

// loadDotEnv loads the first .env found in the working directory or its parent.
func loadDotEnv() {
	workDir, err := os.Getwd()
	if err != nil {
		return
	}
	for _, path := range []string{filepath.Join(workDir, ".env"), filepath.Join(filepath.Dir(workDir), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			fmt.Fprintf(os.Stderr, "Loaded environment from: %s\n", path)
			return
		}
	}
}

func main() {
	loadDotEnv()

	app := &cli.App{
		Name:   "sensor-monitor",
		Usage:  "collector and API for an ESP32 environmental sensor rig",
		Action: cmd.ServeCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Usage:   "postgres:// url or sqlite file path",
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
			&cli.StringFlag{
				Name:    "remote-kind",
				EnvVars: []string{"REMOTE_KIND"},
				Value:   "firebase",
				Usage:   "firebase or esp32",
			},
			&cli.StringFlag{
				Name:    "firebase-url",
				EnvVars: []string{"FIREBASE_URL"},
			},
			&cli.StringFlag{
				Name:    "settings-path",
				EnvVars: []string{"SETTINGS_PATH"},
			},
			&cli.IntFlag{
				Name:    "retention-days",
				EnvVars: []string{"RETENTION_DAYS"},
				Value:   30,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the collector, scheduler and HTTP API",
				Action: cmd.ServeCommand,
			},
			{
				Name:   "fetch",
				Usage:  "read the newest snapshot once and store it",
				Action: cmd.FetchCommand,
			},
			{
				Name:   "cleanup",
				Usage:  "delete readings older than the retention horizon",
				Action: cmd.CleanupCommand,
			},
			{
				Name:      "history",
				Usage:     "print stored readings for a sensor type",
				ArgsUsage: "<sensor-type>",
				Action:    cmd.HistoryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Value: 1},
					&cli.IntFlag{Name: "limit"},
				},
			},
			{
				Name:   "latest",
				Usage:  "print the newest reading per sensor type",
				Action: cmd.LatestCommand,
			},
			{
				Name:  "settings",
				Usage: "show or edit the device endpoint and update interval",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Action: cmd.SettingsShowCommand,
					},
					{
						Name:   "set",
						Action: cmd.SettingsSetCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "endpoint"},
							&cli.IntFlag{Name: "interval", Usage: "update interval in minutes"},
						},
					},
				},
			},
			{
				Name:   "discover",
				Usage:  "find ESP32 rigs on the local network over mDNS",
				Action: cmd.DiscoverCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Value: discovery.DefaultTimeout},
					&cli.BoolFlag{Name: "save", Usage: "store the first device as the endpoint"},
				},
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: cmd.MigrateCommand,
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for API_PASSWORD_HASH",
				ArgsUsage: "<password>",
				Action:    cmd.HashPasswordCommand,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

