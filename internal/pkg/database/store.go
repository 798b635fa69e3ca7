package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

var ErrNotFound = errors.New("no readings found")

// Store is the local persistence for sensor readings and alert thresholds.
type Store interface {
	WriteReadings(ctx context.Context, readings model.Readings) error
	GetLatestReading(ctx context.Context, sensorType model.SensorType) (model.Reading, error)
	GetLatestReadings(ctx context.Context) (model.Readings, error)
	// GetReadings returns readings with from <= timestamp <= to, oldest first.
	GetReadings(ctx context.Context, sensorType model.SensorType, from, to time.Time) (model.Readings, error)
	// GetHistory returns at most limit readings, newest first.
	GetHistory(ctx context.Context, sensorType model.SensorType, limit int) (model.Readings, error)
	GetSensorTypes(ctx context.Context) ([]model.SensorType, error)
	// Cleanup deletes readings with timestamp < olderThan.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)

	GetThreshold(ctx context.Context, sensorType model.SensorType) (model.Threshold, error)
	SetThreshold(ctx context.Context, threshold model.Threshold) error
	GetThresholds(ctx context.Context) ([]model.Threshold, error)

	io.Closer
}

// Open picks a backend from the url scheme: postgres:// or postgresql:// use
// pgx, sqlite:// or a bare file path use the embedded sqlite database.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return OpenPostgres(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(url, "sqlite://"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("unsupported database url scheme: %s", url[:strings.Index(url, "://")])
	default:
		return OpenSQLite(url)
	}
}

// sortByType orders latest-per-type rows the way sensors are displayed.
func sortByType(latest model.LatestReadings) model.Readings {
	out := make(model.Readings, 0, len(latest))
	for _, t := range model.SensorTypes {
		if r, ok := latest[t]; ok {
			out = append(out, r)
		}
	}
	return out
}

func fillDefaultThresholds(stored []model.Threshold) []model.Threshold {
	byType := make(map[model.SensorType]model.Threshold, len(stored))
	for _, t := range stored {
		byType[t.SensorType] = t
	}
	out := make([]model.Threshold, 0, len(model.SensorTypes))
	for _, st := range model.SensorTypes {
		if t, ok := byType[st]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, st.DefaultThreshold())
	}
	return out
}
