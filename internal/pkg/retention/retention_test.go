package retention

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/sensor-monitor/internal/pkg/database"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

func TestJob_Run(t *testing.T) {
	ctx := context.Background()
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "retention.sqlite"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	horizon := 30 * 24 * time.Hour
	stale := now.Add(-horizon - 24*time.Hour)
	fresh := now.Add(-horizon + 24*time.Hour)

	require.NoError(t, store.WriteReadings(ctx, model.Decompose(model.Snapshot{Temperature: 1, Timestamp: stale.UnixMilli()})))
	require.NoError(t, store.WriteReadings(ctx, model.Decompose(model.Snapshot{Temperature: 2, Timestamp: fresh.UnixMilli()})))

	job := Job{Store: store, Horizon: horizon, Now: func() time.Time { return now }}
	deleted, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(model.SensorTypes)), deleted)

	left, err := store.GetReadings(ctx, model.Temperature, now.Add(-365*24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 2.0, left[0].Value)
	assert.True(t, left[0].Timestamp.Equal(fresh))

	deleted, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

type cleanerFunc func(ctx context.Context, olderThan time.Time) (int64, error)

func (f cleanerFunc) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	return f(ctx, olderThan)
}

func TestJob_DefaultHorizon(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	var got time.Time
	job := Job{
		Store: cleanerFunc(func(_ context.Context, olderThan time.Time) (int64, error) {
			got = olderThan
			return 0, nil
		}),
		Now: func() time.Time { return now },
	}
	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -30), got)
}

func TestJob_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	defer zap.ReplaceGlobals(zap.New(core))()

	boom := errors.New("database is locked")
	job := Job{Store: cleanerFunc(func(context.Context, time.Time) (int64, error) { return 0, boom })}
	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessage("error cleaning up database").Len())
}
