package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

func receive(t *testing.T, ch <-chan model.Reading) model.Reading {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "channel closed")
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reading")
	}
	return model.Reading{}
}

func TestNotifier_Latest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(newSQLiteStore(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	feed := n.Latest(ctx, model.Temperature)

	select {
	case r := <-feed:
		t.Fatalf("unexpected reading on empty store: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}

	first := model.Decompose(snapshotAt(now.Add(-time.Minute)))
	require.NoError(t, n.WriteReadings(ctx, first))
	r := receive(t, feed)
	assert.Equal(t, first[0].BatchID, r.BatchID)

	second := model.Decompose(snapshotAt(now))
	second[0].Value = 99
	require.NoError(t, n.WriteReadings(ctx, second))
	r = receive(t, feed)
	assert.Equal(t, 99.0, r.Value)
	assert.Equal(t, second[0].BatchID, r.BatchID)

	cancel()
	select {
	case _, ok := <-feed:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("feed not closed after cancel")
	}
}

func TestNotifier_LatestEmitsExistingValue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newSQLiteStore(t)
	readings := model.Decompose(snapshotAt(time.Now()))
	require.NoError(t, store.WriteReadings(ctx, readings))

	n := NewNotifier(store)
	r := receive(t, n.Latest(ctx, model.SoilMoisture))
	assert.Equal(t, model.SoilMoisture, r.SensorType)
	assert.Equal(t, readings[6].BatchID, r.BatchID)
}

func TestNotifier_CleanupNotifiesOnlyWhenRowsDeleted(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier(newSQLiteStore(t))

	changed, stop := n.watch(model.Ph)
	defer stop()

	deleted, err := n.Cleanup(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Empty(t, changed)

	require.NoError(t, n.WriteReadings(ctx, model.Decompose(snapshotAt(time.Now().Add(-time.Hour)))))
	<-changed

	deleted, err = n.Cleanup(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.Len(t, changed, 1)
}
