package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

type fakeFeeds struct {
	mu    sync.Mutex
	chans map[model.SensorType]chan model.Reading
}

func newFakeFeeds() *fakeFeeds {
	return &fakeFeeds{chans: map[model.SensorType]chan model.Reading{}}
}

func (f *fakeFeeds) Latest(ctx context.Context, t model.SensorType) <-chan model.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan model.Reading)
	f.chans[t] = ch
	return ch
}

func (f *fakeFeeds) push(t model.SensorType, v float64) {
	f.mu.Lock()
	ch := f.chans[t]
	f.mu.Unlock()
	ch <- model.Reading{SensorType: t, Value: v, Timestamp: time.Now()}
}

func (f *fakeFeeds) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.chans {
		close(ch)
	}
}

func start(t *testing.T, a *Aggregator, feeds *fakeFeeds) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	require.Eventually(t, func() bool {
		feeds.mu.Lock()
		defer feeds.mu.Unlock()
		return len(feeds.chans) == len(a.types)
	}, time.Second, 5*time.Millisecond)
	return cancel, done
}

func TestAggregator_ReplacesPerType(t *testing.T) {
	feeds := newFakeFeeds()
	a := New(feeds, model.Temperature, model.Humidity, model.Rain)
	cancel, done := start(t, a, feeds)
	defer cancel()

	feeds.push(model.Temperature, 20)
	feeds.push(model.Temperature, 21)
	feeds.push(model.Humidity, 55)

	require.Eventually(t, func() bool {
		c := a.Current()
		return len(c) == 2 && c[model.Temperature].Value == 21
	}, time.Second, 5*time.Millisecond)

	current := a.Current()
	assert.Equal(t, 55.0, current[model.Humidity].Value)
	_, hasRain := current[model.Rain]
	assert.False(t, hasRain)

	feeds.closeAll()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after feeds closed")
	}
}

func TestAggregator_SubscribeGetsNewestMap(t *testing.T) {
	feeds := newFakeFeeds()
	a := New(feeds, model.Temperature, model.Ph)
	cancel, _ := start(t, a, feeds)
	defer cancel()

	subCtx, subCancel := context.WithCancel(context.Background())
	updates := a.Subscribe(subCtx)

	feeds.push(model.Temperature, 20)
	feeds.push(model.Ph, 6.5)
	feeds.push(model.Temperature, 23)

	require.Eventually(t, func() bool {
		return a.Current()[model.Temperature].Value == 23
	}, time.Second, 5*time.Millisecond)

	latest := <-updates
	assert.Len(t, latest, 2)
	assert.Equal(t, 23.0, latest[model.Temperature].Value)
	assert.Equal(t, 6.5, latest[model.Ph].Value)

	subCancel()
	assert.Eventually(t, func() bool {
		_, open := <-updates
		return !open
	}, time.Second, 5*time.Millisecond)
}

func TestAggregator_SubscribeReplaysCurrent(t *testing.T) {
	feeds := newFakeFeeds()
	a := New(feeds, model.Salinity)
	cancel, _ := start(t, a, feeds)
	defer cancel()

	feeds.push(model.Salinity, 3)
	require.Eventually(t, func() bool { return len(a.Current()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	first := <-a.Subscribe(ctx)
	assert.Equal(t, 3.0, first[model.Salinity].Value)
}

func TestNew_DefaultsToAllTypes(t *testing.T) {
	a := New(newFakeFeeds())
	assert.Equal(t, model.SensorTypes, a.types)
}
