package aggregator

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

type feeds interface {
	Latest(ctx context.Context, t model.SensorType) <-chan model.Reading
}

// Aggregator folds the per-type latest-reading feeds into one map. Entries are
// replaced, never duplicated, and types without data are absent. The map is
// not a consistent cut across types.
type Aggregator struct {
	feeds  feeds
	types  []model.SensorType
	logger *zap.Logger

	mu          sync.RWMutex
	current     model.LatestReadings
	subscribers map[chan model.LatestReadings]struct{}
}

// New watches the given types, or every known type when none are passed.
func New(f feeds, types ...model.SensorType) *Aggregator {
	if len(types) == 0 {
		types = model.SensorTypes
	}
	return &Aggregator{
		feeds:       f,
		types:       types,
		logger:      zap.L(),
		current:     model.LatestReadings{},
		subscribers: map[chan model.LatestReadings]struct{}{},
	}
}

// Run merges the feeds until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	merged := make(chan model.Reading)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, t := range a.types {
		feed := a.feeds.Latest(egCtx, t)
		eg.Go(func() error {
			for {
				var r model.Reading
				var ok bool
				select {
				case r, ok = <-feed:
					if !ok {
						return nil
					}
				case <-egCtx.Done():
					return nil
				}
				select {
				case merged <- r:
				case <-egCtx.Done():
					return nil
				}
			}
		})
	}
	go func() {
		_ = eg.Wait()
		close(merged)
	}()

	for r := range merged {
		a.apply(r)
	}
	return nil
}

func (a *Aggregator) apply(r model.Reading) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current[r.SensorType] = r
	a.logger.Debug("latest reading updated", zap.Stringer("sensor_type", r.SensorType), zap.Float64("value", r.Value))
	for ch := range a.subscribers {
		offer(ch, a.current.Clone())
	}
}

// offer replaces whatever the subscriber has not consumed yet.
func offer(ch chan model.LatestReadings, m model.LatestReadings) {
	select {
	case <-ch:
	default:
	}
	ch <- m
}

// Current returns a copy of the latest map.
func (a *Aggregator) Current() model.LatestReadings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Clone()
}

// Subscribe delivers the newest map after every change. A slow reader only
// sees the most recent map. The channel is closed when ctx is done.
func (a *Aggregator) Subscribe(ctx context.Context) <-chan model.LatestReadings {
	ch := make(chan model.LatestReadings, 1)
	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	if len(a.current) > 0 {
		ch <- a.current.Clone()
	}
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		a.mu.Lock()
		delete(a.subscribers, ch)
		close(ch)
		a.mu.Unlock()
	}()
	return ch
}
