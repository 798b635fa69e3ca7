package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

// Notifier wraps a Store and tells subscribers when the readings of a sensor
// type may have changed.
type Notifier struct {
	Store
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[model.SensorType]map[chan struct{}]struct{}
}

func NewNotifier(store Store) *Notifier {
	return &Notifier{
		Store:       store,
		logger:      zap.L(),
		subscribers: make(map[model.SensorType]map[chan struct{}]struct{}),
	}
}

func (n *Notifier) WriteReadings(ctx context.Context, readings model.Readings) error {
	if err := n.Store.WriteReadings(ctx, readings); err != nil {
		return err
	}
	n.notify(readings.Types()...)
	return nil
}

func (n *Notifier) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	deleted, err := n.Store.Cleanup(ctx, olderThan)
	if err != nil {
		return deleted, err
	}
	if deleted > 0 {
		n.notify(model.SensorTypes...)
	}
	return deleted, nil
}

func (n *Notifier) notify(types ...model.SensorType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range types {
		for ch := range n.subscribers[t] {
			// a pending signal already covers this change.
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (n *Notifier) watch(t model.SensorType) (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subscribers[t] == nil {
		n.subscribers[t] = make(map[chan struct{}]struct{})
	}
	n.subscribers[t][ch] = struct{}{}
	n.mu.Unlock()

	return ch, func() {
		n.mu.Lock()
		delete(n.subscribers[t], ch)
		n.mu.Unlock()
	}
}

// Latest streams the latest reading of one sensor type: the current value on
// subscribe, then a fresh value after every change. Nothing is sent while the
// type has no readings. The channel closes when ctx is done.
func (n *Notifier) Latest(ctx context.Context, t model.SensorType) <-chan model.Reading {
	out := make(chan model.Reading)
	changed, stop := n.watch(t)

	go func() {
		defer close(out)
		defer stop()

		var last *model.Reading
		for {
			reading, err := n.Store.GetLatestReading(ctx, t)
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				if ctx.Err() == nil {
					n.logger.Error("failed to query latest reading", zap.String("sensor_type", t.String()), zap.Error(err))
				}
			case last == nil || *last != reading:
				select {
				case out <- reading:
					last = &reading
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
