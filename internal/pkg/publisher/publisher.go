package publisher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

// Sink receives every decomposed snapshot batch.
type Sink interface {
	WriteReadings(ctx context.Context, readings model.Readings) error
}

type entry struct {
	name     string
	sink     Sink
	required bool
}

// Publisher fans a batch out to its sinks in registration order.
type Publisher struct {
	mu      sync.RWMutex
	entries []entry
	logger  *zap.Logger
}

func New() *Publisher {
	return &Publisher{logger: zap.L()}
}

// Register adds a sink whose failure fails the whole publish, e.g. the local store.
func (p *Publisher) Register(name string, sink Sink) error {
	return p.add(entry{name: name, sink: sink, required: true})
}

// RegisterMirror adds a best-effort sink; its failures are only logged.
func (p *Publisher) RegisterMirror(name string, sink Sink) error {
	return p.add(entry{name: name, sink: sink})
}

func (p *Publisher) add(e entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.entries {
		if existing.name == e.name {
			return errAlreadyRegistered
		}
	}
	p.entries = append(p.entries, e)
	return nil
}

func (p *Publisher) WriteReadings(ctx context.Context, readings model.Readings) error {
	p.mu.RLock()
	entries := append([]entry(nil), p.entries...)
	p.mu.RUnlock()

	for _, e := range entries {
		if err := e.sink.WriteReadings(ctx, readings); err != nil {
			if e.required {
				return err
			}
			p.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", e.name))
			continue
		}
		p.logger.Debug("published readings", zap.Int("count", len(readings)), zap.String("publisher", e.name))
	}
	return nil
}
