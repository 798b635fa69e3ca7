package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
	"github.com/anicoll/sensor-monitor/internal/pkg/remote"
	"github.com/anicoll/sensor-monitor/internal/pkg/workers"
)

const (
	MsgNoData       = "no sensor data available from remote source"
	msgReadFailedAs = "failed to read sensor data: "

	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = time.Minute
)

type submitter interface {
	Submit(ctx context.Context, job workers.Job) error
}

type sink interface {
	WriteReadings(ctx context.Context, readings model.Readings) error
}

// State is what the dashboard shows next to the refresh button.
type State struct {
	Busy    bool   `json:"busy"`
	Message string `json:"message,omitempty"`
}

// Service pulls snapshots from a remote source and hands one decomposed batch
// per snapshot to the worker pool.
type Service struct {
	source remote.Source
	pool   submitter
	sink   sink
	logger *zap.Logger

	// newBackOff paces reconnects after the realtime stream drops.
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	inflight int
	message  string
	cancel   context.CancelFunc
	running  chan struct{}
}

func New(source remote.Source, pool submitter, sink sink) *Service {
	return &Service{
		source:     source,
		pool:       pool,
		sink:       sink,
		logger:     zap.L(),
		newBackOff: reconnectBackOff,
	}
}

func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialInterval
	b.MaxInterval = reconnectMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Busy: s.inflight > 0, Message: s.message}
}

func (s *Service) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.message = ""
}

func (s *Service) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
}

func (s *Service) setMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
}

// FetchOnce reads the newest snapshot and queues it for persistence. An empty
// source is not an error. Busy stays set while any fetch is in flight.
func (s *Service) FetchOnce(ctx context.Context) error {
	s.begin()
	defer s.end()

	snapshot, err := s.source.Latest(ctx)
	if errors.Is(err, remote.ErrNoData) {
		s.setMessage(MsgNoData)
		s.logger.Info(MsgNoData)
		return nil
	}
	if err == nil {
		err = s.dispatch(ctx, snapshot)
	}
	if err != nil {
		s.setMessage(msgReadFailedAs + err.Error())
		s.logger.Error("failed to read sensor data", zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, snapshot model.Snapshot) error {
	readings := model.Decompose(snapshot)
	return s.pool.Submit(ctx, workers.Job{
		Name: "persist-snapshot",
		Run: func(ctx context.Context) error {
			return s.sink.WriteReadings(ctx, readings)
		},
	})
}

// SubscribeRealtime starts listening for pushed snapshots. A dropped stream is
// reopened with backoff until ctx ends or Stop is called. Calling it while a
// subscription is live is a no-op.
func (s *Service) SubscribeRealtime(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != nil {
		select {
		case <-s.running:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.running = done

	go func() {
		defer close(done)
		defer cancel()
		s.logger.Info("realtime subscription started")
		defer s.logger.Info("realtime subscription ended")

		b := s.newBackOff()
		for {
			s.listen(ctx, b)
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				s.logger.Error("realtime stream dropped, giving up")
				return
			}
			s.logger.Warn("realtime stream dropped, reconnecting", zap.Duration("backoff", wait))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// listen drains one stream. Every delivered snapshot resets the backoff.
func (s *Service) listen(ctx context.Context, b backoff.BackOff) {
	for snapshot, err := range s.source.Subscribe(ctx) {
		if err != nil {
			s.logger.Error("realtime subscription error", zap.Error(err))
			continue
		}
		b.Reset()
		if err := s.dispatch(ctx, snapshot); err != nil {
			s.logger.Error("failed to queue realtime snapshot", zap.Error(err))
		}
	}
}

// Stop cancels the realtime subscription and waits for it to wind down.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.running
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Subscribed reports whether a realtime subscription is live.
func (s *Service) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return false
	}
	select {
	case <-s.running:
		return false
	default:
		return true
	}
}
