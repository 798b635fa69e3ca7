package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Result int

const (
	Success Result = iota
	Retry
)

func (r Result) String() string {
	if r == Retry {
		return "retry"
	}
	return "success"
}

// Policy decides what happens when a name is registered twice.
type Policy int

const (
	// Keep leaves the existing registration untouched.
	Keep Policy = iota
	// Replace swaps the existing registration for the new one.
	Replace
)

// MinInterval is the shortest period the platform scheduler would accept.
const MinInterval = 15 * time.Minute

var (
	ErrIntervalTooShort = errors.New("interval too short")
	errOffline          = errors.New("network constraint not met")
	errRetry            = errors.New("job asked to be retried")
)

type Job func(ctx context.Context) Result

// Constraint is checked before every attempt; false counts as a retry.
type Constraint func(ctx context.Context) bool

type registration struct {
	name     string
	id       cron.EntryID
	interval time.Duration
	job      Job
	running  atomic.Bool
}

// Scheduler runs named jobs periodically. At most one registration exists per
// name and a registration never overlaps with itself.
type Scheduler struct {
	ctx            context.Context
	cron           *cron.Cron
	logger         *zap.Logger
	constraint     Constraint
	initialBackoff time.Duration
	minInterval    time.Duration

	mu      sync.Mutex
	entries map[string]*registration
	wg      sync.WaitGroup
}

func WithConstraint(c Constraint) func(*Scheduler) {
	return func(s *Scheduler) {
		s.constraint = c
	}
}

func WithInitialBackoff(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		s.initialBackoff = d
	}
}

func WithMinInterval(d time.Duration) func(*Scheduler) {
	return func(s *Scheduler) {
		s.minInterval = d
	}
}

func New(ctx context.Context, opts ...func(*Scheduler)) *Scheduler {
	s := &Scheduler{
		ctx:            ctx,
		cron:           cron.New(),
		logger:         zap.L(),
		initialBackoff: 30 * time.Second,
		minInterval:    MinInterval,
		entries:        map[string]*registration{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins firing registrations on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for in-flight runs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// EnqueueUniquePeriodic registers job under name to run every interval, and
// once straight away. It reports whether a new registration was made.
func (s *Scheduler) EnqueueUniquePeriodic(name string, interval time.Duration, policy Policy, job Job) (bool, error) {
	if interval < s.minInterval {
		return false, fmt.Errorf("%w: %s is below %s", ErrIntervalTooShort, interval, s.minInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[name]; ok {
		if policy == Keep {
			s.logger.Debug("periodic job already registered", zap.String("job", name))
			return false, nil
		}
		s.remove(existing)
	}

	reg := &registration{name: name, interval: interval, job: job}
	reg.id = s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.execute(reg)
	}))
	s.entries[name] = reg
	s.logger.Info("periodic job registered", zap.String("job", name), zap.Duration("interval", interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(reg)
	}()
	return true, nil
}

// Interval returns the period of a registration.
func (s *Scheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.entries[name]
	if !ok {
		return 0, false
	}
	return reg.interval, true
}

// Cancel drops a registration. A run already in flight finishes.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.entries[name]; ok {
		s.remove(reg)
		s.logger.Info("periodic job cancelled", zap.String("job", name))
	}
}

// remove expects s.mu to be held.
func (s *Scheduler) remove(reg *registration) {
	s.cron.Remove(reg.id)
	delete(s.entries, reg.name)
}

func (s *Scheduler) execute(reg *registration) {
	if !reg.running.CompareAndSwap(false, true) {
		s.logger.Debug("periodic job still running, skipping", zap.String("job", reg.name))
		return
	}
	defer reg.running.Store(false)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialBackoff
	b.MaxElapsedTime = reg.interval

	attempt := 0
	op := func() error {
		attempt++
		if s.constraint != nil && !s.constraint(s.ctx) {
			return errOffline
		}
		if reg.job(s.ctx) == Retry {
			return errRetry
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("periodic job will retry", zap.String("job", reg.name), zap.Error(err), zap.Duration("backoff", wait))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, s.ctx), notify)
	if err != nil {
		s.logger.Error("periodic job gave up", zap.String("job", reg.name), zap.Int("attempts", attempt), zap.Error(err))
		return
	}
	s.logger.Info("periodic job succeeded", zap.String("job", reg.name), zap.Int("attempts", attempt))
}
