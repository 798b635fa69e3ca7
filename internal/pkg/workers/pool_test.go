package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPool_RunsAllJobs(t *testing.T) {
	p := New(context.Background(), 4, 16)

	var count atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(context.Background(), Job{
			Name: "count",
			Run: func(ctx context.Context) error {
				count.Add(1)
				return nil
			},
		}))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, int64(100), count.Load())
}

func TestPool_WidthIsBounded(t *testing.T) {
	const width = 4
	p := New(context.Background(), width, 32)

	var (
		running atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), Job{
			Name: "slow",
			Run: func(ctx context.Context) error {
				defer wg.Done()
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			},
		}))
	}
	wg.Wait()
	require.NoError(t, p.Close())
	assert.LessOrEqual(t, peak.Load(), int64(width))
	assert.Positive(t, peak.Load())
}

func TestPool_SubmitDoesNotWaitForJob(t *testing.T) {
	p := New(context.Background(), 1, 1)
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Submit(context.Background(), Job{Name: "block", Run: func(ctx context.Context) error {
			<-release
			return nil
		}})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a running job")
	}
	close(release)
	require.NoError(t, p.Close())
}

func TestPool_SubmitRespectsContextWhenFull(t *testing.T) {
	p := New(context.Background(), 1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), Job{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, Job{Name: "late", Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Close())
}

func TestPool_ErrorsAndPanicsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	original := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(func() { zap.ReplaceGlobals(original) })

	p := New(context.Background(), 2, 4)
	require.NoError(t, p.Submit(context.Background(), Job{Name: "fails", Run: func(ctx context.Context) error {
		return errors.New("boom")
	}}))
	require.NoError(t, p.Submit(context.Background(), Job{Name: "panics", Run: func(ctx context.Context) error {
		panic("kaboom")
	}}))
	require.NoError(t, p.Close())

	entries := logs.FilterMessage("background job failed").All()
	require.Len(t, entries, 2)
	jobs := []string{entries[0].ContextMap()["job"].(string), entries[1].ContextMap()["job"].(string)}
	assert.ElementsMatch(t, []string{"fails", "panics"}, jobs)
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(context.Background(), 1, 1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Submit(context.Background(), Job{Name: "late"}), ErrPoolClosed)
}
