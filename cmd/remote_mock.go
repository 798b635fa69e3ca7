package cmd

import (
	"context"
	"iter"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
	"github.com/anicoll/sensor-monitor/internal/pkg/remote"
)

// MockRemoteSource is a mock implementation of the RemoteSource interface.
type MockRemoteSource struct {
	LatestFunc    func(ctx context.Context) (model.Snapshot, error)
	SubscribeFunc func(ctx context.Context) iter.Seq2[model.Snapshot, error]
	AddrFunc      func() string
}

func (m *MockRemoteSource) Latest(ctx context.Context) (model.Snapshot, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx)
	}
	return model.Snapshot{}, remote.ErrNoData
}

// Subscribe defaults to a stream that stays open until ctx ends.
func (m *MockRemoteSource) Subscribe(ctx context.Context) iter.Seq2[model.Snapshot, error] {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx)
	}
	return func(func(model.Snapshot, error) bool) {
		<-ctx.Done()
	}
}

func (m *MockRemoteSource) Addr() string {
	if m.AddrFunc != nil {
		return m.AddrFunc()
	}
	return ""
}
