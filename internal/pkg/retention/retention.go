package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultHorizon = 30 * 24 * time.Hour

type cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// Job deletes readings older than the horizon.
type Job struct {
	Store   cleaner
	Horizon time.Duration
	Now     func() time.Time
}

func (j Job) cutoff() time.Time {
	horizon := j.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	return now().Add(-horizon)
}

// Run removes every reading with a timestamp before now minus the horizon and
// reports how many went. Running it twice in a row deletes nothing the second time.
func (j Job) Run(ctx context.Context) (int64, error) {
	cutoff := j.cutoff()
	deleted, err := j.Store.Cleanup(ctx, cutoff)
	if err != nil {
		zap.L().Error("error cleaning up database", zap.Error(err))
		return 0, err
	}
	zap.L().Info("old readings removed", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
