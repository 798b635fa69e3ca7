package refresh

import (
	"context"

	"go.uber.org/zap"
)

// SyncJobName is the unique name of the periodic sensor sync.
const SyncJobName = "sensorDataSync"

type ingester interface {
	FetchOnce(ctx context.Context) error
	SubscribeRealtime(ctx context.Context)
}

type cleaner interface {
	Run(ctx context.Context) (int64, error)
}

// SyncJob fetches the newest snapshot, makes sure the realtime subscription is
// live and prunes old readings. The subscription is bound to appCtx so it
// outlives the run.
func SyncJob(appCtx context.Context, ingest ingester, retention cleaner) Job {
	return func(ctx context.Context) Result {
		logger := zap.L().With(zap.String("job", SyncJobName))
		if err := ingest.FetchOnce(ctx); err != nil {
			logger.Error("sync fetch failed", zap.Error(err))
			return Retry
		}
		ingest.SubscribeRealtime(appCtx)
		if _, err := retention.Run(ctx); err != nil {
			logger.Error("sync cleanup failed", zap.Error(err))
			return Retry
		}
		return Success
	}
}
