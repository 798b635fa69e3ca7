package cmd

import (
	"context"
	"iter"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

// RemoteSource defines what cmd.run expects from the configured remote.
type RemoteSource interface {
	Latest(ctx context.Context) (model.Snapshot, error)
	Subscribe(ctx context.Context) iter.Seq2[model.Snapshot, error]
	Addr() string
}
