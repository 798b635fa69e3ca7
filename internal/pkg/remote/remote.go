package remote

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/url"
	"strings"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

var (
	// ErrNoData is returned by Latest when the source holds no snapshot yet.
	ErrNoData = errors.New("no sensor data available")

	errStreamCancelled = errors.New("remote stream cancelled by server")
	errAuthRevoked     = errors.New("remote stream credentials revoked")
)

// Source is a place sensor snapshots are read from.
type Source interface {
	Latest(ctx context.Context) (model.Snapshot, error)
	// Subscribe yields every snapshot pushed by the source until ctx ends or the
	// caller stops ranging. Transport errors are yielded and the sequence goes on
	// unless the stream itself is gone.
	Subscribe(ctx context.Context) iter.Seq2[model.Snapshot, error]
	// Addr is the host:port the source lives on, used for connectivity probes.
	Addr() string
}

type statusError struct {
	op     string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.op, e.status)
}

// New builds the source selected by cfg.Kind. endpoint is read on every call so
// that edits to the device endpoint setting apply without a restart.
func New(cfg config.RemoteConfig, endpoint func() string) (Source, error) {
	switch cfg.Kind {
	case config.RemoteFirebase:
		return NewFirebase(cfg)
	case config.RemoteESP32:
		return NewESP32(endpoint, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" || u.Scheme == "wss" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func withScheme(raw, scheme string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return scheme + "://" + raw
}
