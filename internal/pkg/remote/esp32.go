package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/model"
	"github.com/anicoll/sensor-monitor/pkg/sockets"
)

const (
	esp32SensorsPath = "/api/sensors"
	esp32SocketPath  = "/ws"
)

// ESP32 talks to the rig directly on the local network.
type ESP32 struct {
	endpoint func() string
	timeout  time.Duration
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
}

func NewESP32(endpoint func() string, timeout time.Duration) *ESP32 {
	return &ESP32{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   zap.L(),
		now:      time.Now,
	}
}

func (e *ESP32) baseURL(scheme string) (*url.URL, error) {
	raw := strings.TrimRight(strings.TrimSpace(e.endpoint()), "/")
	if raw == "" {
		return nil, fmt.Errorf("esp32 endpoint is not set")
	}
	u, err := url.Parse(withScheme(raw, scheme))
	if err != nil {
		return nil, fmt.Errorf("invalid esp32 endpoint: %w", err)
	}
	return u, nil
}

func (e *ESP32) Addr() string {
	u, err := e.baseURL("http")
	if err != nil {
		return ""
	}
	return hostPort(u)
}

func (e *ESP32) Latest(ctx context.Context) (model.Snapshot, error) {
	u, err := e.baseURL("http")
	if err != nil {
		return model.Snapshot{}, err
	}
	u.Path += esp32SensorsPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Snapshot{}, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return model.Snapshot{}, ErrNoData
	default:
		return model.Snapshot{}, &statusError{op: "esp32 read", status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Snapshot{}, err
	}
	return e.decode(body)
}

func (e *ESP32) decode(body []byte) (model.Snapshot, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return model.Snapshot{}, ErrNoData
	}
	var snapshot model.Snapshot
	if err := json.Unmarshal([]byte(trimmed), &snapshot); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode esp32 snapshot: %w", err)
	}
	// the device has no RTC until it syncs NTP
	if snapshot.Timestamp == 0 {
		snapshot.Timestamp = e.now().UnixMilli()
	}
	return snapshot, nil
}

func (e *ESP32) Subscribe(ctx context.Context) iter.Seq2[model.Snapshot, error] {
	return func(yield func(model.Snapshot, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		u, err := e.baseURL("ws")
		if err != nil {
			yield(model.Snapshot{}, err)
			return
		}
		if u.Scheme == "http" {
			u.Scheme = "ws"
		} else if u.Scheme == "https" {
			u.Scheme = "wss"
		}
		u.Path += esp32SocketPath

		frames := make(chan []byte)
		errs := make(chan error, 1)
		conn := sockets.New(
			sockets.WithHandshakeTimeout(e.timeout),
			sockets.WithPingInterval(30*time.Second),
			sockets.WithPingMsg([]byte("ping")),
			sockets.OnConnected(func(sockets.Connection) {
				e.logger.Info("connected to esp32 websocket", zap.String("url", u.String()))
			}),
			sockets.OnMessage(func(b []byte, _ sockets.Connection) {
				select {
				case frames <- b:
				case <-ctx.Done():
				}
			}),
			sockets.OnError(func(err error) {
				select {
				case errs <- err:
				default:
				}
			}),
		)
		if err := conn.Dial(ctx, u.String()); err != nil {
			if ctx.Err() == nil {
				yield(model.Snapshot{}, err)
			}
			return
		}
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				yield(model.Snapshot{}, err)
				return
			case frame := <-frames:
				snapshot, err := e.decode(frame)
				if err != nil {
					e.logger.Debug("skipping esp32 frame", zap.ByteString("frame", frame), zap.Error(err))
					continue
				}
				if !yield(snapshot, nil) {
					return
				}
			}
		}
	}
}
