package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

// Firebase reads snapshots from a Realtime Database path over its REST API.
// Realtime updates use the REST streaming protocol (server-sent events).
type Firebase struct {
	base   *url.URL
	path   string
	auth   string
	client *http.Client
	stream *http.Client
	logger *zap.Logger
}

func NewFirebase(cfg config.RemoteConfig) (*Firebase, error) {
	base, err := url.Parse(strings.TrimRight(cfg.FirebaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid firebase url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid firebase url %q", cfg.FirebaseURL)
	}
	return &Firebase{
		base:   base,
		path:   strings.Trim(cfg.FirebasePath, "/"),
		auth:   cfg.FirebaseAuth,
		client: &http.Client{Timeout: cfg.Timeout},
		stream: &http.Client{},
		logger: zap.L(),
	}, nil
}

func (f *Firebase) Addr() string {
	return hostPort(f.base)
}

func (f *Firebase) queryURL() string {
	u := *f.base
	u.Path = u.Path + "/" + f.path + ".json"
	q := url.Values{}
	q.Set("orderBy", `"timestamp"`)
	q.Set("limitToLast", "1")
	if f.auth != "" {
		q.Set("auth", f.auth)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (f *Firebase) Latest(ctx context.Context) (model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.queryURL(), nil)
	if err != nil {
		return model.Snapshot{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Snapshot{}, &statusError{op: "firebase read", status: resp.StatusCode}
	}

	records := map[string]model.Snapshot{}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode firebase records: %w", err)
	}
	return newest(records)
}

// newest picks the record with the highest timestamp. A null body decodes to an
// empty map.
func newest(records map[string]model.Snapshot) (model.Snapshot, error) {
	if len(records) == 0 {
		return model.Snapshot{}, ErrNoData
	}
	return lo.MaxBy(lo.Values(records), func(a, b model.Snapshot) bool {
		return a.Timestamp > b.Timestamp
	}), nil
}

func (f *Firebase) Subscribe(ctx context.Context) iter.Seq2[model.Snapshot, error] {
	return func(yield func(model.Snapshot, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.queryURL(), nil)
		if err != nil {
			yield(model.Snapshot{}, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		resp, err := f.stream.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				yield(model.Snapshot{}, err)
			}
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			yield(model.Snapshot{}, &statusError{op: "firebase stream", status: resp.StatusCode})
			return
		}

		var last int64
		for ev, err := range readEvents(resp.Body) {
			if err != nil {
				if ctx.Err() == nil {
					yield(model.Snapshot{}, err)
				}
				return
			}
			switch ev.name {
			case "keep-alive":
				continue
			case "cancel":
				yield(model.Snapshot{}, errStreamCancelled)
				return
			case "auth_revoked":
				yield(model.Snapshot{}, errAuthRevoked)
				return
			case "put", "patch":
			default:
				f.logger.Debug("ignoring firebase stream event", zap.String("event", ev.name))
				continue
			}

			snapshot, err := f.Latest(ctx)
			if errors.Is(err, ErrNoData) {
				continue
			}
			if err == nil && snapshot.Timestamp == last {
				continue
			}
			if err == nil {
				last = snapshot.Timestamp
			}
			if !yield(snapshot, err) {
				return
			}
		}
	}
}

type event struct {
	name string
	data string
}

// readEvents splits a text/event-stream body into events. The sequence ends
// with io.ErrUnexpectedEOF if the server closes the stream.
func readEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var ev event
		var data []string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if ev.name == "" && len(data) == 0 {
					continue
				}
				ev.data = strings.Join(data, "\n")
				if !yield(ev, nil) {
					return
				}
				ev, data = event{}, nil
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		yield(event{}, err)
	}
}
