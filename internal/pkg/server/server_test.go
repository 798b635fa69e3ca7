package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/database"
	"github.com/anicoll/sensor-monitor/internal/pkg/ingest"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
	"github.com/anicoll/sensor-monitor/internal/pkg/refresh"
	"github.com/anicoll/sensor-monitor/pkg/hasher"
)

const testPassword = "hunter2"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type MockIngest struct {
	FetchOnceFunc func(ctx context.Context) error
	state         ingest.State
	fetches       int
}

func (m *MockIngest) FetchOnce(ctx context.Context) error {
	m.fetches++
	if m.FetchOnceFunc != nil {
		return m.FetchOnceFunc(ctx)
	}
	return nil
}

func (m *MockIngest) State() ingest.State { return m.state }
func (m *MockIngest) Subscribed() bool    { return true }

type staticLatest model.LatestReadings

func (s staticLatest) Current() model.LatestReadings { return model.LatestReadings(s).Clone() }

type staticSchedule map[string]time.Duration

func (s staticSchedule) Interval(name string) (time.Duration, bool) {
	d, ok := s[name]
	return d, ok
}

type fixture struct {
	handler  http.Handler
	store    *database.SQLite
	ingest   *MockIngest
	settings *config.SettingsStore
	auth     *Auth
}

func newFixture(t *testing.T, withAuth bool) *fixture {
	t.Helper()
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	settings, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	authCfg := config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}
	if withAuth {
		hash, err := hasher.HashPassword(testPassword)
		require.NoError(t, err)
		authCfg.PasswordHash = hash
	}
	auth, err := NewAuth(authCfg)
	require.NoError(t, err)
	auth.now = func() time.Time { return testNow }

	f := &fixture{store: store, ingest: &MockIngest{}, settings: settings, auth: auth}
	srv := newServer(Deps{
		Store:    store,
		Latest:   staticLatest{},
		Ingest:   f.ingest,
		Settings: settings,
		Schedule: staticSchedule{refresh.SyncJobName: 30 * time.Minute},
		Auth:     auth,
	})
	srv.now = func() time.Time { return testNow }
	f.handler, err = srv.handler()
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T, snapshots ...model.Snapshot) {
	t.Helper()
	for _, s := range snapshots {
		require.NoError(t, f.store.WriteReadings(context.Background(), model.Decompose(s)))
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGetLatestReadings(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t,
		model.Snapshot{Temperature: 20, Humidity: 50, Timestamp: testNow.Add(-2 * time.Hour).UnixMilli()},
		model.Snapshot{Temperature: 45, Humidity: 55, Ph: 7, Timestamp: testNow.Add(-time.Hour).UnixMilli()},
	)

	rec := f.do(t, http.MethodGet, "/readings/latest", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[readingsResponse](t, rec)
	require.Len(t, got.Readings, len(model.SensorTypes))

	temp := got.Readings[0]
	assert.Equal(t, model.Temperature, temp.SensorType)
	assert.Equal(t, 45.0, temp.Value)
	require.NotNil(t, temp.Alert)
	assert.True(t, *temp.Alert)

	humidity := got.Readings[1]
	assert.Equal(t, 55.0, humidity.Value)
	assert.False(t, *humidity.Alert)
}

func TestGetReadings(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t,
		model.Snapshot{Salinity: 1, Timestamp: testNow.Add(-3 * 24 * time.Hour).UnixMilli()},
		model.Snapshot{Salinity: 2, Timestamp: testNow.Add(-2 * time.Hour).UnixMilli()},
		model.Snapshot{Salinity: 3, Timestamp: testNow.Add(-time.Hour).UnixMilli()},
	)

	tests := map[string]struct {
		target     string
		wantStatus int
		wantValues []float64
	}{
		"default is one day": {
			target:     "/readings/salinity",
			wantStatus: http.StatusOK,
			wantValues: []float64{2, 3},
		},
		"days widens the window": {
			target:     "/readings/salinity?days=7",
			wantStatus: http.StatusOK,
			wantValues: []float64{1, 2, 3},
		},
		"explicit range": {
			target:     "/readings/salinity?from=2024-06-01T09:30:00Z&to=2024-06-01T10:30:00Z",
			wantStatus: http.StatusOK,
			wantValues: []float64{2},
		},
		"inverted range": {
			target:     "/readings/salinity?from=2024-06-02T00:00:00Z&to=2024-06-01T00:00:00Z",
			wantStatus: http.StatusBadRequest,
		},
		"unknown sensor": {
			target:     "/readings/co2",
			wantStatus: http.StatusBadRequest,
		},
		"days out of bounds": {
			target:     "/readings/salinity?days=0",
			wantStatus: http.StatusBadRequest,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, nil, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[readingsResponse](t, rec)
			values := make([]float64, 0, len(got.Readings))
			for _, r := range got.Readings {
				values = append(values, r.Value)
				assert.Equal(t, "ppt", r.Unit)
			}
			assert.Equal(t, tt.wantValues, values)
		})
	}
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t, false)
	for i := 1; i <= 4; i++ {
		f.seed(t, model.Snapshot{Ph: float64(i), Timestamp: testNow.Add(time.Duration(i) * time.Minute).UnixMilli()})
	}

	rec := f.do(t, http.MethodGet, "/readings/ph/history?limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[readingsResponse](t, rec)
	require.Len(t, got.Readings, 2)
	assert.Equal(t, 4.0, got.Readings[0].Value)
	assert.Equal(t, 3.0, got.Readings[1].Value)

	rec = f.do(t, http.MethodGet, "/readings/ph/history?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSensorsAndStatus(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, model.Snapshot{Timestamp: testNow.UnixMilli()})
	f.ingest.state = ingest.State{Message: ingest.MsgNoData}

	rec := f.do(t, http.MethodGet, "/sensors", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sensors := decode[[]sensorResponse](t, rec)
	assert.Len(t, sensors, len(model.SensorTypes))

	rec = f.do(t, http.MethodGet, "/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusResponse](t, rec)
	assert.False(t, status.Busy)
	assert.True(t, status.Realtime)
	assert.Equal(t, ingest.MsgNoData, status.Message)
	assert.Equal(t, 30, status.SyncIntervalMinutes)
}

func TestPostRefresh(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/refresh", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.ingest.fetches)

	rec = f.do(t, http.MethodPost, "/auth/token", tokenRequest{Password: testPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[tokenResponse](t, rec)
	assert.Equal(t, testNow.Add(time.Hour), token.ExpiresAt.UTC())

	rec = f.do(t, http.MethodPost, "/refresh", nil, token.Token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.ingest.fetches)

	f.ingest.FetchOnceFunc = func(context.Context) error { return errors.New("timeout") }
	f.ingest.state = ingest.State{Message: "failed to read sensor data: timeout"}
	rec = f.do(t, http.MethodPost, "/refresh", nil, token.Token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "failed to read sensor data: timeout", decode[statusResponse](t, rec).Message)
}

func TestThresholds(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPut, "/thresholds/humidity", thresholdRequest{Min: 30, Max: 70}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/thresholds/humidity", thresholdRequest{Min: 70, Max: 30}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/thresholds/humidity", map[string]any{"min": 1}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/thresholds", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	thresholds := decode[[]model.Threshold](t, rec)
	assert.Len(t, thresholds, len(model.SensorTypes))
	assert.Contains(t, thresholds, model.Threshold{SensorType: model.Humidity, Min: 30, Max: 70})
}

func TestSettings(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/settings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, *config.DefaultSettings(), decode[config.Settings](t, rec))

	rec = f.do(t, http.MethodPut, "/settings", map[string]any{"update_interval_minutes": 5}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/settings", map[string]any{"endpoint": "10.1.1.20"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, config.Settings{Endpoint: "10.1.1.20", UpdateIntervalMinutes: 15}, f.settings.Get())
}

func TestAuth(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/auth/token", tokenRequest{Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, "/settings", map[string]any{"endpoint": "x"}, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := f.auth.Issue(testPassword)
	require.NoError(t, err)
	require.NoError(t, f.auth.Verify(token))

	f.auth.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	assert.Error(t, f.auth.Verify(token))

	disabled := newFixture(t, false)
	rec = disabled.do(t, http.MethodPost, "/auth/token", tokenRequest{Password: testPassword}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
