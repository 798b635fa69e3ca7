package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/ingest"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
	"github.com/anicoll/sensor-monitor/internal/pkg/refresh"
)

const (
	defaultRangeDays    = 1
	defaultHistoryLimit = 100
)

var errBadRange = errors.New("from must not be after to")

type readingResponse struct {
	SensorType  model.SensorType `json:"sensor_type"`
	DisplayName string           `json:"display_name"`
	Value       float64          `json:"value"`
	Unit        string           `json:"unit"`
	Timestamp   time.Time        `json:"timestamp"`
	Alert       *bool            `json:"alert,omitempty"`
}

type readingsResponse struct {
	SensorType model.SensorType  `json:"sensor_type,omitempty"`
	Readings   []readingResponse `json:"readings"`
}

type sensorResponse struct {
	SensorType  model.SensorType `json:"sensor_type"`
	DisplayName string           `json:"display_name"`
	Unit        string           `json:"unit"`
}

type statusResponse struct {
	ingest.State
	Realtime bool `json:"realtime"`
	// SyncIntervalMinutes is the period of the registered sync job, zero when none is registered.
	SyncIntervalMinutes int `json:"sync_interval_minutes"`
}

type thresholdRequest struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type settingsRequest struct {
	Endpoint              *string `json:"endpoint"`
	UpdateIntervalMinutes *int    `json:"update_interval_minutes"`
}

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toResponse(r model.Reading) readingResponse {
	return readingResponse{
		SensorType:  r.SensorType,
		DisplayName: r.SensorType.DisplayName(),
		Value:       r.Value,
		Unit:        r.Unit,
		Timestamp:   r.Timestamp,
	}
}

func sensorTypeVar(r *http.Request) (model.SensorType, error) {
	return model.ParseSensorType(mux.Vars(r)["type"])
}

func (s *server) getLatestReadings(w http.ResponseWriter, r *http.Request) {
	latest := s.Latest.Current()
	if len(latest) == 0 {
		stored, err := s.Store.GetLatestReadings(r.Context())
		if err != nil {
			s.handleError(w, err)
			return
		}
		latest = stored.Latest()
	}
	thresholds, err := s.Store.GetThresholds(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	byType := lo.KeyBy(thresholds, func(t model.Threshold) model.SensorType { return t.SensorType })

	out := readingsResponse{Readings: []readingResponse{}}
	for _, t := range model.SensorTypes {
		reading, ok := latest[t]
		if !ok {
			continue
		}
		resp := toResponse(reading)
		if threshold, ok := byType[t]; ok {
			resp.Alert = lo.ToPtr(threshold.Breached(reading.Value))
		}
		out.Readings = append(out.Readings, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// timeRange resolves from/to, falling back to the last N days.
func (s *server) timeRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := s.now()
	from, to := time.Time{}, now

	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, fmt.Errorf("invalid to: %w", err)
		}
		to = parsed
	}
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, fmt.Errorf("invalid from: %w", err)
		}
		from = parsed
	} else {
		days := defaultRangeDays
		if raw := q.Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return from, to, fmt.Errorf("invalid days %q", raw)
			}
			days = n
		}
		from = to.AddDate(0, 0, -days)
	}
	if from.After(to) {
		return from, to, errBadRange
	}
	return from, to, nil
}

func (s *server) getReadings(w http.ResponseWriter, r *http.Request) {
	sensorType, err := sensorTypeVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, to, err := s.timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	readings, err := s.Store.GetReadings(r.Context(), sensorType, from, to)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readingsResponse{SensorType: sensorType, Readings: lo.Map(readings, func(r model.Reading, _ int) readingResponse {
		return toResponse(r)
	})})
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	sensorType, err := sensorTypeVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}
	readings, err := s.Store.GetHistory(r.Context(), sensorType, limit)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readingsResponse{SensorType: sensorType, Readings: lo.Map(readings, func(r model.Reading, _ int) readingResponse {
		return toResponse(r)
	})})
}

func (s *server) getSensors(w http.ResponseWriter, r *http.Request) {
	types, err := s.Store.GetSensorTypes(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(types, func(t model.SensorType, _ int) sensorResponse {
		return sensorResponse{SensorType: t, DisplayName: t.DisplayName(), Unit: t.Unit()}
	}))
}

func (s *server) status() statusResponse {
	resp := statusResponse{State: s.Ingest.State(), Realtime: s.Ingest.Subscribed()}
	if s.Schedule != nil {
		if interval, ok := s.Schedule.Interval(refresh.SyncJobName); ok {
			resp.SyncIntervalMinutes = int(interval / time.Minute)
		}
	}
	return resp
}

func (s *server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *server) postRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Ingest.FetchOnce(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, s.status())
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *server) getThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := s.Store.GetThresholds(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thresholds)
}

func (s *server) putThreshold(w http.ResponseWriter, r *http.Request) {
	sensorType, err := sensorTypeVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := unmarshalPayload[thresholdRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Min > req.Max {
		writeError(w, http.StatusBadRequest, fmt.Errorf("min %v is greater than max %v", req.Min, req.Max))
		return
	}
	threshold := model.Threshold{SensorType: sensorType, Min: req.Min, Max: req.Max}
	if err := s.Store.SetThreshold(r.Context(), threshold); err != nil {
		s.handleError(w, err)
		return
	}
	s.logger.Info("threshold updated", zap.Stringer("sensor_type", sensorType), zap.Float64("min", req.Min), zap.Float64("max", req.Max))
	writeJSON(w, http.StatusOK, threshold)
}

func (s *server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings.Get())
}

func (s *server) putSettings(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[settingsRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated := s.Settings.Get()
	if req.Endpoint != nil {
		updated.Endpoint = *req.Endpoint
	}
	if req.UpdateIntervalMinutes != nil {
		updated.UpdateIntervalMinutes = *req.UpdateIntervalMinutes
	}
	if err := s.Settings.Update(updated); err != nil {
		if errors.Is(err, config.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.handleError(w, err)
		return
	}
	s.logger.Info("settings updated", zap.String("endpoint", updated.Endpoint), zap.Int("update_interval_minutes", updated.UpdateIntervalMinutes))
	writeJSON(w, http.StatusOK, updated)
}

func (s *server) postToken(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[tokenRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, expires, err := s.Auth.Issue(req.Password)
	switch {
	case errors.Is(err, errAuthDisabled):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, errBadCredentials):
		writeError(w, http.StatusUnauthorized, err)
	case err != nil:
		s.handleError(w, err)
	default:
		writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires})
	}
}
