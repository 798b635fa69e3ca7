package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/anicoll/sensor-monitor/internal/pkg/config"
	"github.com/anicoll/sensor-monitor/internal/pkg/ingest"
	"github.com/anicoll/sensor-monitor/internal/pkg/model"
)

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen --config=./oapi-codegen.yaml ./openapi.yaml

//go:embed openapi.yaml
var openapiSpec []byte

type store interface {
	GetLatestReadings(ctx context.Context) (model.Readings, error)
	GetReadings(ctx context.Context, sensorType model.SensorType, from, to time.Time) (model.Readings, error)
	GetHistory(ctx context.Context, sensorType model.SensorType, limit int) (model.Readings, error)
	GetSensorTypes(ctx context.Context) ([]model.SensorType, error)
	GetThresholds(ctx context.Context) ([]model.Threshold, error)
	SetThreshold(ctx context.Context, threshold model.Threshold) error
}

type latestReadings interface {
	Current() model.LatestReadings
}

type ingester interface {
	FetchOnce(ctx context.Context) error
	State() ingest.State
	Subscribed() bool
}

type settingsStore interface {
	Get() config.Settings
	Update(settings config.Settings) error
}

type schedule interface {
	Interval(name string) (time.Duration, bool)
}

type Deps struct {
	Store    store
	Latest   latestReadings
	Ingest   ingester
	Settings settingsStore
	Schedule schedule
	Auth     *Auth
}

type server struct {
	Deps
	logger *zap.Logger
	now    func() time.Time
}

// New builds the API handler.
func New(deps Deps) (http.Handler, error) {
	return newServer(deps).handler()
}

func newServer(deps Deps) *server {
	return &server{Deps: deps, logger: zap.L(), now: time.Now}
}

func (s *server) handler() (http.Handler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	validator, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Use(LoggingMiddleware, validationMiddleware(validator, s.Auth.authenticate))

	r.HandleFunc("/readings/latest", s.getLatestReadings).Methods(http.MethodGet)
	r.HandleFunc("/readings/{type}", s.getReadings).Methods(http.MethodGet)
	r.HandleFunc("/readings/{type}/history", s.getHistory).Methods(http.MethodGet)
	r.HandleFunc("/sensors", s.getSensors).Methods(http.MethodGet)
	r.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/refresh", s.postRefresh).Methods(http.MethodPost)
	r.HandleFunc("/thresholds", s.getThresholds).Methods(http.MethodGet)
	r.HandleFunc("/thresholds/{type}", s.putThreshold).Methods(http.MethodPut)
	r.HandleFunc("/settings", s.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", s.putSettings).Methods(http.MethodPut)
	r.HandleFunc("/auth/token", s.postToken).Methods(http.MethodPost)
	return r, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *server) handleError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	var out T
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
