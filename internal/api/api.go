// Package api serves the dashboard: an HTML page plus the JSON endpoints for
// statistics over the stored readings, relay commands, live state and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/aggregate"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// Reporter produces the statistics behind GET /api/sensor_data.
type Reporter interface {
	Summary(ctx context.Context) (aggregate.Report, error)
}

// Commander sends relay commands.
type Commander interface {
	Dispatch(ctx context.Context, desired string) (telemetry.RelayState, error)
}

// BrokerStatus reports the MQTT session state for /health.
type BrokerStatus interface {
	Connected() bool
}

// Deps are the components the handlers call into. Metrics and AccessLog
// are optional.
type Deps struct {
	Reporter    Reporter
	Commander   Commander
	Cache       *state.Cache
	Broker      BrokerStatus
	Metrics     http.Handler
	CORSOrigins []string
	AccessLog   io.Writer
	Logger      *slog.Logger
}

// Handler groups the HTTP endpoints.
type Handler struct {
	reporter  Reporter
	commander Commander
	cache     *state.Cache
	broker    BrokerStatus
	logger    *slog.Logger

	stats func(*slog.Logger) systemStats
}

// New builds the router with CORS, access log and panic recovery around it.
func New(d Deps) http.Handler {
	h := &Handler{
		reporter:  d.Reporter,
		commander: d.Commander,
		cache:     d.Cache,
		broker:    d.Broker,
		logger:    d.Logger,
		stats:     collectStats,
	}

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	accessLog := d.AccessLog
	if accessLog == nil {
		accessLog = io.Discard
	}
	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{d.Logger}))(r)
	return handlers.LoggingHandler(accessLog, c.Handler(recovered))
}

// RegisterRoutes maps the endpoints onto r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sensor_data", h.handleSensorData).Methods(http.MethodGet)
	r.HandleFunc("/relay", h.handleRelay).Methods(http.MethodPost)
	r.HandleFunc("/api/state", h.handleState).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/", h.handleDashboard).Methods(http.MethodGet)
}

type noDataResponse struct {
	Message    string               `json:"message"`
	RelayState telemetry.RelayState `json:"relay_state"`
}

// sensorDataResponse keeps the flat field names the dashboard already reads.
type sensorDataResponse struct {
	LuxMax       float64              `json:"luxmax"`
	LuxMin       float64              `json:"luxmin"`
	LuxMean      float64              `json:"luxrata"`
	SuhuMax      float64              `json:"suhumax"`
	SuhuMin      float64              `json:"suhumin"`
	SuhuMean     float64              `json:"suhurata"`
	HumidityMax  float64              `json:"humiditymax"`
	HumidityMin  float64              `json:"humiditymin"`
	HumidityMean float64              `json:"humidityrata"`
	RelayState   telemetry.RelayState `json:"relay_state"`
	MonthYearMax []aggregate.MonthMax `json:"month_year_max"`
	Records      []telemetry.Reading  `json:"records"`
}

// handleSensorData: GET /api/sensor_data
func (h *Handler) handleSensorData(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reporter.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to build sensor summary", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}
	if rep.Empty {
		writeJSON(w, h.logger, http.StatusOK, noDataResponse{Message: "no data", RelayState: rep.RelayState})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sensorDataResponse{
		LuxMax:       rep.Illuminance.Max,
		LuxMin:       rep.Illuminance.Min,
		LuxMean:      rep.Illuminance.Mean,
		SuhuMax:      rep.Temperature.Max,
		SuhuMin:      rep.Temperature.Min,
		SuhuMean:     rep.Temperature.Mean,
		HumidityMax:  rep.Humidity.Max,
		HumidityMin:  rep.Humidity.Min,
		HumidityMean: rep.Humidity.Mean,
		RelayState:   rep.RelayState,
		MonthYearMax: rep.MonthlyMax,
		Records:      rep.Records,
	})
}

type relayRequest struct {
	State string `json:"state"`
}

type relayResponse struct {
	Status     string               `json:"status"`
	RelayState telemetry.RelayState `json:"relay_state"`
}

// handleRelay: POST /relay {"state": "ON"|"OFF"}
func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s, err := h.commander.Dispatch(r.Context(), req.State)
	switch {
	case errors.Is(err, telemetry.ErrInvalidRelayState):
		writeError(w, h.logger, http.StatusBadRequest, telemetry.ErrInvalidRelayState.Error())
		return
	case err != nil:
		h.logger.Error("Relay command failed", "state", req.State, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, relayResponse{Status: "Relay " + string(s), RelayState: s})
}

// handleState: GET /api/state
func (h *Handler) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.cache.Get())
}

type healthResponse struct {
	Status          string `json:"status"`
	BrokerConnected bool   `json:"broker_connected"`
	systemStats
}

// handleHealth: GET /health. Always 200 while the process serves HTTP; a
// lost broker session is reported as "degraded", the bridge keeps running
// on cached values until paho reconnects.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:          "ok",
		BrokerConnected: h.broker.Connected(),
		systemStats:     h.stats(h.logger),
	}
	if !resp.BrokerConnected {
		resp.Status = "degraded"
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// recoveryLogger sends recovered handler panics to slog.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("HTTP handler panicked", "panic", v)
}
