package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
)

const maxBodyBytes = 1 << 20

// GroupQuerier answers aggregate queries over a group of sensors.
type GroupQuerier interface {
	GroupLatest(ctx context.Context, sensorIDs []string, r domain.TimeRange) (time.Time, bool, error)
	BucketedAverages(ctx context.Context, sensorIDs []string, variable string, r domain.TimeRange, width time.Duration) ([]domain.Bucket, bool, error)
	Summaries(ctx context.Context, sensorIDs []string, r domain.TimeRange) (map[string]domain.Summary, error)
	Heatmap(ctx context.Context, sensorIDs []string, variable string, r domain.TimeRange, geometry map[string]json.RawMessage) (domain.Heatmap, bool, error)
}

// Catalog lists the themes and variables the registry knows.
type Catalog interface {
	Themes() []string
	Variables(theme string) []domain.Variable
}

// SensorRegistrar stores sensor metadata with canonicalized tags.
type SensorRegistrar interface {
	Register(ctx context.Context, info domain.SensorInfo) (domain.Registration, error)
}

// UnitReports lists reading names and units seen in the feed but missing from
// the registry.
type UnitReports interface {
	PendingUnits(ctx context.Context) ([]domain.NewUnitObserved, error)
}

// API serves the read-only query endpoints and sensor registration.
type API struct {
	groups  GroupQuerier
	catalog Catalog
	sensors SensorRegistrar
	units   UnitReports
	logger  *slog.Logger
}

func NewAPI(groups GroupQuerier, catalog Catalog, sensors SensorRegistrar, units UnitReports, logger *slog.Logger) *API {
	return &API{groups: groups, catalog: catalog, sensors: sensors, units: units, logger: logger}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/themes", a.handleThemes)
	mux.HandleFunc("GET /v1/variables", a.handleVariables)
	mux.HandleFunc("GET /v1/units/pending", a.handlePendingUnits)
	mux.HandleFunc("GET /v1/groups/latest", a.handleLatest)
	mux.HandleFunc("GET /v1/groups/averages", a.handleAverages)
	mux.HandleFunc("GET /v1/groups/summary", a.handleSummary)
	mux.HandleFunc("POST /v1/groups/heatmap", a.handleHeatmap)
	mux.HandleFunc("POST /v1/sensors", a.handleRegisterSensor)
}

type latestResponse struct {
	HasData bool       `json:"has_data"`
	Latest  *time.Time `json:"latest,omitempty"`
}

type averagesResponse struct {
	HasData bool            `json:"has_data"`
	Buckets []domain.Bucket `json:"buckets"`
}

type heatmapRequest struct {
	Sensors  []string                   `json:"sensors"`
	Variable string                     `json:"variable"`
	Start    time.Time                  `json:"start"`
	End      time.Time                  `json:"end"`
	Geometry map[string]json.RawMessage `json:"geometry,omitempty"`
}

type heatmapResponse struct {
	HasData bool            `json:"has_data"`
	Heatmap *domain.Heatmap `json:"heatmap,omitempty"`
}

type registrationResponse struct {
	Sensor    domain.SensorInfo `json:"sensor"`
	NewType   bool              `json:"new_type"`
	NewSource bool              `json:"new_source"`
}

func (a *API) handleThemes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"themes": a.catalog.Themes()})
}

func (a *API) handleVariables(w http.ResponseWriter, r *http.Request) {
	vars := a.catalog.Variables(r.URL.Query().Get("theme"))
	writeJSON(w, http.StatusOK, map[string][]domain.Variable{"variables": vars})
}

func (a *API) handlePendingUnits(w http.ResponseWriter, r *http.Request) {
	units, err := a.units.PendingUnits(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.NewUnitObserved{"units": units})
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	ids, tr, err := groupParams(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	latest, ok, err := a.groups.GroupLatest(r.Context(), ids, tr)
	if err != nil {
		a.writeError(w, err)
		return
	}
	resp := latestResponse{HasData: ok}
	if ok {
		resp.Latest = &latest
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAverages(w http.ResponseWriter, r *http.Request) {
	ids, tr, err := groupParams(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	q := r.URL.Query()
	width, err := time.ParseDuration(q.Get("bucket"))
	if err != nil {
		a.writeError(w, badRequest("bucket must be a duration such as 1h"))
		return
	}
	buckets, ok, err := a.groups.BucketedAverages(r.Context(), ids, q.Get("variable"), tr, width)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, averagesResponse{HasData: ok, Buckets: buckets})
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	ids, tr, err := groupParams(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	summaries, err := a.groups.Summaries(r.Context(), ids, tr)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]domain.Summary{"summaries": summaries})
}

func (a *API) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	var req heatmapRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	hm, ok, err := a.groups.Heatmap(r.Context(), req.Sensors, req.Variable,
		domain.TimeRange{Start: req.Start, End: req.End}, req.Geometry)
	if err != nil {
		a.writeError(w, err)
		return
	}
	resp := heatmapResponse{HasData: ok}
	if ok {
		resp.Heatmap = &hm
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegisterSensor(w http.ResponseWriter, r *http.Request) {
	var info domain.SensorInfo
	if err := decodeBody(w, r, &info); err != nil {
		a.writeError(w, err)
		return
	}
	reg, err := a.sensors.Register(r.Context(), info)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.logger.Info("sensor registered",
		"sensor_id", reg.Sensor.ID,
		"name", reg.Sensor.Name,
		"new_type", reg.NewType,
		"new_source", reg.NewSource,
	)
	writeJSON(w, http.StatusOK, registrationResponse{
		Sensor:    reg.Sensor,
		NewType:   reg.NewType,
		NewSource: reg.NewSource,
	})
}

// groupParams reads the repeated sensor parameter and the RFC 3339 start and
// end bounds.
func groupParams(r *http.Request) ([]string, domain.TimeRange, error) {
	q := r.URL.Query()
	var ids []string
	for _, v := range q["sensor"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		return nil, domain.TimeRange{}, badRequest("start must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		return nil, domain.TimeRange{}, badRequest("end must be an RFC 3339 timestamp")
	}
	return ids, domain.TimeRange{Start: start, End: end}, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func (a *API) writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		a.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
