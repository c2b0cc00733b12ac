package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/chadmayfield/waterqd/internal/geo"
	"github.com/chadmayfield/waterqd/internal/query"
	"github.com/chadmayfield/waterqd/internal/store"
)

const maxBodyBytes = 1 << 20

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Store         store.Store
	Finder        *query.Finder
	Logger        *slog.Logger
	StartTime     time.Time
	StorageDriver string
	StoragePath   string
	Version       string
	DefaultLimit  int
	MaxLimit      int
}

// apiError is a JSON error response.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: status})
}

// writeStoreError maps store failures onto HTTP statuses.
func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var se *store.StorageError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "observation not found")
	case errors.Is(err, store.ErrInvalidObservation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &se):
		h.logger().Error("storage failure", "action", action, "op", se.Op, "error", se.Err, "request_id", RequestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	default:
		h.logger().Error("request failed", "action", action, "error", err, "request_id", RequestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func parseObservationID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// observationRequest is the create/update body. Pointers detect missing fields.
type observationRequest struct {
	Location    *store.Location   `json:"location"`
	DateTime    *string           `json:"date_time"`
	Description *string           `json:"description"`
	Parameters  *store.Parameters `json:"parameters"`
}

func decodeObservation(r *http.Request) (*store.Observation, error) {
	var req observationRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	switch {
	case req.Location == nil:
		return nil, errors.New("missing 'location'")
	case req.DateTime == nil:
		return nil, errors.New("missing 'date_time'")
	case req.Description == nil:
		return nil, errors.New("missing 'description'")
	case req.Parameters == nil:
		return nil, errors.New("missing 'parameters'")
	}

	obs := &store.Observation{
		Location:    *req.Location,
		DateTime:    *req.DateTime,
		Description: *req.Description,
		Parameters:  *req.Parameters,
	}
	if obs.Parameters.Contaminants == nil {
		obs.Parameters.Contaminants = []string{}
	}
	return obs, nil
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Root handles GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Water Quality Observations Platform",
	})
}

// CreateObservation handles POST /api/v1/observations
func (h *Handlers) CreateObservation(w http.ResponseWriter, r *http.Request) {
	obs, err := decodeObservation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.Store.Create(r.Context(), obs)
	if err != nil {
		h.writeStoreError(w, r, err, "create observation")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/observations/%d", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

// ListObservations handles GET /api/v1/observations
func (h *Handlers) ListObservations(w http.ResponseWriter, r *http.Request) {
	obs, err := h.Store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err, "list observations")
		return
	}
	if obs == nil {
		obs = []store.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

// GetObservation handles GET /api/v1/observations/{id}
func (h *Handlers) GetObservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObservationID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid observation id")
		return
	}

	obs, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "get observation")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// UpdateObservation handles PUT /api/v1/observations/{id}
func (h *Handlers) UpdateObservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObservationID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid observation id")
		return
	}

	obs, err := decodeObservation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.Store.Update(r.Context(), id, obs)
	if err != nil {
		h.writeStoreError(w, r, err, "update observation")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteObservation handles DELETE /api/v1/observations/{id}
func (h *Handlers) DeleteObservation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObservationID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid observation id")
		return
	}

	if err := h.Store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "delete observation")
		return
	}

	type deleteResponse struct {
		Message string `json:"message"`
		ID      int64  `json:"id"`
	}
	writeJSON(w, http.StatusOK, deleteResponse{Message: "observation deleted", ID: id})
}

// ClosestObservations handles GET /api/v1/observations/closest
func (h *Handlers) ClosestObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid 'latitude' parameter")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid 'longitude' parameter")
		return
	}

	limit := h.DefaultLimit
	if limit <= 0 {
		limit = query.DefaultNearestLimit
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	if h.MaxLimit > 0 && limit > h.MaxLimit {
		limit = h.MaxLimit
	}

	finder := h.Finder
	if finder == nil {
		finder = query.NewFinder(h.Store)
	}
	nearby, err := finder.Find(r.Context(), geo.Point{Latitude: lat, Longitude: lon}, limit)
	if err != nil {
		h.writeStoreError(w, r, err, "find closest observations")
		return
	}
	writeJSON(w, http.StatusOK, nearby)
}

// FilterObservations handles GET /api/v1/observations/filter
func (h *Handlers) FilterObservations(w http.ResponseWriter, r *http.Request) {
	f, err := query.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obs, err := f.Run(r.Context(), h.Store)
	if err != nil {
		h.writeStoreError(w, r, err, "filter observations")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	type dbHealth struct {
		Driver            string `json:"driver"`
		Status            string `json:"status"`
		SizeBytes         int64  `json:"size_bytes,omitempty"`
		TotalObservations int    `json:"total_observations"`
	}
	type healthResponse struct {
		Status   string   `json:"status"`
		Version  string   `json:"version"`
		Uptime   string   `json:"uptime"`
		Database dbHealth `json:"database"`
	}

	resp := healthResponse{
		Status:  "healthy",
		Version: h.Version,
		Uptime:  formatUptime(time.Since(h.StartTime)),
		Database: dbHealth{
			Driver: h.StorageDriver,
			Status: "ok",
		},
	}

	count, err := h.Store.Count(r.Context())
	if err != nil {
		h.logger().Error("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database.Status = "error"
	}
	resp.Database.TotalObservations = count

	// Path omitted to avoid exposing filesystem details.
	if h.StorageDriver == "sqlite" && h.StoragePath != "" {
		if info, err := os.Stat(h.StoragePath); err == nil {
			resp.Database.SizeBytes = info.Size()
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
