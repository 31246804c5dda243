package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/SteerGo/internal/debug"
	"github.com/cjeanneret/SteerGo/internal/logic/cycle"
	"github.com/cjeanneret/SteerGo/internal/logic/steering"
)

// maxBodyBytes bounds request bodies; commands are a few bytes of JSON.
const maxBodyBytes = 1 << 10

// commandTimeout bounds how long a request waits for the control cycle.
const commandTimeout = 2 * time.Second

// Steering is the part of the control cycle the handlers drive.
// *cycle.Runner implements it.
type Steering interface {
	Statuses(ctx context.Context) ([]steering.Status, error)
	SetTarget(ctx context.Context, label string, deg float64) error
	Calibrate(ctx context.Context, label, mode string) error
}

// TargetRequest is the body of POST /modules/{label}/target.
type TargetRequest struct {
	Deg float64 `json:"deg"`
}

// CalibrateRequest is the body of POST /modules/{label}/calibrate.
type CalibrateRequest struct {
	Mode string `json:"mode"` // here | absolute | recheck
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Steering    Steering
	Metrics     http.Handler
}

// NewHandlers creates handlers with the given dependencies.
// If metrics is nil, GET /metrics returns 404.
func NewHandlers(broadcaster *StatusBroadcaster, s Steering, metrics http.Handler) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Steering:    s,
		Metrics:     metrics,
	}
}

// ValidateTarget checks that a target heading is a finite number of degrees.
// Any finite value is accepted; the module wraps it.
func ValidateTarget(deg float64) error {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return fmt.Errorf("deg must be a finite number, got %g", deg)
	}
	if math.Abs(deg) > 3600 {
		return fmt.Errorf("deg must be between -3600 and 3600, got %g", deg)
	}
	return nil
}

// HandleModules handles GET /modules: the status of every module as JSON.
func (h *Handlers) HandleModules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	statuses, err := h.Steering.Statuses(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// HandleTarget handles POST /modules/{label}/target.
func (h *Handlers) HandleTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	label := r.PathValue("label")

	var req TargetRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateTarget(req.Deg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := h.Steering.SetTarget(ctx, label, req.Deg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"label": label, "target_deg": req.Deg})
}

// HandleCalibrate handles POST /modules/{label}/calibrate.
func (h *Handlers) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	label := r.PathValue("label")

	var req CalibrateRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := h.Steering.Calibrate(ctx, label, req.Mode); err != nil {
		writeError(w, err)
		return
	}
	h.Broadcaster.Broadcast(LevelInfo, fmt.Sprintf("Module %s: calibration %q done", label, req.Mode))
	writeJSON(w, http.StatusOK, map[string]string{"label": label, "mode": req.Mode, "status": "done"})
}

// HandleMetrics serves the Prometheus scrape endpoint.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.Metrics.ServeHTTP(w, r)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps control errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, cycle.ErrUnknownModule):
		code = http.StatusNotFound
	case errors.Is(err, cycle.ErrUnknownCalibration):
		code = http.StatusBadRequest
	case errors.Is(err, steering.ErrDriftWhileMoving),
		errors.Is(err, steering.ErrSensorUnavailable),
		errors.Is(err, steering.ErrSensorUnhealthy):
		code = http.StatusConflict
	case errors.Is(err, steering.ErrActuatorWriteRejected):
		code = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusServiceUnavailable
	}
	debug.Verbose("HTTP %d: %v", code, err)
	http.Error(w, err.Error(), code)
}
