package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"phobos.org.uk/groqbridge/internal/api"
	"phobos.org.uk/groqbridge/internal/logging"
	"phobos.org.uk/groqbridge/internal/model"
	"phobos.org.uk/groqbridge/internal/paths"
)

// StatusResponse represents the /status response
type StatusResponse struct {
	Type              string                 `json:"type"`
	Version           string                 `json:"version"`
	State             State                  `json:"state"`
	UptimeSeconds     float64                `json:"uptime_seconds"`
	CurrentInvocation *api.CurrentInvocation `json:"current_invocation"`
	Config            StatusConfig           `json:"config"`
}

// StatusConfig shows bridge config in status
type StatusConfig struct {
	Port           int     `json:"port"`
	Model          string  `json:"model"`
	PythonPath     string  `json:"python_path"`
	ScriptPath     string  `json:"script_path"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// Router returns the HTTP router
func (b *Bridge) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/status", b.handleStatus)
	r.Get("/models", b.handleModels)
	r.Post("/invoke", b.handleInvoke)
	r.Get("/invocations/last", b.handleLast)
	r.Post("/shutdown", b.handleShutdown)

	r.Get("/logs", b.handleLogs)
	r.Get("/logs/stats", b.handleLogStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}))

	return r
}

func (b *Bridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	resp := StatusResponse{
		Type:          api.TypeBridge,
		Version:       b.version,
		State:         b.state,
		UptimeSeconds: time.Since(b.startTime).Seconds(),
		Config: StatusConfig{
			Port:           b.config.Port,
			Model:          b.config.Selection().ID(),
			PythonPath:     b.config.PythonPath,
			ScriptPath:     b.config.ScriptPath,
			TimeoutSeconds: b.config.Timeout.Seconds(),
		},
	}

	if b.current != nil {
		resp.CurrentInvocation = &api.CurrentInvocation{
			ID:            b.current.ID,
			StartedAt:     b.current.StartedAt.Format(time.RFC3339),
			Phase:         string(b.current.Phase),
			ModelID:       b.current.ModelID,
			PromptPreview: b.current.PromptPreview,
		}
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleModels(w http.ResponseWriter, r *http.Request) {
	def := b.config.Selection()
	models := make([]api.ModelInfo, 0, len(model.All()))
	for _, m := range model.All() {
		models = append(models, api.ModelInfo{
			Name:    m.String(),
			ID:      m.ID(),
			Default: m == def,
		})
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleInvoke runs the script synchronously and returns the invocation.
// A script that exits non-zero is still a 200: the failure is in the result.
// Returns 409 if an invocation is in flight and 422 if a path is missing.
func (b *Bridge) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req api.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "Invalid JSON: "+err.Error())
		return
	}

	inv, err := b.Invoke(r.Context(), req.Prompt, req.Model)
	switch {
	case err == nil:
		api.WriteJSON(w, http.StatusOK, inv)
	case errors.Is(err, ErrBusy):
		api.WriteError(w, http.StatusConflict, api.ErrorBusy, err.Error())
	case paths.IsNotFound(err):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ErrorPathNotFound, err.Error())
	default:
		api.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (b *Bridge) handleLast(w http.ResponseWriter, r *http.Request) {
	inv, ok := b.Last()
	if !ok {
		api.WriteError(w, http.StatusNotFound, api.ErrorNotFound, "No invocation has completed yet")
		return
	}
	api.WriteJSON(w, http.StatusOK, inv)
}

// handleShutdown initiates graceful shutdown.
// If force=false and an invocation is running, returns 409.
func (b *Bridge) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TimeoutSeconds int  `json:"timeout_seconds"`
		Force          bool `json:"force"`
	}
	req.TimeoutSeconds = 30

	// Defaults are safe when the body is empty or malformed
	_ = json.NewDecoder(r.Body).Decode(&req)

	if b.State() == StateWorking && !req.Force {
		api.WriteError(w, http.StatusConflict, api.ErrorInProgress,
			"An invocation is running. Use force=true to terminate.")
		return
	}

	api.WriteJSON(w, http.StatusAccepted, map[string]any{
		"message":       "Shutdown initiated",
		"drain_timeout": req.TimeoutSeconds,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
		b.Shutdown(ctx)
	}()
}

// handleLogs returns log entries with optional filtering.
// Query params:
//   - level: minimum log level (debug, info, warn, error)
//   - invocation_id: filter by invocation
//   - since, until: RFC3339 bounds
//   - limit: max entries to return (default 100)
func (b *Bridge) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := api.ParseIntParam(q.Get("limit"), 1, 1000, 100)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, fmt.Sprintf("limit %v", err))
		return
	}
	since, err := api.ParseTimeParam(q.Get("since"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, fmt.Sprintf("since %v", err))
		return
	}
	until, err := api.ParseTimeParam(q.Get("until"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, fmt.Sprintf("until %v", err))
		return
	}

	query := logging.Query{
		InvocationID: q.Get("invocation_id"),
		Since:        since,
		Until:        until,
		Limit:        limit,
	}
	if level := q.Get("level"); level != "" {
		query.Level = logging.ParseLevel(level)
	}

	api.WriteJSON(w, http.StatusOK, b.log.Query(query))
}

func (b *Bridge) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, b.log.Stats())
}
