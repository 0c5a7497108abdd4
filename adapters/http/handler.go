// Package http provides the REST wrapper around the module.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/amodule/app"
	"github.com/artpar/amodule/core/contract"
	"github.com/artpar/amodule/core/spec"
	"github.com/artpar/amodule/domain/run"
	"github.com/artpar/amodule/pkg/jsonapi"
	"github.com/artpar/amodule/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 1000
)

// Module is the part of the detector the REST wrapper needs.
type Module interface {
	Spec() *spec.Specification
	Invoke(ctx context.Context, method string, values ...any) ([]any, error)
}

// ModuleHandler serves the specification, method invocation and run history.
type ModuleHandler struct {
	module       Module
	codec        ImageCodec
	runs         ports.RunStore
	clock        ports.Clock
	logger       zerolog.Logger
	maxBodyBytes int64
}

// HandlerDeps contains dependencies for ModuleHandler. Runs may be nil
// when run history is disabled.
type HandlerDeps struct {
	Module       Module
	Codec        ImageCodec
	Runs         ports.RunStore
	Clock        ports.Clock
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

// NewModuleHandler creates a new module handler.
func NewModuleHandler(deps HandlerDeps) *ModuleHandler {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	return &ModuleHandler{
		module:       deps.Module,
		codec:        deps.Codec,
		runs:         deps.Runs,
		clock:        deps.Clock,
		logger:       deps.Logger,
		maxBodyBytes: maxBody,
	}
}

// Routes mounts the handler's endpoints on r.
func (h *ModuleHandler) Routes(r chi.Router) {
	r.Get("/spec", h.GetSpec)
	r.Get("/module", h.GetModule)
	r.Post("/methods/{method}", h.Invoke)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/summary", h.Summary)
	r.Get("/runs/{id}", h.GetRun)
}

// GetSpec returns the full specification.
func (h *ModuleHandler) GetSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.module.Spec())
}

// ModuleResponse is the body of GET /api/module.
type ModuleResponse struct {
	spec.ModuleMeta
	Methods []string `json:"methods"`
}

// GetModule returns the module metadata and its method names.
func (h *ModuleHandler) GetModule(w http.ResponseWriter, r *http.Request) {
	s := h.module.Spec()
	writeJSON(w, http.StatusOK, ModuleResponse{
		ModuleMeta: s.Module,
		Methods:    s.MethodNames(),
	})
}

// Invoke validates the JSON body against the method's inputs, runs the
// method and returns its outputs keyed by parameter name.
func (h *ModuleHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	ctx := app.WithSource(r.Context(), "http")
	name := chi.URLParam(r, "method")

	m, ok := h.module.Spec().Method(name)
	if !ok {
		// Let the module record the attempt and produce the error.
		_, err := h.module.Invoke(ctx, name)
		if err == nil {
			err = &contract.UnknownMethodError{Method: name}
		}
		h.writeInvokeError(w, name, err)
		return
	}

	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonapi.WriteError(w, jsonapi.NewError(413, "payload_too_large", "Payload Too Large").
				Detailf("Request body exceeds %d bytes", tooLarge.Limit).Build())
			return
		}
		jsonapi.WriteBadRequest(w, "Request body must be a JSON object: "+err.Error())
		return
	}

	values, err := decodeInputs(m, body, h.codec)
	if err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			jsonapi.WriteBadRequest(w, bad.msg)
			return
		}
		h.writeInvokeError(w, name, err)
		return
	}

	out, err := h.module.Invoke(ctx, name, values...)
	if err != nil {
		h.writeInvokeError(w, name, err)
		return
	}

	resp, err := encodeOutputs(m, out, h.codec)
	if err != nil {
		h.logger.Error().Err(err).Str("method", name).Msg("failed to encode outputs")
		jsonapi.WriteInternalError(w, "Failed to encode outputs")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeInvokeError maps invocation errors to JSON:API errors.
func (h *ModuleHandler) writeInvokeError(w http.ResponseWriter, method string, err error) {
	var (
		unknown *contract.UnknownMethodError
		arity   *contract.ArityMismatchError
		typ     *contract.TypeMismatchError
	)

	if errors.As(err, &unknown) {
		jsonapi.WriteError(w, jsonapi.ErrUnknownMethod(unknown.Method))
		return
	}

	if dir, ok := contract.Direction(err); ok {
		if dir == spec.Output {
			jsonapi.WriteError(w, jsonapi.ErrContractViolation(err.Error()))
			return
		}
		switch {
		case errors.As(err, &arity):
			jsonapi.WriteError(w, jsonapi.ErrArityMismatch(err.Error()))
		case errors.As(err, &typ):
			jsonapi.WriteError(w, jsonapi.ErrTypeMismatch(typ.Param, err.Error()))
		default:
			jsonapi.WriteError(w, jsonapi.ErrBadRequest(err.Error()))
		}
		return
	}

	switch {
	case errors.Is(err, app.ErrNotImplemented):
		jsonapi.WriteError(w, jsonapi.ErrNotImplemented("Method '"+method+"'"))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable("Request cancelled before the method completed"))
	default:
		h.logger.Error().Err(err).Str("method", method).Msg("method failed")
		jsonapi.WriteInternalError(w, "")
	}
}

// ListRuns returns recent runs, newest first.
func (h *ModuleHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireRuns(w) {
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunLimit {
			jsonapi.WriteError(w, jsonapi.NewError(400, "bad_request", "Bad Request").
				Detailf("limit must be an integer between 1 and %d", maxRunLimit).
				Parameter("limit").
				Build())
			return
		}
		limit = n
	}

	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		jsonapi.WriteInternalError(w, "Failed to list runs")
		return
	}

	resources := make([]jsonapi.Resource, 0, len(runs))
	for _, rn := range runs {
		resources = append(resources, runResource(rn))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, jsonapi.Meta{"limit": limit})
}

// GetRun returns one run by ID.
func (h *ModuleHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireRuns(w) {
		return
	}

	id := chi.URLParam(r, "id")
	rn, err := h.runs.Get(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("run", id))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("failed to get run")
		jsonapi.WriteInternalError(w, "Failed to get run")
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, runResource(rn))
}

// Summary aggregates runs, optionally over a trailing window such as
// ?window=1h.
func (h *ModuleHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if !h.requireRuns(w) {
		return
	}

	var since time.Time
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			jsonapi.WriteError(w, jsonapi.NewError(400, "bad_request", "Bad Request").
				Detail("window must be a positive duration such as 15m or 24h").
				Parameter("window").
				Build())
			return
		}
		since = h.clock.Now().Add(-d)
	}

	runs, err := h.runs.Since(r.Context(), since)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to summarize runs")
		jsonapi.WriteInternalError(w, "Failed to summarize runs")
		return
	}
	writeJSON(w, http.StatusOK, run.Summarize(runs))
}

func (h *ModuleHandler) requireRuns(w http.ResponseWriter) bool {
	if h.runs == nil {
		jsonapi.WriteError(w, jsonapi.ErrNotImplemented("Run history"))
		return false
	}
	return true
}

func runResource(r run.Run) jsonapi.Resource {
	outputs := r.Outputs
	if outputs == nil {
		outputs = map[string]any{}
	}
	return jsonapi.NewResource("runs", r.ID).
		Attr("method", r.Method).
		Attr("status", string(r.Status)).
		Attr("source", r.Source).
		Attr("outputs", outputs).
		AttrIf(r.Error != "", "error", r.Error).
		Attr("started_at", r.StartedAt.UTC().Format(time.RFC3339Nano)).
		Attr("duration_ms", float64(r.Duration)/float64(time.Millisecond)).
		Link("/api/runs/" + r.ID).
		Build()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checker ReadyChecker
}

// ReadyChecker reports whether a dependency can serve traffic.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. checker may be nil.
func NewHealthHandler(checker ReadyChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness checks if the service is ready to handle traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.checker != nil {
		if err := h.checker.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version       string `json:"version" example:"1.0.0"`
	Service       string `json:"service" example:"amodule"`
	Module        string `json:"module" example:"Bright Pixel Segmenter"`
	ModuleVersion string `json:"module_version" example:"1.0.0"`
}

// VersionHandler returns the service and module versions.
func VersionHandler(version string, meta spec.ModuleMeta) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	resp := VersionResponse{
		Version:       version,
		Service:       "amodule",
		Module:        meta.Name,
		ModuleVersion: meta.Version,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}
