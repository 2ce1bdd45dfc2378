// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"imageforge/internal/catalog"
	"imageforge/internal/compiler"
	"imageforge/internal/executor"
	"imageforge/internal/guard"
	"imageforge/internal/logger"
	"imageforge/internal/packager"
	"imageforge/internal/store"
	"imageforge/pkg/api"
)

// Store combines the persistence interfaces the controller needs.
type Store interface {
	Ping(ctx context.Context) error
	store.JobStore
	store.Queue
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    Store
	catalog  *catalog.Catalog
	compiler *compiler.Compiler
	executor *executor.Executor
	packager *packager.Packager
	logger   *slog.Logger
}

// Deps bundles the collaborators for New.
type Deps struct {
	Store    Store
	Catalog  *catalog.Catalog
	Compiler *compiler.Compiler
	Executor *executor.Executor
	Packager *packager.Packager
	Logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{
		store:    d.Store,
		catalog:  d.Catalog,
		compiler: d.Compiler,
		executor: d.Executor,
		packager: d.Packager,
		logger:   d.Logger,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// log returns the handler logger with request-scoped fields attached.
func (h *Handlers) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, h.logger)
}

// compileError maps compilation failures to response codes: bad pipelines
// and bad paths are client errors, everything else is a server fault.
// Rejected paths are a security event: the offending path goes to the log
// under the request ID while the caller gets a generic rejection.
func (h *Handlers) compileError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *catalog.ValidationError
	var de *catalog.DisallowedOperationError
	var pe *guard.PathError

	switch {
	case errors.As(err, &ve), errors.As(err, &de):
		h.httpError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &pe):
		h.log(r.Context()).Warn("request path rejected",
			"path", pe.Path,
			"reason", pe.Reason,
			"remote_addr", r.RemoteAddr,
		)
		h.httpError(w, "Path not allowed", http.StatusBadRequest)
	default:
		h.log(r.Context()).Error("compile failed", "error", err)
		h.httpError(w, "Failed to compile command", http.StatusInternalServerError)
	}
}

// toRequests converts API pipeline steps into catalog requests.
func toRequests(steps []api.PipelineStep) []catalog.Request {
	reqs := make([]catalog.Request, len(steps))
	for i, s := range steps {
		reqs[i] = catalog.Request{Kind: s.Kind, Params: s.Params}
	}
	return reqs
}
