package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imageforge/internal/compiler"
	"imageforge/internal/controller/middleware"
	"imageforge/internal/packager"
	"imageforge/internal/store"
	"imageforge/pkg/api"

	"github.com/google/uuid"
)

// SubmitJob handles POST /jobs.
// Every input is compiled up front so a bad pipeline or a forbidden path
// rejects the whole batch before anything is queued.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		h.httpError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req api.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Inputs) == 0 {
		h.httpError(w, "At least one input is required", http.StatusBadRequest)
		return
	}
	if (len(req.Pipeline) == 0) == (req.RawCommand == "") {
		h.httpError(w, "Exactly one of pipeline or raw_command is required", http.StatusBadRequest)
		return
	}

	opts := compiler.Options{OutputFormat: req.OutputFormat, Quality: req.Quality}
	reqs := toRequests(req.Pipeline)

	for _, input := range req.Inputs {
		var err error
		if req.RawCommand != "" {
			_, err = h.compiler.CompileRaw(req.RawCommand, input, opts)
		} else {
			_, err = h.compiler.Compile(reqs, input, opts)
		}
		if err != nil {
			h.compileError(w, r, fmt.Errorf("input %q: %w", input, err))
			return
		}
	}

	format := strings.ToLower(req.OutputFormat)
	if format == "" {
		format = compiler.DefaultFormat
	}
	quality := req.Quality
	if quality == 0 {
		quality = compiler.DefaultQuality
	}

	now := time.Now().UTC()
	job := &store.Job{
		ID:           uuid.New().String(),
		Owner:        identity.Owner,
		Status:       store.JobStatusPending,
		OutputFormat: format,
		Quality:      quality,
		CreatedAt:    now,
	}
	if req.RawCommand != "" {
		job.RawCommand = &req.RawCommand
	} else {
		pipeline, err := json.Marshal(reqs)
		if err != nil {
			h.log(r.Context()).Error("failed to marshal pipeline", "error", err)
			h.httpError(w, "Failed to create job", http.StatusInternalServerError)
			return
		}
		job.Pipeline = pipeline
	}

	items := make([]*store.JobItem, len(req.Inputs))
	for i, input := range req.Inputs {
		items[i] = &store.JobItem{
			ID:        uuid.New().String(),
			JobID:     job.ID,
			Seq:       i,
			InputPath: input,
			Status:    store.ItemStatusPending,
			CreatedAt: now,
		}
	}

	if err := h.store.CreateJob(ctx, job, items); err != nil {
		h.log(r.Context()).Error("failed to create job", "error", err)
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.SubmitJobResponse{
		JobID: job.ID,
		Items: len(items),
	})
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	jobID := uuid.MustParse(job.ID)

	counts, err := h.store.CountItems(ctx, jobID)
	if err != nil {
		h.log(r.Context()).Error("failed to count items", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to retrieve job", http.StatusInternalServerError)
		return
	}

	items, err := h.store.ListItems(ctx, jobID)
	if err != nil {
		h.log(r.Context()).Error("failed to list items", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to retrieve job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, jobStatusResponse(job, counts, items))
}

// CancelJob handles POST /jobs/{id}/cancel.
// Pending items are cancelled immediately; running items finish on their
// own and keep their eventual result.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	cancelled, err := h.store.CancelJob(ctx, uuid.MustParse(job.ID))
	if err != nil {
		h.log(r.Context()).Error("failed to cancel job", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	status := job.Status
	if cancelled {
		status = store.JobStatusCancelled
	}
	h.respondJson(w, http.StatusOK, api.CancelJobResponse{
		Cancelled: cancelled,
		Status:    string(status),
	})
}

// ResubmitJob handles POST /jobs/{id}/resubmit.
// A new job is created from the failed items' inputs; the original job and
// its items are never modified.
func (h *Handlers) ResubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		h.httpError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	if !job.Status.Terminal() {
		h.httpError(w, "Job is still in progress", http.StatusConflict)
		return
	}

	items, err := h.store.ListItems(ctx, uuid.MustParse(job.ID))
	if err != nil {
		h.log(r.Context()).Error("failed to list items", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to resubmit job", http.StatusInternalServerError)
		return
	}

	var inputs []string
	for _, item := range items {
		if item.Status == store.ItemStatusFailed {
			inputs = append(inputs, item.InputPath)
		}
	}
	if len(inputs) == 0 {
		h.httpError(w, "Job has no failed items", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	retry := &store.Job{
		ID:           uuid.New().String(),
		Owner:        identity.Owner,
		Status:       store.JobStatusPending,
		Pipeline:     job.Pipeline,
		RawCommand:   job.RawCommand,
		OutputFormat: job.OutputFormat,
		Quality:      job.Quality,
		CreatedAt:    now,
	}
	retryItems := make([]*store.JobItem, len(inputs))
	for i, input := range inputs {
		retryItems[i] = &store.JobItem{
			ID:        uuid.New().String(),
			JobID:     retry.ID,
			Seq:       i,
			InputPath: input,
			Status:    store.ItemStatusPending,
			CreatedAt: now,
		}
	}

	if err := h.store.CreateJob(ctx, retry, retryItems); err != nil {
		h.log(r.Context()).Error("failed to resubmit job", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to resubmit job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.ResubmitJobResponse{
		JobID: retry.ID,
		Items: len(retryItems),
	})
}

// DownloadJob handles GET /jobs/{id}/download.
// The archive is built on first request and reused until its retention
// window lapses.
func (h *Handlers) DownloadJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	if !job.Status.Terminal() {
		h.httpError(w, "Job is still in progress", http.StatusConflict)
		return
	}

	// An archive that only survives in the object store is served from
	// there instead of being rebuilt.
	if url, ok := h.packager.RedirectURL(ctx, job); ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	items, err := h.store.ListItems(ctx, uuid.MustParse(job.ID))
	if err != nil {
		h.log(r.Context()).Error("failed to list items", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to package results", http.StatusInternalServerError)
		return
	}

	path, err := h.packager.Package(ctx, job, items)
	if err != nil {
		var expired *packager.ExpiredError
		if errors.As(err, &expired) {
			h.httpError(w, expired.Error(), http.StatusGone)
			return
		}
		h.log(r.Context()).Error("failed to package results", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to package results", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".zip"))
	http.ServeFile(w, r, path)
}

// QueueStats handles GET /queue/stats (Admin Only).
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.log(r.Context()).Error("failed to read queue stats", "error", err)
		h.httpError(w, "Failed to read queue stats", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.QueueStatsResponse{
		Pending: stats.Pending,
		Running: stats.Running,
		Settled: stats.Settled,
	})
}

// loadJob parses the path ID, fetches the job and enforces owner scoping.
// Jobs of other owners read as not found so IDs cannot be probed.
func (h *Handlers) loadJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job ID", http.StatusBadRequest)
		return nil, false
	}

	job, err := h.store.GetJobByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return nil, false
		}
		h.log(r.Context()).Error("failed to fetch job", "job_id", id, "error", err)
		h.httpError(w, "Failed to retrieve job", http.StatusInternalServerError)
		return nil, false
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.httpError(w, "Authentication required", http.StatusUnauthorized)
		return nil, false
	}
	if job.Owner != identity.Owner && !identity.Admin {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return nil, false
	}

	return job, true
}

func jobStatusResponse(job *store.Job, counts store.ItemCounts, items []*store.JobItem) api.JobStatusResponse {
	resp := api.JobStatusResponse{
		ID:           job.ID,
		Status:       string(job.Status),
		OutputFormat: job.OutputFormat,
		Quality:      job.Quality,
		Counts: api.ItemCounts{
			Pending:   counts.Pending,
			Running:   counts.Running,
			Done:      counts.Done,
			Failed:    counts.Failed,
			Cancelled: counts.Cancelled,
		},
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		ExpiresAt:   job.ExpiresAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, api.ItemResponse{
			Seq:           item.Seq,
			Input:         item.InputPath,
			Status:        string(item.Status),
			Output:        item.OutputPath,
			Size:          item.OutputSize,
			FailureReason: item.FailureReason,
			Error:         item.ErrorMessage,
			StartedAt:     item.StartedAt,
			CompletedAt:   item.CompletedAt,
		})
	}
	return resp
}
