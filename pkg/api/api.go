// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// PipelineStep is one operation in a structured pipeline.
type PipelineStep struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// ParamInfo describes one parameter of an operation.
type ParamInfo struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Enum     []string  `json:"enum,omitempty"`
	OneOf    []float64 `json:"one_of,omitempty"`
}

// OperationInfo describes one catalog operation.
type OperationInfo struct {
	Kind              string      `json:"kind"`
	Summary           string      `json:"summary"`
	Params            []ParamInfo `json:"params,omitempty"`
	RequiresInference bool        `json:"requires_inference,omitempty"`
}

// ListOperationsResponse is the response body for the operation catalog.
type ListOperationsResponse struct {
	Operations []OperationInfo `json:"operations"`
}

// PreviewRequest is the request body for a dry-run compilation.
// Either Pipeline or RawCommand must be set, not both.
type PreviewRequest struct {
	Pipeline     []PipelineStep `json:"pipeline,omitempty"`
	RawCommand   string         `json:"raw_command,omitempty"`
	OutputFormat string         `json:"output_format,omitempty"`
	Quality      int            `json:"quality,omitempty"`
}

// PreviewResponse carries the compiled command with placeholder paths.
type PreviewResponse struct {
	Command string `json:"command"`
}

// RunRequest is the request body for a synchronous single-image run.
type RunRequest struct {
	Input        string         `json:"input"`
	Pipeline     []PipelineStep `json:"pipeline,omitempty"`
	RawCommand   string         `json:"raw_command,omitempty"`
	OutputFormat string         `json:"output_format,omitempty"`
	Quality      int            `json:"quality,omitempty"`
}

// RunResponse is the response body after a synchronous run.
type RunResponse struct {
	Output     string `json:"output"`
	Size       int64  `json:"size"`
	DurationMs int64  `json:"duration_ms"`
}

// SubmitJobRequest is the request body for submitting a batch job.
type SubmitJobRequest struct {
	Inputs       []string       `json:"inputs"`
	Pipeline     []PipelineStep `json:"pipeline,omitempty"`
	RawCommand   string         `json:"raw_command,omitempty"`
	OutputFormat string         `json:"output_format,omitempty"`
	Quality      int            `json:"quality,omitempty"`
}

// SubmitJobResponse is the response body after submitting a job.
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
	Items int    `json:"items"`
}

// ItemResponse represents one job item in API responses.
type ItemResponse struct {
	Seq           int        `json:"seq"`
	Input         string     `json:"input"`
	Status        string     `json:"status"`
	Output        *string    `json:"output,omitempty"`
	Size          *int64     `json:"size,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	Error         *string    `json:"error,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// JobStatusResponse is the response body for job status queries.
type JobStatusResponse struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	OutputFormat string         `json:"output_format"`
	Quality      int            `json:"quality"`
	Counts       ItemCounts     `json:"counts"`
	Items        []ItemResponse `json:"items,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
}

// ItemCounts aggregates item states for a job.
type ItemCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Done      int `json:"done"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// CancelJobResponse is the response body after a cancel request.
type CancelJobResponse struct {
	Cancelled bool   `json:"cancelled"`
	Status    string `json:"status"`
}

// ResubmitJobResponse is the response body after resubmitting failed items.
type ResubmitJobResponse struct {
	JobID string `json:"job_id"`
	Items int    `json:"items"`
}

// QueueStatsResponse reports queue depth across all jobs.
type QueueStatsResponse struct {
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
	Settled int64 `json:"settled"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
