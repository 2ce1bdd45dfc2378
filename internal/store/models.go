// Package store contains the database layer for imageforge.
package store

import (
	"encoding/json"
	"time"
)

// Job represents a batch submission: one pipeline applied to many inputs.
// Pipeline holds the structured operation requests as JSON; RawCommand is
// set instead when the job was submitted in terminal mode.
type Job struct {
	ID           string
	Owner        string // hash of the submitting API key
	Status       JobStatus
	Pipeline     json.RawMessage
	RawCommand   *string
	OutputFormat string
	Quality      int
	ArchivePath  *string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// JobItem represents one input image within a job. Items are the unit of
// queueing and execution; a job's status is derived from its items.
type JobItem struct {
	ID            string
	JobID         string
	Seq           int
	InputPath     string
	Status        ItemStatus
	OutputPath    *string
	OutputSize    *int64
	FailureReason *string
	ErrorMessage  *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// JobStatus represents the state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ItemStatus represents the state of a single job item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusRunning   ItemStatus = "running"
	ItemStatusDone      ItemStatus = "done"
	ItemStatusFailed    ItemStatus = "failed"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// ItemCounts aggregates item states for one job.
type ItemCounts struct {
	Pending   int
	Running   int
	Done      int
	Failed    int
	Cancelled int
}

// Total returns the number of items in the job.
func (c ItemCounts) Total() int {
	return c.Pending + c.Running + c.Done + c.Failed + c.Cancelled
}

// Settled returns the number of items that reached a terminal state.
func (c ItemCounts) Settled() int {
	return c.Done + c.Failed + c.Cancelled
}
