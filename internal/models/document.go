package models

import (
	"time"
)

// ProcessingTask is the status record of a queued generation job.
type ProcessingTask struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)

// Terminal reports whether no further transition is expected.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StoredFile points at an upload parked in blob storage for the worker.
type StoredFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Key      string `json:"key"`
}

// GenerationResult is what a finished job leaves behind.
type GenerationResult struct {
	TaskID      string           `json:"taskId"`
	SessionID   string           `json:"sessionId"`
	Content     string           `json:"content"`
	Usage       TokenUsage       `json:"usage"`
	TokenCount  int              `json:"contextTokens"`
	Files       []ExtractionTask `json:"files"`
	CompletedAt time.Time        `json:"completedAt"`
}
