package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an upload job.
type JobStatus string

const (
	JobStatusCreated         JobStatus = "created"
	JobStatusUploadConfirmed JobStatus = "upload_confirmed"
	JobStatusQueued          JobStatus = "queued"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
)

// UploadJob tracks one document's upload-to-processing lifecycle. This service
// owns the created -> upload_confirmed -> queued transitions; the processing
// worker owns the rest.
type UploadJob struct {
	ID                uuid.UUID              `json:"id"`
	UserID            string                 `json:"user_id"`
	FileName          string                 `json:"file_name"`
	FileSize          int64                  `json:"file_size"`
	FileType          string                 `json:"file_type"`
	ProcessingOptions map[string]interface{} `json:"processing_options,omitempty"`
	Status            JobStatus              `json:"status"`
	UploadID          *string                `json:"upload_id,omitempty"`
	ErrorMessage      *string                `json:"error_message,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	ConfirmedAt       *time.Time             `json:"confirmed_at,omitempty"`
	QueuedAt          *time.Time             `json:"queued_at,omitempty"`
}
