package queue

import "time"

// ProcessingMessage hands a confirmed upload off to the processing worker.
// MessageID is the job id: the queue is at-least-once, so the consumer
// deduplicates on it, which also makes re-drives of the publish step safe.
type ProcessingMessage struct {
	MessageID         string                 `json:"messageId"`
	JobID             string                 `json:"jobId"`
	Bucket            string                 `json:"bucket"`
	Key               string                 `json:"key"`
	FileName          string                 `json:"fileName"`
	FileSize          int64                  `json:"fileSize"`
	FileType          string                 `json:"fileType"`
	UserID            string                 `json:"userId"`
	ProcessingOptions map[string]interface{} `json:"processingOptions,omitempty"`
	QueuedAt          time.Time              `json:"queuedAt"`
}
