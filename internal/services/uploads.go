package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psd401/aistudio-document-service/internal/config"
	"github.com/psd401/aistudio-document-service/internal/models"
	"github.com/psd401/aistudio-document-service/internal/notify"
	"github.com/psd401/aistudio-document-service/internal/queue"
	"github.com/psd401/aistudio-document-service/internal/repositories"
	"github.com/psd401/aistudio-document-service/pkg/errors"
	"github.com/psd401/aistudio-document-service/pkg/s3io"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// JobStore is the persistence collaborator for upload jobs.
type JobStore interface {
	Create(ctx context.Context, job *models.UploadJob) error
	GetByIDForUser(ctx context.Context, id uuid.UUID, userID string) (*models.UploadJob, error)
	ConfirmUpload(ctx context.Context, id uuid.UUID, userID, uploadID string) (repositories.ConfirmResult, error)
	MarkQueued(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.UploadJob, int, error)
	ListAll(ctx context.Context, page, limit int) ([]*models.UploadJob, int, error)
}

// Publisher hands confirmed jobs off to the processing queue.
type Publisher interface {
	Publish(ctx context.Context, msg *queue.ProcessingMessage) error
}

// UploadURLSigner issues presigned PUT URLs for the storage bucket.
type UploadURLSigner interface {
	SignPut(ctx context.Context, bucket, key, contentType string, meta map[string]string, ttl time.Duration) (string, time.Duration, error)
}

// StatusCache is an optional read-through cache for job lookups.
type StatusCache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

const jobCacheTTL = 10 * time.Minute

// UploadService owns the upload job lifecycle up to the queued state.
type UploadService struct {
	cfg       *config.Config
	jobs      JobStore
	publisher Publisher
	signer    UploadURLSigner
	cache     StatusCache // may be nil
	hub       *notify.Hub
	logger    *zap.Logger
}

func NewUploadService(
	cfg *config.Config,
	jobs JobStore,
	publisher Publisher,
	signer UploadURLSigner,
	cache StatusCache,
	hub *notify.Hub,
	logger *zap.Logger,
) *UploadService {
	return &UploadService{
		cfg:       cfg,
		jobs:      jobs,
		publisher: publisher,
		signer:    signer,
		cache:     cache,
		hub:       hub,
		logger:    logger,
	}
}

// CreateUploadRequest describes a new upload job.
type CreateUploadRequest struct {
	FileName          string
	FileSize          int64
	FileType          string
	ProcessingOptions map[string]interface{}
}

// CreateUploadResponse carries everything the client needs to perform the
// upload and confirm it afterwards.
type CreateUploadResponse struct {
	JobID     string `json:"job_id"`
	UploadID  string `json:"upload_id"`
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

// CreateUpload registers a job and issues a presigned PUT URL for the derived
// object key. The key uses the same sanitizer as ConfirmUpload, so both sides
// always agree on where the object lives.
func (s *UploadService) CreateUpload(ctx context.Context, userID string, req *CreateUploadRequest) (*CreateUploadResponse, error) {
	if s.cfg.AWS.Bucket == "" {
		s.logger.Error("destination bucket not configured", zap.String("user_id", userID))
		return nil, errors.ErrConfiguration
	}

	job := &models.UploadJob{
		ID:                uuid.New(),
		UserID:            userID,
		FileName:          req.FileName,
		FileSize:          req.FileSize,
		FileType:          req.FileType,
		ProcessingOptions: req.ProcessingOptions,
		Status:            models.JobStatusCreated,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	uploadID := "up_" + ulid.Make().String()
	key := s3io.ObjectKey(job.ID.String(), s3io.SanitizeFileName(req.FileName))
	meta := map[string]string{
		"job_id":  job.ID.String(),
		"user_id": userID,
	}

	ttl := time.Duration(s.cfg.AWS.PresignTTLSec) * time.Second
	url, ttl, err := s.signer.SignPut(ctx, s.cfg.AWS.Bucket, key, req.FileType, meta, ttl)
	if err != nil {
		s.logger.Error("failed to presign upload url",
			zap.String("job_id", job.ID.String()),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, errors.WrapError(err, "INTERNAL_ERROR", "Internal server error", errors.ErrInternalServer.Status)
	}

	return &CreateUploadResponse{
		JobID:     job.ID.String(),
		UploadID:  uploadID,
		UploadURL: url,
		Key:       key,
		ExpiresIn: int(ttl.Seconds()),
	}, nil
}

// ConfirmUploadResponse acknowledges a confirmed hand-off.
type ConfirmUploadResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ConfirmUpload asserts that the object landed in the bucket and hands the job
// off to the processing worker. The confirm is a compare-and-swap, so for any
// one job at most one caller wins and at most one message is published;
// repeating the call with the recorded upload id is a no-op success.
func (s *UploadService) ConfirmUpload(ctx context.Context, userID string, jobID uuid.UUID, uploadID string) (*ConfirmUploadResponse, error) {
	job, err := s.jobs.GetByIDForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.jobs.ConfirmUpload(ctx, jobID, userID, uploadID)
	if err != nil {
		return nil, err
	}

	switch result {
	case repositories.ConfirmNotFound:
		return nil, errors.ErrNotFound
	case repositories.ConfirmConflict:
		s.logger.Warn("confirm attempted with a different upload id",
			zap.String("job_id", jobID.String()),
			zap.String("upload_id", uploadID),
			zap.String("user_id", userID))
		return nil, errors.NewError("CONFLICT", "Upload already confirmed with a different upload id", errors.ErrConflict.Status)
	case repositories.ConfirmAlreadyConfirmed:
		// Retry of a successful confirmation. The message is already out
		// (or re-drivable); do not publish a duplicate.
		return &ConfirmUploadResponse{
			Success: true,
			JobID:   jobID.String(),
			Status:  "processing",
			Message: "Upload already confirmed",
		}, nil
	}

	if err := s.enqueue(ctx, job); err != nil {
		return nil, err
	}

	return &ConfirmUploadResponse{
		Success: true,
		JobID:   jobID.String(),
		Status:  "processing",
		Message: "Upload confirmed; document queued for processing",
	}, nil
}

// enqueue publishes the hand-off message and marks the job queued. A publish
// failure leaves the job upload_confirmed with no compensating rollback; the
// requeue operation is the recovery path.
func (s *UploadService) enqueue(ctx context.Context, job *models.UploadJob) error {
	if s.cfg.AWS.Bucket == "" {
		s.logger.Error("destination bucket not configured",
			zap.String("job_id", job.ID.String()),
			zap.String("user_id", job.UserID))
		return errors.ErrConfiguration
	}

	safeName := s3io.SanitizeFileName(job.FileName)
	msg := &queue.ProcessingMessage{
		MessageID:         job.ID.String(),
		JobID:             job.ID.String(),
		Bucket:            s.cfg.AWS.Bucket,
		Key:               s3io.ObjectKey(job.ID.String(), safeName),
		FileName:          safeName,
		FileSize:          job.FileSize,
		FileType:          job.FileType,
		UserID:            job.UserID,
		ProcessingOptions: job.ProcessingOptions,
		QueuedAt:          time.Now().UTC(),
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish processing message",
			zap.String("job_id", job.ID.String()),
			zap.String("user_id", job.UserID),
			zap.Error(err))
		return errors.WrapError(err, "INTERNAL_ERROR", "Internal server error", errors.ErrInternalServer.Status)
	}

	if _, err := s.jobs.MarkQueued(ctx, job.ID); err != nil {
		// The message is out; the consumer dedups on job id, so the worst
		// case is a stale status row. Log it, don't fail the request.
		s.logger.Error("failed to mark job queued after publish",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}

	s.invalidateCache(ctx, job.ID)
	if s.hub != nil {
		s.hub.Publish(notify.JobEvent{
			JobID:  job.ID.String(),
			UserID: job.UserID,
			Status: models.JobStatusQueued,
			At:     time.Now().UTC(),
		})
	}

	return nil
}

// RequeueJob re-drives the hand-off for a job whose confirm succeeded but
// whose publish did not (or whose message the consumer wants again). Safe
// because the message id is deterministic.
func (s *UploadService) RequeueJob(ctx context.Context, userID string, jobID uuid.UUID) (*ConfirmUploadResponse, error) {
	job, err := s.jobs.GetByIDForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusUploadConfirmed && job.Status != models.JobStatusQueued {
		return nil, errors.NewError("CONFLICT", "Job is not in a re-drivable state", errors.ErrConflict.Status)
	}

	if err := s.enqueue(ctx, job); err != nil {
		return nil, err
	}

	return &ConfirmUploadResponse{
		Success: true,
		JobID:   jobID.String(),
		Status:  "processing",
		Message: "Job requeued for processing",
	}, nil
}

// GetJob returns one job, owner-scoped, preferring the cache.
func (s *UploadService) GetJob(ctx context.Context, userID string, jobID uuid.UUID) (*models.UploadJob, error) {
	if cached := s.cachedJob(ctx, jobID); cached != nil {
		if cached.UserID != userID {
			return nil, errors.ErrNotFound
		}
		return cached, nil
	}

	job, err := s.jobs.GetByIDForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	s.cacheJob(ctx, job)
	return job, nil
}

// ListJobs returns the caller's jobs with pagination.
func (s *UploadService) ListJobs(ctx context.Context, userID string, page, limit int) ([]*models.UploadJob, int, error) {
	return s.jobs.ListByUser(ctx, userID, page, limit)
}

// ListAllJobs returns jobs across all users. Admin surface only.
func (s *UploadService) ListAllJobs(ctx context.Context, page, limit int) ([]*models.UploadJob, int, error) {
	return s.jobs.ListAll(ctx, page, limit)
}

func jobCacheKey(id uuid.UUID) string {
	return "job:" + id.String()
}

func (s *UploadService) cachedJob(ctx context.Context, id uuid.UUID) *models.UploadJob {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, jobCacheKey(id))
	if err != nil || raw == "" {
		return nil
	}
	job := &models.UploadJob{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		return nil
	}
	return job
}

func (s *UploadService) cacheJob(ctx context.Context, job *models.UploadJob) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, jobCacheKey(job.ID), string(raw), jobCacheTTL); err != nil {
		s.logger.Warn("failed to cache job", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func (s *UploadService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, jobCacheKey(id)); err != nil {
		s.logger.Warn("failed to invalidate job cache", zap.String("job_id", id.String()), zap.Error(err))
	}
}
