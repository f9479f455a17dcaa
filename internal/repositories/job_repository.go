package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psd401/aistudio-document-service/internal/models"
	"github.com/psd401/aistudio-document-service/pkg/errors"
	"github.com/psd401/aistudio-document-service/pkg/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ConfirmResult classifies the outcome of a confirm attempt.
type ConfirmResult int

const (
	ConfirmOK ConfirmResult = iota
	ConfirmAlreadyConfirmed
	ConfirmConflict
	ConfirmNotFound
)

// JobRepository handles upload job database operations.
type JobRepository struct {
	db *postgres.DB
}

func NewJobRepository(db *postgres.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateSchema creates the upload_jobs table if it doesn't exist.
func (r *JobRepository) CreateSchema(ctx context.Context) error {
	query := `
		DO $$ BEGIN
			CREATE TYPE upload_job_status AS ENUM ('created', 'upload_confirmed', 'queued', 'processing', 'completed', 'failed');
		EXCEPTION
			WHEN duplicate_object THEN null;
		END $$;

		CREATE TABLE IF NOT EXISTS upload_jobs (
			id UUID PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			file_name VARCHAR(512) NOT NULL,
			file_size BIGINT NOT NULL,
			file_type VARCHAR(255) NOT NULL,
			processing_options JSONB DEFAULT '{}' NOT NULL,
			status upload_job_status NOT NULL DEFAULT 'created',
			upload_id VARCHAR(255),
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			confirmed_at TIMESTAMPTZ,
			queued_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_upload_jobs_user_id ON upload_jobs(user_id);
		CREATE INDEX IF NOT EXISTS idx_upload_jobs_status ON upload_jobs(status);
	`

	if _, err := r.db.Exec(ctx, query); err != nil {
		return errors.WrapError(err, "INTERNAL_ERROR", "Failed to create upload_jobs schema", errors.ErrInternalServer.Status)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *models.UploadJob) error {
	opts, err := json.Marshal(job.ProcessingOptions)
	if err != nil {
		return errors.WrapError(err, "INTERNAL_ERROR", "Failed to encode processing options", errors.ErrInternalServer.Status)
	}

	query := `
		INSERT INTO upload_jobs (id, user_id, file_name, file_size, file_type, processing_options, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		job.ID, job.UserID, job.FileName, job.FileSize, job.FileType, opts, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return errors.WrapError(err, "INTERNAL_ERROR", "Failed to create upload job", errors.ErrInternalServer.Status)
	}

	return nil
}

// GetByIDForUser fetches a job scoped to its owner. A job owned by someone
// else is indistinguishable from a missing one: both return ErrNotFound.
func (r *JobRepository) GetByIDForUser(ctx context.Context, id uuid.UUID, userID string) (*models.UploadJob, error) {
	query := `
		SELECT id, user_id, file_name, file_size, file_type, processing_options, status,
		       upload_id, error_message, created_at, updated_at, confirmed_at, queued_at
		FROM upload_jobs
		WHERE id = $1 AND user_id = $2
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, id, userID))
	if err == pgx.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapError(err, "INTERNAL_ERROR", "Failed to get upload job", errors.ErrInternalServer.Status)
	}

	return job, nil
}

// ConfirmUpload transitions created -> upload_confirmed, recording uploadID.
// The transition is a single conditional UPDATE so that concurrent confirm
// attempts for the same job produce exactly one winner.
func (r *JobRepository) ConfirmUpload(ctx context.Context, id uuid.UUID, userID, uploadID string) (ConfirmResult, error) {
	query := `
		UPDATE upload_jobs
		SET status = 'upload_confirmed', upload_id = $3, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'created' AND upload_id IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, userID, uploadID)
	if err != nil {
		return ConfirmNotFound, errors.WrapError(err, "INTERNAL_ERROR", "Failed to confirm upload", errors.ErrInternalServer.Status)
	}
	if tag.RowsAffected() == 1 {
		return ConfirmOK, nil
	}

	// The CAS lost; look at the current row to say why.
	var currentUploadID *string
	var currentStatus models.JobStatus
	err = r.db.QueryRow(ctx,
		`SELECT upload_id, status FROM upload_jobs WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&currentUploadID, &currentStatus)

	if err == pgx.ErrNoRows {
		return ConfirmNotFound, nil
	}
	if err != nil {
		return ConfirmNotFound, errors.WrapError(err, "INTERNAL_ERROR", "Failed to classify confirm attempt", errors.ErrInternalServer.Status)
	}

	return ClassifyConfirm(currentUploadID, uploadID), nil
}

// ClassifyConfirm decides how a lost confirm CAS should be reported. A repeat
// of the recorded upload id is a retry-safe no-op; anything else conflicts.
func ClassifyConfirm(currentUploadID *string, requestedUploadID string) ConfirmResult {
	if currentUploadID != nil && *currentUploadID == requestedUploadID {
		return ConfirmAlreadyConfirmed
	}
	return ConfirmConflict
}

// MarkQueued transitions upload_confirmed -> queued. Returns false when the
// job was not in upload_confirmed state.
func (r *JobRepository) MarkQueued(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE upload_jobs
		SET status = 'queued', queued_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'upload_confirmed'
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, errors.WrapError(err, "INTERNAL_ERROR", "Failed to mark job queued", errors.ErrInternalServer.Status)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a terminal failure. Used by the requeue bookkeeping and
// by the processing worker's status callbacks.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE upload_jobs
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, message); err != nil {
		return errors.WrapError(err, "INTERNAL_ERROR", "Failed to mark job failed", errors.ErrInternalServer.Status)
	}
	return nil
}

// ListByUser returns the caller's jobs, newest first, with the total count.
func (r *JobRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.UploadJob, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM upload_jobs WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, errors.WrapError(err, "INTERNAL_ERROR", "Failed to count upload jobs", errors.ErrInternalServer.Status)
	}

	query := `
		SELECT id, user_id, file_name, file_size, file_type, processing_options, status,
		       upload_id, error_message, created_at, updated_at, confirmed_at, queued_at
		FROM upload_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, errors.WrapError(err, "INTERNAL_ERROR", "Failed to list upload jobs", errors.ErrInternalServer.Status)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListAll returns jobs across all users, newest first. Admin surface only.
func (r *JobRepository) ListAll(ctx context.Context, page, limit int) ([]*models.UploadJob, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM upload_jobs`).Scan(&total); err != nil {
		return nil, 0, errors.WrapError(err, "INTERNAL_ERROR", "Failed to count upload jobs", errors.ErrInternalServer.Status)
	}

	query := `
		SELECT id, user_id, file_name, file_size, file_type, processing_options, status,
		       upload_id, error_message, created_at, updated_at, confirmed_at, queued_at
		FROM upload_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, errors.WrapError(err, "INTERNAL_ERROR", "Failed to list upload jobs", errors.ErrInternalServer.Status)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func collectJobs(rows pgx.Rows) ([]*models.UploadJob, error) {
	var jobs []*models.UploadJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.WrapError(err, "INTERNAL_ERROR", "Failed to scan upload job", errors.ErrInternalServer.Status)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, "INTERNAL_ERROR", "Failed to read upload jobs", errors.ErrInternalServer.Status)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*models.UploadJob, error) {
	job := &models.UploadJob{}
	var opts []byte
	var confirmedAt, queuedAt *time.Time

	err := row.Scan(
		&job.ID, &job.UserID, &job.FileName, &job.FileSize, &job.FileType, &opts, &job.Status,
		&job.UploadID, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &confirmedAt, &queuedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &job.ProcessingOptions); err != nil {
			return nil, err
		}
	}
	job.ConfirmedAt = confirmedAt
	job.QueuedAt = queuedAt

	return job, nil
}
