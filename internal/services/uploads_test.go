package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psd401/aistudio-document-service/internal/config"
	"github.com/psd401/aistudio-document-service/internal/models"
	"github.com/psd401/aistudio-document-service/internal/notify"
	"github.com/psd401/aistudio-document-service/internal/queue"
	"github.com/psd401/aistudio-document-service/internal/repositories"
	apperrors "github.com/psd401/aistudio-document-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeJobStore mirrors the repository's compare-and-swap semantics in memory.
type fakeJobStore struct {
	jobs map[uuid.UUID]*models.UploadJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*models.UploadJob)}
}

func (f *fakeJobStore) Create(_ context.Context, job *models.UploadJob) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetByIDForUser(_ context.Context, id uuid.UUID, userID string) (*models.UploadJob, error) {
	job, ok := f.jobs[id]
	if !ok || job.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) ConfirmUpload(_ context.Context, id uuid.UUID, userID, uploadID string) (repositories.ConfirmResult, error) {
	job, ok := f.jobs[id]
	if !ok || job.UserID != userID {
		return repositories.ConfirmNotFound, nil
	}
	if job.Status == models.JobStatusCreated && job.UploadID == nil {
		now := time.Now()
		job.Status = models.JobStatusUploadConfirmed
		job.UploadID = &uploadID
		job.ConfirmedAt = &now
		return repositories.ConfirmOK, nil
	}
	return repositories.ClassifyConfirm(job.UploadID, uploadID), nil
}

func (f *fakeJobStore) MarkQueued(_ context.Context, id uuid.UUID) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || job.Status != models.JobStatusUploadConfirmed {
		return false, nil
	}
	now := time.Now()
	job.Status = models.JobStatusQueued
	job.QueuedAt = &now
	return true, nil
}

func (f *fakeJobStore) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	if job, ok := f.jobs[id]; ok {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &message
	}
	return nil
}

func (f *fakeJobStore) ListByUser(_ context.Context, userID string, _, _ int) ([]*models.UploadJob, int, error) {
	var out []*models.UploadJob
	for _, job := range f.jobs {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	return out, len(out), nil
}

func (f *fakeJobStore) ListAll(_ context.Context, _, _ int) ([]*models.UploadJob, int, error) {
	var out []*models.UploadJob
	for _, job := range f.jobs {
		out = append(out, job)
	}
	return out, len(out), nil
}

type fakePublisher struct {
	published []*queue.ProcessingMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg *queue.ProcessingMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeSigner struct{}

func (fakeSigner) SignPut(_ context.Context, _, key, _ string, _ map[string]string, ttl time.Duration) (string, time.Duration, error) {
	return "https://example.com/upload/" + key, ttl, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AWS: config.AWSConfig{
			Region:        "us-east-1",
			Bucket:        "aistudio-documents",
			QueueURL:      "https://sqs.us-east-1.amazonaws.com/123/processing",
			PresignTTLSec: 300,
		},
		App: config.AppConfig{Environment: "test"},
	}
}

func newTestService(store *fakeJobStore, pub *fakePublisher, cfg *config.Config) *UploadService {
	return NewUploadService(cfg, store, pub, fakeSigner{}, nil, notify.NewHub(), zap.NewNop())
}

func seedJob(store *fakeJobStore, userID string) *models.UploadJob {
	job := &models.UploadJob{
		ID:                uuid.New(),
		UserID:            userID,
		FileName:          "My Report.pdf",
		FileSize:          1024,
		FileType:          "application/pdf",
		ProcessingOptions: map[string]interface{}{"ocr": true},
		Status:            models.JobStatusCreated,
	}
	store.jobs[job.ID] = job
	return job
}

func TestConfirmUpload_PublishesExactlyOnce(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	resp, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, job.ID.String(), resp.JobID)
	assert.Equal(t, "processing", resp.Status)

	require.Len(t, pub.published, 1)
	msg := pub.published[0]
	assert.Equal(t, job.ID.String(), msg.MessageID)
	assert.Equal(t, job.ID.String(), msg.JobID)
	assert.Equal(t, "aistudio-documents", msg.Bucket)
	assert.Equal(t, "v2/uploads/"+job.ID.String()+"/My_Report.pdf", msg.Key)
	assert.Equal(t, "My_Report.pdf", msg.FileName)
	assert.Equal(t, int64(1024), msg.FileSize)
	assert.Equal(t, "application/pdf", msg.FileType)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, map[string]interface{}{"ocr": true}, msg.ProcessingOptions)

	assert.Equal(t, models.JobStatusQueued, store.jobs[job.ID].Status)
}

func TestConfirmUpload_RepeatWithSameUploadIDIsNoOp(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	_, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.NoError(t, err)

	resp, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Len(t, pub.published, 1, "retry must not publish a second message")
}

func TestConfirmUpload_DifferentUploadIDConflicts(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	_, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_456")
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Len(t, pub.published, 1, "conflicting confirm must not publish")
}

func TestConfirmUpload_OwnershipIsIndistinguishableFromMissing(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	_, errNotOwned := svc.ConfirmUpload(context.Background(), "u2", job.ID, "up_123")
	_, errMissing := svc.ConfirmUpload(context.Background(), "u2", uuid.New(), "up_123")

	require.Error(t, errNotOwned)
	require.Error(t, errMissing)

	ownedErr, ok := apperrors.AsAppError(errNotOwned)
	require.True(t, ok)
	missingErr, ok := apperrors.AsAppError(errMissing)
	require.True(t, ok)

	assert.Equal(t, missingErr.Code, ownedErr.Code)
	assert.Equal(t, missingErr.Status, ownedErr.Status)
	assert.Equal(t, missingErr.Message, ownedErr.Message)
	assert.Empty(t, pub.published)
}

func TestConfirmUpload_MissingBucketIsConfigurationError(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.AWS.Bucket = ""
	svc := newTestService(store, pub, cfg)
	job := seedJob(store, "u1")

	_, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIGURATION_ERROR", appErr.Code)
	assert.Empty(t, pub.published, "must not publish without a destination bucket")
}

func TestConfirmUpload_PublishFailureLeavesJobConfirmed(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{err: errors.New("queue unavailable")}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	_, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.Equal(t, "Internal server error", appErr.Message, "queue detail must not leak to the caller")

	assert.Equal(t, models.JobStatusUploadConfirmed, store.jobs[job.ID].Status)
}

func TestRequeueJob_RedrivesAfterPublishFailure(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{err: errors.New("queue unavailable")}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	_, err := svc.ConfirmUpload(context.Background(), "u1", job.ID, "up_123")
	require.Error(t, err)

	pub.err = nil
	resp, err := svc.RequeueJob(context.Background(), "u1", job.ID)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.Len(t, pub.published, 1)
	assert.Equal(t, job.ID.String(), pub.published[0].MessageID,
		"re-drive must reuse the deterministic message id")
	assert.Equal(t, models.JobStatusQueued, store.jobs[job.ID].Status)
}

func TestRequeueJob_RejectsUnconfirmedJob(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, testConfig())
	job := seedJob(store, "u1")

	_, err := svc.RequeueJob(context.Background(), "u1", job.ID)
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Empty(t, pub.published)
}

func TestCreateUpload_DerivesSameKeyAsConfirm(t *testing.T) {
	store := newFakeJobStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, testConfig())

	created, err := svc.CreateUpload(context.Background(), "u1", &CreateUploadRequest{
		FileName: "My Report.pdf",
		FileSize: 1024,
		FileType: "application/pdf",
	})
	require.NoError(t, err)

	jobID, err := uuid.Parse(created.JobID)
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(context.Background(), "u1", jobID, created.UploadID)
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, created.Key, pub.published[0].Key,
		"issue-time and confirm-time keys must be byte-identical")
}

func TestGetJob_ScopedToOwner(t *testing.T) {
	store := newFakeJobStore()
	svc := newTestService(store, &fakePublisher{}, testConfig())
	job := seedJob(store, "u1")

	got, err := svc.GetJob(context.Background(), "u1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.GetJob(context.Background(), "u2", job.ID)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
