package handlers

import (
	"fmt"
	"net/http"

	"github.com/psd401/aistudio-document-service/internal/services"
	"github.com/psd401/aistudio-document-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxUploadBytes caps declared upload sizes. Matches the processing stack's
// document size limit.
const maxUploadBytes = 100 << 20

type DocumentHandler struct {
	Services *services.Services
}

func NewDocumentHandler(services *services.Services) *DocumentHandler {
	return &DocumentHandler{Services: services}
}

type createUploadRequest struct {
	FileName          string                 `json:"fileName"`
	FileSize          int64                  `json:"fileSize"`
	FileType          string                 `json:"fileType"`
	ProcessingOptions map[string]interface{} `json:"processingOptions"`
}

// CreateUploadURL handles POST /api/v1/documents/upload-url
func (h *DocumentHandler) CreateUploadURL() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req createUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errors.ErrorResponse{
				Error:   errors.ErrValidation.Code,
				Message: "Invalid JSON body",
			})
			return
		}

		var fields []errors.FieldError
		if req.FileName == "" {
			fields = append(fields, errors.FieldError{Field: "fileName", Message: "fileName is required"})
		}
		if req.FileSize <= 0 {
			fields = append(fields, errors.FieldError{Field: "fileSize", Message: "fileSize must be positive"})
		} else if req.FileSize > maxUploadBytes {
			fields = append(fields, errors.FieldError{Field: "fileSize", Message: "fileSize exceeds the upload limit"})
		}
		if req.FileType == "" {
			fields = append(fields, errors.FieldError{Field: "fileType", Message: "fileType is required"})
		}
		if len(fields) > 0 {
			respondValidation(c, fields)
			return
		}

		response, err := h.Services.Upload.CreateUpload(c.Request.Context(), userID, &services.CreateUploadRequest{
			FileName:          req.FileName,
			FileSize:          req.FileSize,
			FileType:          req.FileType,
			ProcessingOptions: req.ProcessingOptions,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    response,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Upload URL issued",
		})
	}
}

type confirmUploadRequest struct {
	UploadID string `json:"uploadId"`
	JobID    string `json:"jobId"`
}

// ConfirmUpload handles POST /api/v1/documents/confirm-upload.
// This is the single side-effecting hand-off of the service: one state
// transition plus one queue publish, at most once per job.
func (h *DocumentHandler) ConfirmUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req confirmUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errors.ErrorResponse{
				Error:   errors.ErrValidation.Code,
				Message: "Invalid JSON body",
			})
			return
		}

		var fields []errors.FieldError
		if req.UploadID == "" {
			fields = append(fields, errors.FieldError{Field: "uploadId", Message: "uploadId is required"})
		}
		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			fields = append(fields, errors.FieldError{Field: "jobId", Message: "jobId must be a valid UUID"})
		}
		if len(fields) > 0 {
			respondValidation(c, fields)
			return
		}

		response, err := h.Services.Upload.ConfirmUpload(c.Request.Context(), userID, jobID, req.UploadID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, response)
	}
}

// GetJobStatus handles GET /api/v1/documents/jobs/:job_id
func (h *DocumentHandler) GetJobStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		jobID, err := uuid.Parse(c.Param("job_id"))
		if err != nil {
			respondValidation(c, []errors.FieldError{{Field: "job_id", Message: "job_id must be a valid UUID"}})
			return
		}

		job, err := h.Services.Upload.GetJob(c.Request.Context(), userID, jobID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":    job,
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Job status fetched successfully",
		})
	}
}

// ListJobs handles GET /api/v1/documents/jobs
func (h *DocumentHandler) ListJobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		page, limit := pagination(c)
		jobs, total, err := h.Services.Upload.ListJobs(c.Request.Context(), userID, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{
				"jobs":        jobs,
				"total_count": total,
				"page":        page,
				"limit":       limit,
			},
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Jobs fetched successfully",
		})
	}
}

// ListAllJobs handles GET /api/v1/admin/jobs
func (h *DocumentHandler) ListAllJobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pagination(c)
		jobs, total, err := h.Services.Upload.ListAllJobs(c.Request.Context(), page, limit)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{
				"jobs":        jobs,
				"total_count": total,
				"page":        page,
				"limit":       limit,
			},
			"code":    http.StatusOK,
			"s":       "ok",
			"message": "Jobs fetched successfully",
		})
	}
}

// RequeueJob handles POST /api/v1/documents/jobs/:job_id/requeue
func (h *DocumentHandler) RequeueJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		jobID, err := uuid.Parse(c.Param("job_id"))
		if err != nil {
			respondValidation(c, []errors.FieldError{{Field: "job_id", Message: "job_id must be a valid UUID"}})
			return
		}

		response, err := h.Services.Upload.RequeueJob(c.Request.Context(), userID, jobID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, response)
	}
}

func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists || userID == nil {
		c.JSON(http.StatusUnauthorized, errors.ErrorResponse{
			Error:   errors.ErrUnauthorized.Code,
			Message: "User not authenticated",
		})
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		c.JSON(http.StatusUnauthorized, errors.ErrorResponse{
			Error:   errors.ErrUnauthorized.Code,
			Message: "Invalid user ID",
		})
		return "", false
	}
	return userIDStr, true
}

func pagination(c *gin.Context) (page, limit int) {
	page = 1
	limit = 50
	if p := c.Query("page"); p != "" {
		if v, err := parseIntWithDefault(p, 1); err == nil {
			page = v
		}
	}
	if l := c.Query("limit"); l != "" {
		if v, err := parseIntWithDefault(l, 50); err == nil {
			limit = v
		}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return page, limit
}

// parseIntWithDefault parses an integer string and returns default value on error
func parseIntWithDefault(s string, defaultVal int) (int, error) {
	var result int
	if _, err := fmt.Sscanf(s, "%d", &result); err != nil {
		return defaultVal, err
	}
	return result, nil
}

func respondValidation(c *gin.Context, fields []errors.FieldError) {
	c.JSON(http.StatusBadRequest, errors.ErrorResponse{
		Error:   errors.ErrValidation.Code,
		Message: "Validation failed",
		Fields:  fields,
	})
}

func respondError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.Status, errors.ErrorResponse{
			Error:   appErr.Code,
			Message: appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, errors.ErrorResponse{
		Error:   errors.ErrInternalServer.Code,
		Message: "Internal server error",
	})
}
