package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
	"github.com/docuflow/backend/pkg/logger"
)

// progressPollInterval bounds how often a progress stream hits the
// database per connected client.
const progressPollInterval = time.Second

type WebSocketHandler struct {
	store *sqlite.Client
}

func NewWebSocketHandler(store *sqlite.Client) *WebSocketHandler {
	return &WebSocketHandler{
		store: store,
	}
}

// HandleScanProgress streams scan job progress until the job reaches a
// terminal state or the client disconnects.
func (h *WebSocketHandler) HandleScanProgress(c *websocket.Conn) {
	jobID := c.Params("id")
	logger.Info("Scan progress stream opened", zap.String("job_id", jobID))

	defer func() {
		c.Close()
		logger.Info("Scan progress stream closed", zap.String("job_id", jobID))
	}()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		job, err := h.store.GetScanJob(jobID)
		if err != nil {
			if errors.Is(err, sqlite.ErrNotFound) {
				h.sendError(c, "Scan job not found")
			} else {
				logger.Error("Failed to poll scan job", zap.String("job_id", jobID), zap.Error(err))
				h.sendError(c, "Failed to read scan job")
			}
			return
		}

		if err := h.sendProgress(c, job); err != nil {
			// Client went away.
			return
		}

		if job.Status == models.JobCompleted || job.Status == models.JobFailed {
			h.sendComplete(c, job)
			return
		}
	}
}

func (h *WebSocketHandler) sendProgress(c *websocket.Conn, job *models.ScanJob) error {
	return c.WriteJSON(map[string]interface{}{
		"type":            "progress",
		"status":          job.Status,
		"total_files":     job.TotalFiles,
		"processed_files": job.ProcessedFiles,
		"skipped_files":   job.SkippedFiles,
		"error_files":     job.ErrorFiles,
		"current_file":    job.CurrentFile,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, job *models.ScanJob) {
	msg := map[string]interface{}{
		"type":            "complete",
		"status":          job.Status,
		"total_files":     job.TotalFiles,
		"processed_files": job.ProcessedFiles,
		"skipped_files":   job.SkippedFiles,
		"error_files":     job.ErrorFiles,
	}
	if job.ErrorMessage != "" {
		msg["error_message"] = job.ErrorMessage
	}
	if err := c.WriteJSON(msg); err != nil {
		logger.Error("Failed to send completion message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
