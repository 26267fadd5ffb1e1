package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/scanner"
	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
	"github.com/docuflow/backend/pkg/logger"
)

type ScanHandler struct {
	orchestrator *scanner.Orchestrator
	store        *sqlite.Client
}

func NewScanHandler(orchestrator *scanner.Orchestrator, store *sqlite.Client) *ScanHandler {
	return &ScanHandler{
		orchestrator: orchestrator,
		store:        store,
	}
}

// TriggerScan starts a new archive scan in the background and returns
// the job handle to poll.
func (h *ScanHandler) TriggerScan(c *fiber.Ctx) error {
	job, err := h.orchestrator.Trigger(c.Context())
	if err != nil {
		logger.Error("Failed to trigger scan", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start scan",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *ScanHandler) GetScanJob(c *fiber.Ctx) error {
	job, err := h.store.GetScanJob(c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Scan job not found",
			})
		}
		logger.Error("Failed to get scan job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get scan job",
		})
	}

	return c.JSON(scanJobResponse(job))
}

func (h *ScanHandler) ListScanJobs(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 20
	}

	jobs, err := h.store.ListScanJobs(limit)
	if err != nil {
		logger.Error("Failed to list scan jobs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list scan jobs",
		})
	}

	items := make([]fiber.Map, 0, len(jobs))
	for i := range jobs {
		items = append(items, scanJobResponse(&jobs[i]))
	}
	return c.JSON(fiber.Map{
		"jobs": items,
	})
}

func scanJobResponse(job *models.ScanJob) fiber.Map {
	resp := fiber.Map{
		"id":              job.ID,
		"source":          job.Source,
		"status":          job.Status,
		"total_files":     job.TotalFiles,
		"processed_files": job.ProcessedFiles,
		"skipped_files":   job.SkippedFiles,
		"error_files":     job.ErrorFiles,
		"current_file":    job.CurrentFile,
		"started_at":      job.StartedAt.Unix(),
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = job.CompletedAt.Unix()
	}
	return resp
}
