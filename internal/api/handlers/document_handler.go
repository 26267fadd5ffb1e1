package handlers

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/blob"
	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
	"github.com/docuflow/backend/pkg/logger"
)

type DocumentHandler struct {
	store *sqlite.Client
	blobs *blob.Store
}

func NewDocumentHandler(store *sqlite.Client, blobs *blob.Store) *DocumentHandler {
	return &DocumentHandler{
		store: store,
		blobs: blobs,
	}
}

// ListReviewDocuments returns documents waiting for manual routing,
// newest first.
func (h *DocumentHandler) ListReviewDocuments(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	docs, err := h.store.ListReviewDocuments(limit)
	if err != nil {
		logger.Error("Failed to list review documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list review documents",
		})
	}

	items := make([]fiber.Map, 0, len(docs))
	for i := range docs {
		items = append(items, documentResponse(&docs[i]))
	}
	return c.JSON(fiber.Map{
		"documents": items,
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.store.GetDocument(c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to get document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}

	return c.JSON(documentResponse(doc))
}

// DownloadDocument streams the decrypted document content.
func (h *DocumentHandler) DownloadDocument(c *fiber.Ctx) error {
	doc, err := h.store.GetDocument(c.Params("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to get document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}

	var buf bytes.Buffer
	if _, err := h.blobs.Get(doc.ID, &buf); err != nil {
		logger.Error("Failed to read document content",
			zap.String("doc_id", doc.ID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read document content",
		})
	}

	c.Set(fiber.HeaderContentType, doc.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+doc.OriginalFilename+`"`)
	return c.Send(buf.Bytes())
}

func documentResponse(doc *models.Document) fiber.Map {
	resp := fiber.Map{
		"id":                doc.ID,
		"tenant_id":         doc.TenantID,
		"title":             doc.Title,
		"original_filename": doc.OriginalFilename,
		"file_extension":    doc.FileExtension,
		"mime_type":         doc.MimeType,
		"file_size":         doc.FileSize,
		"sha256":            doc.SHA256,
		"status":            doc.Status,
		"source":            doc.Source,
		"document_type":     doc.DocumentType,
		"tags":              doc.Tags,
		"metadata":          doc.Metadata,
		"created_at":        doc.CreatedAt.Unix(),
	}
	if doc.EmployeeID != nil {
		resp["employee_id"] = *doc.EmployeeID
	}
	if doc.PeriodYear != nil {
		resp["period_year"] = *doc.PeriodYear
	}
	if doc.PeriodMonth != nil {
		resp["period_month"] = *doc.PeriodMonth
	}
	return resp
}
