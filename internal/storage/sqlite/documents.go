package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/pkg/logger"
)

// KnownPaths returns every source path that has already been
// processed, across all tenants. The cheap pre-hash dedup check.
func (c *Client) KnownPaths() (map[string]struct{}, error) {
	rows, err := c.db.Query(`SELECT original_path FROM processed_files`)
	if err != nil {
		return nil, fmt.Errorf("failed to list known paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

// KnownHashes returns the content hashes already processed for one
// tenant.
func (c *Client) KnownHashes(tenantID int64) (map[string]struct{}, error) {
	rows, err := c.db.Query(`SELECT sha256_hash FROM processed_files WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list known hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

// HasProcessedFile is the authoritative, race-safe dedup check against
// the uniqueness constraint's table.
func (c *Client) HasProcessedFile(tenantID int64, hash string) (bool, error) {
	var n int
	err := c.db.QueryRow(
		`SELECT COUNT(1) FROM processed_files WHERE tenant_id = ? AND sha256_hash = ?`,
		tenantID, hash,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check processed file: %w", err)
	}
	return n > 0, nil
}

// CreateDocument persists a document together with its ProcessedFile
// record in one transaction. A concurrent duplicate surfaces as
// ErrDuplicate through the (tenant, hash) uniqueness constraint.
func (c *Client) CreateDocument(doc *models.Document, originalPath string) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO processed_files (tenant_id, sha256_hash, original_path, document_id, processed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.TenantID, doc.SHA256, originalPath, doc.ID, now.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert processed file: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO documents (id, tenant_id, title, original_filename, file_extension, mime_type,
			content_ref, file_size, sha256_hash, status, source, metadata, employee_id,
			document_type, tags, period_year, period_month, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Title, doc.OriginalFilename, doc.FileExtension, doc.MimeType,
		doc.ContentRef, doc.FileSize, doc.SHA256, string(doc.Status), string(doc.Source),
		string(metadataJSON), doc.EmployeeID, doc.DocumentType, string(tagsJSON),
		doc.PeriodYear, doc.PeriodMonth, now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	logger.Debug("Document created",
		zap.String("doc_id", doc.ID),
		zap.String("filename", doc.OriginalFilename),
		zap.String("status", string(doc.Status)),
	)
	return nil
}

// MarkProcessed records a source file as handled without a resulting
// document, e.g. a batch original that was split into per-subject
// documents.
func (c *Client) MarkProcessed(tenantID int64, hash, originalPath string) error {
	_, err := c.db.Exec(
		`INSERT INTO processed_files (tenant_id, sha256_hash, original_path, document_id, processed_at)
		 VALUES (?, ?, ?, NULL, ?)`,
		tenantID, hash, originalPath, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert processed file: %w", err)
	}
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	row := c.db.QueryRow(
		`SELECT id, tenant_id, title, original_filename, file_extension, mime_type, content_ref,
			file_size, sha256_hash, status, source, metadata, employee_id, document_type, tags,
			period_year, period_month, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListReviewDocuments returns documents awaiting manual review,
// newest first.
func (c *Client) ListReviewDocuments(limit int) ([]models.Document, error) {
	rows, err := c.db.Query(
		`SELECT id, tenant_id, title, original_filename, file_extension, mime_type, content_ref,
			file_size, sha256_hash, status, source, metadata, employee_id, document_type, tags,
			period_year, period_month, created_at, updated_at
		 FROM documents WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		string(models.StatusReviewNeeded), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list review documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var status, source, metadataJSON, tagsJSON string
	var employeeID sql.NullInt64
	var periodYear, periodMonth sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Title, &doc.OriginalFilename, &doc.FileExtension,
		&doc.MimeType, &doc.ContentRef, &doc.FileSize, &doc.SHA256, &status, &source,
		&metadataJSON, &employeeID, &doc.DocumentType, &tagsJSON,
		&periodYear, &periodMonth, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Status = models.DocumentStatus(status)
	doc.Source = models.DocumentSource(source)
	if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	json.Unmarshal([]byte(tagsJSON), &doc.Tags)
	if employeeID.Valid {
		doc.EmployeeID = &employeeID.Int64
	}
	if periodYear.Valid {
		y := int(periodYear.Int64)
		doc.PeriodYear = &y
	}
	if periodMonth.Valid {
		m := int(periodMonth.Int64)
		doc.PeriodMonth = &m
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}

// CreateReviewTask raises a follow-up work item for a document that
// could not be routed automatically. Idempotent: a document never
// accumulates more than one open task.
func (c *Client) CreateReviewTask(doc *models.Document, source models.DocumentSource) (*models.ReviewTask, error) {
	var existingID string
	err := c.db.QueryRow(
		`SELECT id FROM review_tasks WHERE document_id = ? AND status IN ('OPEN', 'IN_PROGRESS') LIMIT 1`,
		doc.ID,
	).Scan(&existingID)
	if err == nil {
		return c.getReviewTask(existingID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check existing task: %w", err)
	}

	name := doc.OriginalFilename
	if len(name) > 50 {
		name = name[:50]
	}
	task := &models.ReviewTask{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Title:      fmt.Sprintf("Dokument prüfen: %s", name),
		Description: fmt.Sprintf(
			"Dieses Dokument aus %s konnte nicht automatisch zugeordnet werden.\n\n"+
				"Bitte prüfen Sie:\n- Mitarbeiter-Zuordnung\n- Dokumenttyp\n- Periode (Monat/Jahr)",
			sourceDisplay(source)),
		Priority:  2,
		Status:    models.TaskOpen,
		CreatedAt: time.Now(),
	}

	_, err = c.db.Exec(
		`INSERT INTO review_tasks (id, document_id, title, description, priority, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.DocumentID, task.Title, task.Description, task.Priority,
		string(task.Status), task.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create review task: %w", err)
	}

	logger.Info("Review task created",
		zap.String("task_id", task.ID),
		zap.String("document", doc.OriginalFilename),
	)
	return task, nil
}

func (c *Client) getReviewTask(id string) (*models.ReviewTask, error) {
	var task models.ReviewTask
	var status string
	var createdAt int64
	err := c.db.QueryRow(
		`SELECT id, document_id, title, description, priority, status, created_at
		 FROM review_tasks WHERE id = ?`, id,
	).Scan(&task.ID, &task.DocumentID, &task.Title, &task.Description, &task.Priority, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review task: %w", err)
	}
	task.Status = models.ReviewTaskStatus(status)
	task.CreatedAt = time.Unix(createdAt, 0)
	return &task, nil
}

func sourceDisplay(source models.DocumentSource) string {
	switch source {
	case models.SourceBatchArchive:
		return "dem Archiv-Import"
	case models.SourceEmail:
		return "dem E-Mail-Import"
	case models.SourceAPI:
		return "der API"
	case models.SourceManual:
		return "manuellem Import"
	default:
		return "Import"
	}
}
