package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/backend/internal/storage/models"
)

func (c *Client) CreateScanJob(source models.DocumentSource) (*models.ScanJob, error) {
	job := &models.ScanJob{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    models.JobPending,
		StartedAt: time.Now(),
	}

	_, err := c.db.Exec(
		`INSERT INTO scan_jobs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		job.ID, string(job.Source), string(job.Status), job.StartedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan job: %w", err)
	}
	return job, nil
}

func (c *Client) SetScanJobStatus(id string, status models.ScanJobStatus) error {
	_, err := c.db.Exec(`UPDATE scan_jobs SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set scan job status: %w", err)
	}
	return nil
}

// SetScanJobTotals records the enumeration result before workers
// start.
func (c *Client) SetScanJobTotals(id string, total, skipped int) error {
	_, err := c.db.Exec(
		`UPDATE scan_jobs SET total_files = ?, skipped_files = ? WHERE id = ?`,
		total, skipped, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set scan job totals: %w", err)
	}
	return nil
}

// UpdateScanJobProgress flushes one progress batch; called every N
// completed items, not per item, to bound write amplification.
func (c *Client) UpdateScanJobProgress(id string, processed, errors, skipped int, currentFile string) error {
	if len(currentFile) > 100 {
		currentFile = currentFile[:100]
	}
	_, err := c.db.Exec(
		`UPDATE scan_jobs SET processed_files = ?, error_files = ?, skipped_files = ?, current_file = ?
		 WHERE id = ?`,
		processed, errors, skipped, currentFile, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan job progress: %w", err)
	}
	return nil
}

// FinishScanJob moves a job to its terminal state with final
// counters.
func (c *Client) FinishScanJob(id string, status models.ScanJobStatus, processed, errors, skipped int, errorMessage string) error {
	_, err := c.db.Exec(
		`UPDATE scan_jobs SET status = ?, processed_files = ?, error_files = ?, skipped_files = ?,
			current_file = '', error_message = ?, completed_at = ?
		 WHERE id = ?`,
		string(status), processed, errors, skipped, errorMessage, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish scan job: %w", err)
	}
	return nil
}

func (c *Client) GetScanJob(id string) (*models.ScanJob, error) {
	row := c.db.QueryRow(
		`SELECT id, source, status, total_files, processed_files, skipped_files, error_files,
			current_file, error_message, started_at, completed_at
		 FROM scan_jobs WHERE id = ?`, id)
	return scanScanJob(row)
}

func (c *Client) ListScanJobs(limit int) ([]models.ScanJob, error) {
	rows, err := c.db.Query(
		`SELECT id, source, status, total_files, processed_files, skipped_files, error_files,
			current_file, error_message, started_at, completed_at
		 FROM scan_jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScanJob
	for rows.Next() {
		job, err := scanScanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanScanJob(row rowScanner) (*models.ScanJob, error) {
	var job models.ScanJob
	var source, status string
	var startedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&job.ID, &source, &status, &job.TotalFiles, &job.ProcessedFiles, &job.SkippedFiles,
		&job.ErrorFiles, &job.CurrentFile, &job.ErrorMessage, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scan job: %w", err)
	}

	job.Source = models.DocumentSource(source)
	job.Status = models.ScanJobStatus(status)
	job.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}
	return &job, nil
}
