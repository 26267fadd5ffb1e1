package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/classify"
	"github.com/docuflow/backend/internal/crypto"
	"github.com/docuflow/backend/internal/metrics"
	"github.com/docuflow/backend/internal/pdf"
	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
)

// docInput collects everything persistDocument needs to turn raw file
// content into a routed document record.
type docInput struct {
	tenant       *models.Tenant
	name         string
	originalPath string
	data         []byte
	mime         string
	ftype        classify.FileType
	subjectID    string
	tenantHint   string
	monthFolder  string
	meta         models.Metadata
}

// processEntry runs the full pipeline for one archive file. Failures
// are counted on the job, never propagated: one bad file must not
// abort the run.
func (o *Orchestrator) processEntry(ctx context.Context, rs *runState, entry Entry, splitDir string) {
	start := time.Now()
	defer func() { metrics.FileDuration.Observe(time.Since(start).Seconds()) }()

	log := o.log.With(
		zap.String("file", entry.Name),
		zap.String("tenant", entry.TenantCode),
	)

	fail := func(msg string, err error) {
		log.Error(msg, zap.Error(err))
		rs.bumpErrored(entry.Name)
		metrics.FilesTotal.WithLabelValues("error").Inc()
	}
	skip := func(reason string) {
		log.Debug("File skipped", zap.String("reason", reason))
		rs.bumpSkipped(entry.Name)
		metrics.FilesTotal.WithLabelValues("skipped").Inc()
	}

	tenant, err := rs.tenant(entry.TenantCode)
	if err != nil {
		fail("Failed to resolve tenant", err)
		return
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		fail("Failed to read file", err)
		return
	}

	hash, _, err := crypto.HashReader(bytes.NewReader(data))
	if err != nil {
		fail("Failed to hash file", err)
		return
	}

	if !rs.claimHash(tenant.ID, hash) {
		skip("duplicate content")
		return
	}
	if dup, err := o.store.HasProcessedFile(tenant.ID, hash); err != nil {
		fail("Failed to check dedup index", err)
		return
	} else if dup {
		skip("already processed")
		return
	}

	in := docInput{
		tenant:       tenant,
		name:         entry.Name,
		originalPath: entry.Path,
		data:         data,
		mime:         mimetype.Detect(data).String(),
		ftype:        classify.ClassifyFilename(entry.Name),
		monthFolder:  entry.MonthFolder,
	}

	if strings.EqualFold(filepath.Ext(entry.Name), ".pdf") {
		handled, err := o.processPDF(rs, &in, entry, hash, splitDir, log)
		if err != nil {
			fail("Failed to process PDF", err)
			return
		}
		if handled {
			rs.bumpProcessed(entry.Name)
			metrics.FilesTotal.WithLabelValues("processed").Inc()
			return
		}
	}

	if err := o.persistDocument(in); err != nil {
		if errors.Is(err, sqlite.ErrDuplicate) {
			skip("duplicate record")
			return
		}
		fail("Failed to persist document", err)
		return
	}

	rs.bumpProcessed(entry.Name)
	metrics.FilesTotal.WithLabelValues("processed").Inc()
}

// processPDF enriches the input with decoded code data and, for
// multi-page subject-specific documents, attempts the per-subject
// split. Returns handled=true when the split consumed the file.
func (o *Orchestrator) processPDF(rs *runState, in *docInput, entry Entry, hash, splitDir string, log *zap.Logger) (bool, error) {
	pages, err := pdf.PageCount(in.data)
	if err != nil {
		// An unparseable page tree only loses enrichment, never the
		// file; treat it as a single page and ingest whole.
		log.Warn("Failed to count pages, treating as single page", zap.Error(err))
		pages = 1
	}

	if pages > 1 && in.ftype.SubjectSpecific {
		segments, err := o.splitter.Segment(in.data, entry.Name, splitDir)
		if err != nil {
			// A failed split degrades to single-document ingestion
			// rather than losing the file.
			log.Warn("Split failed, ingesting whole document", zap.Error(err))
		} else if len(segments) > 0 {
			return true, o.ingestSegments(rs, in, entry, hash, segments, log)
		}
	}

	res := o.extractor.Extract(in.data, o.cfg.MaxDecodePages, o.cfg.DecodeTimeout())
	if !res.Success {
		log.Warn("Code extraction failed", zap.String("error", res.Err))
	}
	if len(res.Codes) > 0 {
		metrics.CodesDecoded.Add(float64(len(res.Codes)))
	}
	if len(res.SubjectIDs) > 0 {
		in.subjectID = res.SubjectIDs[0]
	}
	in.tenantHint = res.TenantHint
	in.meta.CodesFound = len(res.Codes)
	return false, nil
}

// ingestSegments persists each split segment as its own document and
// marks the source file processed without a document of its own.
func (o *Orchestrator) ingestSegments(rs *runState, in *docInput, entry Entry, origHash string, segments []pdf.Segment, log *zap.Logger) error {
	persisted := 0
	for _, seg := range segments {
		segData, err := os.ReadFile(seg.Path)
		os.Remove(seg.Path)
		if err != nil {
			log.Error("Failed to read segment", zap.String("segment", seg.Path), zap.Error(err))
			continue
		}

		segHash, _, err := crypto.HashReader(bytes.NewReader(segData))
		if err != nil {
			log.Error("Failed to hash segment", zap.String("segment", seg.Path), zap.Error(err))
			continue
		}
		if !rs.claimHash(in.tenant.ID, segHash) {
			log.Debug("Duplicate segment content", zap.String("segment", filepath.Base(seg.Path)))
			continue
		}

		segName := filepath.Base(seg.Path)
		segIn := docInput{
			tenant: in.tenant,
			name:   segName,
			// Segments live in a temp dir; the recorded path stays
			// anchored to the source file.
			originalPath: fmt.Sprintf("%s#%s", entry.Path, segName),
			data:         segData,
			mime:         "application/pdf",
			ftype:        in.ftype,
			subjectID:    seg.SubjectID,
			tenantHint:   seg.TenantHint,
			monthFolder:  entry.MonthFolder,
			meta: models.Metadata{
				SplitFrom:  entry.Name,
				SplitPages: len(seg.Pages),
			},
		}
		if err := o.persistDocument(segIn); err != nil {
			if errors.Is(err, sqlite.ErrDuplicate) {
				continue
			}
			log.Error("Failed to persist segment", zap.String("segment", segName), zap.Error(err))
			continue
		}
		persisted++
	}

	if persisted == 0 {
		return fmt.Errorf("no segment of %s could be persisted", entry.Name)
	}

	if err := o.store.MarkProcessed(in.tenant.ID, origHash, entry.Path); err != nil && !errors.Is(err, sqlite.ErrDuplicate) {
		return err
	}

	metrics.DocumentsSplit.Inc()
	log.Info("Document split",
		zap.Int("segments", len(segments)),
		zap.Int("persisted", persisted),
	)
	return nil
}

// persistDocument resolves the subject, routes the status, runs the
// rule engine, encrypts the content and writes the record. Returns
// sqlite.ErrDuplicate when the dedup constraint rejected the insert.
func (o *Orchestrator) persistDocument(in docInput) error {
	ext := strings.ToLower(filepath.Ext(in.name))

	doc := &models.Document{
		ID:               uuid.NewString(),
		TenantID:         in.tenant.ID,
		Title:            strings.TrimSuffix(in.name, filepath.Ext(in.name)),
		OriginalFilename: in.name,
		FileExtension:    strings.TrimPrefix(ext, "."),
		MimeType:         in.mime,
		Source:           o.source.Kind(),
		Metadata:         in.meta,
	}

	doc.Metadata.OriginalPath = in.originalPath
	doc.Metadata.TenantCode = in.tenant.Code
	doc.Metadata.MonthFolder = in.monthFolder
	doc.Metadata.DocType = in.ftype.Code
	doc.Metadata.DocTypeDescription = in.ftype.Description
	doc.Metadata.CategoryCode = in.ftype.CategoryCode
	doc.Metadata.SubjectSpecific = in.ftype.SubjectSpecific
	doc.Metadata.SubjectIDFromCode = in.subjectID

	if in.ftype != classify.UnknownType {
		doc.DocumentType = in.ftype.Code
	}
	if year, month, ok := ParsePeriod(in.monthFolder); ok {
		doc.PeriodYear = &year
		doc.PeriodMonth = &month
	}

	var employee *models.Employee
	if in.subjectID != "" {
		emp, err := o.resolver.Resolve(in.subjectID, in.tenant, in.tenantHint)
		if err != nil {
			o.log.Warn("Subject resolution failed",
				zap.String("subject_id", in.subjectID),
				zap.Error(err),
			)
		}
		employee = emp
	}
	if employee != nil {
		doc.EmployeeID = &employee.ID
	}

	doc.Status = routeStatus(in.ftype, ext == ".pdf", employee)
	doc.Metadata.NeedsReview = doc.Status == models.StatusReviewNeeded

	if _, err := o.rules.MatchFilename(doc); err != nil {
		o.log.Warn("Rule evaluation failed", zap.String("file", in.name), zap.Error(err))
	}

	ref, hash, size, err := o.blobs.Put(doc.ID, bytes.NewReader(in.data))
	if err != nil {
		return err
	}
	doc.ContentRef = ref
	doc.SHA256 = hash
	doc.FileSize = size

	if err := o.store.CreateDocument(doc, in.originalPath); err != nil {
		o.blobs.Delete(doc.ID)
		return err
	}

	metrics.DocumentsCreated.WithLabelValues(string(doc.Status)).Inc()

	if doc.Status == models.StatusReviewNeeded {
		if _, err := o.store.CreateReviewTask(doc, doc.Source); err != nil {
			o.log.Error("Failed to create review task", zap.String("doc_id", doc.ID), zap.Error(err))
		} else {
			metrics.ReviewTasksCreated.Inc()
		}
	}
	return nil
}

// routeStatus decides where a new document lands. A resolved subject
// always wins. An unresolved subject-specific PDF needs human review.
// Known company-wide types go to the company archive. Unknown types
// stay unassigned so the rule engine can still route them.
func routeStatus(ftype classify.FileType, isPDF bool, employee *models.Employee) models.DocumentStatus {
	switch {
	case employee != nil:
		return models.StatusAssigned
	case ftype.SubjectSpecific && isPDF:
		return models.StatusReviewNeeded
	case ftype.SubjectSpecific:
		return models.StatusUnassigned
	case ftype == classify.UnknownType:
		return models.StatusUnassigned
	default:
		return models.StatusCompany
	}
}
