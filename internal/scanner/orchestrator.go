package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docuflow/backend/internal/barcode"
	"github.com/docuflow/backend/internal/classify"
	"github.com/docuflow/backend/internal/identity"
	"github.com/docuflow/backend/internal/lock"
	"github.com/docuflow/backend/internal/metrics"
	"github.com/docuflow/backend/internal/pdf"
	"github.com/docuflow/backend/internal/storage/blob"
	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
	"github.com/docuflow/backend/pkg/config"
	"github.com/docuflow/backend/pkg/retry"
)

// lockName serializes ingestion runs across all worker processes.
const lockName = "archive_scanner"

// ErrScanActive reports that another process holds the scan lock.
var ErrScanActive = errors.New("scanner: scan already running")

// CodeExtractor decodes 2D matrix codes from PDF content. Satisfied
// by *barcode.Extractor.
type CodeExtractor interface {
	Extract(pdfData []byte, maxPages int, timeout time.Duration) barcode.Result
}

// Splitter partitions multi-subject PDFs. Satisfied by *pdf.Segmenter.
type Splitter interface {
	Segment(pdfData []byte, sourceName, outputDir string) ([]pdf.Segment, error)
}

// Orchestrator runs whole ingestion passes over an archive source:
// enumerate, dedup, decode, split, classify, encrypt, persist.
type Orchestrator struct {
	cfg       config.ScannerConfig
	source    Source
	store     *sqlite.Client
	blobs     *blob.Store
	locks     *lock.Manager
	extractor CodeExtractor
	splitter  Splitter
	resolver  *identity.Resolver
	rules     *classify.Engine
	retryCfg  retry.Config
	log       *zap.Logger
}

func NewOrchestrator(
	cfg config.ScannerConfig,
	source Source,
	store *sqlite.Client,
	blobs *blob.Store,
	locks *lock.Manager,
	extractor CodeExtractor,
	splitter Splitter,
	resolver *identity.Resolver,
	rules *classify.Engine,
	log *zap.Logger,
) *Orchestrator {
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = log
	return &Orchestrator{
		cfg:       cfg,
		source:    source,
		store:     store,
		blobs:     blobs,
		locks:     locks,
		extractor: extractor,
		splitter:  splitter,
		resolver:  resolver,
		rules:     rules,
		retryCfg:  retryCfg,
		log:       log,
	}
}

// Trigger creates a scan job and starts the run in the background,
// wrapped in the orchestrator's retry policy. The job record is the
// handle callers poll for progress.
func (o *Orchestrator) Trigger(ctx context.Context) (*models.ScanJob, error) {
	job, err := o.store.CreateScanJob(o.source.Kind())
	if err != nil {
		return nil, err
	}

	go func() {
		runCtx := context.Background()
		err := retry.Do(runCtx, o.retryCfg, func() error {
			return o.Run(runCtx, job.ID)
		})
		if errors.Is(err, ErrScanActive) {
			// Run leaves the job untouched on lock contention. A scan
			// that yields to a running one is not a failure; close the
			// job with a note once the retries gave up.
			if ferr := o.store.FinishScanJob(job.ID, models.JobCompleted, 0, 0, 0,
				"another scan is already running"); ferr != nil {
				o.log.Error("Failed to finish contended scan job",
					zap.String("job_id", job.ID), zap.Error(ferr))
			}
		}
	}()

	return job, nil
}

// Run executes one full ingestion pass for an existing job. Returns
// ErrScanActive without touching the job when the lock is held
// elsewhere; any other failure is recorded on the job before
// returning.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	lease, ok := o.locks.Acquire(ctx, lockName, o.cfg.LockTTL())
	if !ok {
		return ErrScanActive
	}
	defer lease.Release(ctx)

	start := time.Now()
	rs := &runState{
		store:     o.store,
		jobID:     jobID,
		batchSize: o.cfg.ProgressBatchSize,
		log:       o.log,
		tenants:   make(map[string]*models.Tenant),
		hashes:    make(map[int64]map[string]struct{}),
	}

	err := o.run(ctx, rs)
	processed, errored, skipped := rs.counters()

	if err != nil {
		metrics.ScanJobsTotal.WithLabelValues(string(models.JobFailed)).Inc()
		if ferr := o.store.FinishScanJob(jobID, models.JobFailed, processed, errored, skipped, err.Error()); ferr != nil {
			o.log.Error("Failed to finish scan job", zap.String("job_id", jobID), zap.Error(ferr))
		}
		return err
	}

	metrics.ScanJobsTotal.WithLabelValues(string(models.JobCompleted)).Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if ferr := o.store.FinishScanJob(jobID, models.JobCompleted, processed, errored, skipped, ""); ferr != nil {
		return ferr
	}

	o.log.Info("Scan completed",
		zap.String("job_id", jobID),
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
		zap.Int("errors", errored),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, rs *runState) error {
	if err := o.store.SetScanJobStatus(rs.jobID, models.JobRunning); err != nil {
		return err
	}

	knownPaths, err := o.store.KnownPaths()
	if err != nil {
		return err
	}

	entries, err := o.source.Enumerate()
	if err != nil {
		return err
	}

	pending := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if _, seen := knownPaths[entry.Path]; seen {
			rs.skipQuiet()
			metrics.FilesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		pending = append(pending, entry)
	}

	_, _, skipped := rs.counters()
	if err := o.store.SetScanJobTotals(rs.jobID, len(entries), skipped); err != nil {
		return err
	}

	o.log.Info("Scan starting",
		zap.String("job_id", rs.jobID),
		zap.Int("total", len(entries)),
		zap.Int("pending", len(pending)),
	)

	splitDir := filepath.Join(o.cfg.SplitTempDir, rs.jobID)
	defer os.RemoveAll(splitDir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())

	for _, entry := range pending {
		entry := entry
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			o.processEntry(gctx, rs, entry, splitDir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rs.flush()
	return nil
}

// workers resolves the configured pool size; zero means a small pool
// bounded by the host.
func (o *Orchestrator) workers() int {
	if o.cfg.Workers > 0 {
		return o.cfg.Workers
	}
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// runState carries the shared per-run caches and counters. Tenant and
// hash lookups share one mutex; progress counters another, so slow DB
// calls never block counter updates.
type runState struct {
	store     *sqlite.Client
	jobID     string
	batchSize int
	log       *zap.Logger

	mu      sync.Mutex
	tenants map[string]*models.Tenant
	hashes  map[int64]map[string]struct{}

	progressMu sync.Mutex
	processed  int
	skipped    int
	errored    int
	sinceFlush int
}

// tenant resolves an archive folder code, creating the tenant on first
// sight and seeding its known-hash index.
func (rs *runState) tenant(code string) (*models.Tenant, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if t, ok := rs.tenants[code]; ok {
		return t, nil
	}

	t, err := rs.store.GetOrCreateTenant(code)
	if err != nil {
		return nil, err
	}

	known, err := rs.store.KnownHashes(t.ID)
	if err != nil {
		return nil, err
	}
	rs.tenants[code] = t
	rs.hashes[t.ID] = known
	return t, nil
}

// claimHash marks a content hash as in-flight for a tenant. Returns
// false when the hash was already processed or claimed by a concurrent
// worker; the database constraint remains the final authority.
func (rs *runState) claimHash(tenantID int64, hash string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.hashes[tenantID] == nil {
		rs.hashes[tenantID] = make(map[string]struct{})
	}
	if _, seen := rs.hashes[tenantID][hash]; seen {
		return false
	}
	rs.hashes[tenantID][hash] = struct{}{}
	return true
}

func (rs *runState) bumpProcessed(file string) { rs.bump(&rs.processed, file) }
func (rs *runState) bumpSkipped(file string)   { rs.bump(&rs.skipped, file) }
func (rs *runState) bumpErrored(file string)   { rs.bump(&rs.errored, file) }

// skipQuiet counts an enumeration-time skip without a progress flush.
func (rs *runState) skipQuiet() {
	rs.progressMu.Lock()
	rs.skipped++
	rs.progressMu.Unlock()
}

func (rs *runState) bump(counter *int, file string) {
	rs.progressMu.Lock()
	*counter++
	rs.sinceFlush++
	flush := rs.sinceFlush >= rs.batchSize && rs.batchSize > 0
	if flush {
		rs.sinceFlush = 0
	}
	processed, errored, skipped := rs.processed, rs.errored, rs.skipped
	rs.progressMu.Unlock()

	if flush {
		if err := rs.store.UpdateScanJobProgress(rs.jobID, processed, errored, skipped, file); err != nil {
			rs.log.Warn("Failed to flush scan progress",
				zap.String("job_id", rs.jobID),
				zap.Error(err),
			)
		}
	}
}

func (rs *runState) flush() {
	rs.progressMu.Lock()
	processed, errored, skipped := rs.processed, rs.errored, rs.skipped
	rs.sinceFlush = 0
	rs.progressMu.Unlock()
	if err := rs.store.UpdateScanJobProgress(rs.jobID, processed, errored, skipped, ""); err != nil {
		rs.log.Warn("Failed to flush scan progress",
			zap.String("job_id", rs.jobID),
			zap.Error(err),
		)
	}
}

func (rs *runState) counters() (processed, errored, skipped int) {
	rs.progressMu.Lock()
	defer rs.progressMu.Unlock()
	return rs.processed, rs.errored, rs.skipped
}
