package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/docuflow/backend/internal/barcode"
	"github.com/docuflow/backend/internal/classify"
	"github.com/docuflow/backend/internal/crypto"
	"github.com/docuflow/backend/internal/identity"
	"github.com/docuflow/backend/internal/lock"
	"github.com/docuflow/backend/internal/pdf"
	"github.com/docuflow/backend/internal/storage/blob"
	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
	"github.com/docuflow/backend/pkg/config"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		folder string
		year   int
		month  int
		ok     bool
	}{
		{"202503", 2025, 3, true},
		{"200001", 2000, 1, true},
		{"210012", 2100, 12, true},
		{"202513", 0, 0, false},
		{"202500", 0, 0, false},
		{"199912", 0, 0, false},
		{"210101", 0, 0, false},
		{"2025", 0, 0, false},
		{"2025AB", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		year, month, ok := ParsePeriod(tt.folder)
		assert.Equal(t, tt.ok, ok, tt.folder)
		assert.Equal(t, tt.year, year, tt.folder)
		assert.Equal(t, tt.month, month, tt.folder)
	}
}

func writeArchiveFile(t *testing.T, root, tenant, month, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, tenant, month)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilesystemSourceEnumerate(t *testing.T) {
	root := t.TempDir()
	writeArchiveFile(t, root, "00000001", "202503", "Lohnjournal.txt", "a")
	writeArchiveFile(t, root, "00000001", "202503", "Thumbs.db", "junk")
	writeArchiveFile(t, root, "00000001", "202503", "readme.md", "unsupported")
	writeArchiveFile(t, root, "00000001", "notamonth", "stray.txt", "b")
	writeArchiveFile(t, root, "customer", "202503", "stray.txt", "c")
	writeArchiveFile(t, root, "00000002", "202504", "liste.csv", "d")

	entries, err := NewFilesystemSource(root, zap.NewNop()).Enumerate()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Equal(t, "00000001", byName["Lohnjournal.txt"].TenantCode)
	assert.Equal(t, "202503", byName["Lohnjournal.txt"].MonthFolder)
	assert.Equal(t, "00000002", byName["liste.csv"].TenantCode)
}

func testOrchestrator(t *testing.T, root string) (*Orchestrator, *sqlite.Client, *lock.Manager) {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locks := lock.NewManager(redisClient, zap.NewNop())

	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")
	cipher, err := crypto.NewCipher(key)
	require.NoError(t, err)
	blobs, err := blob.NewStore(t.TempDir(), cipher)
	require.NoError(t, err)

	extractor := barcode.NewExtractor(zap.NewNop())
	cfg := config.ScannerConfig{
		Workers:           2,
		MaxDecodePages:    1,
		DecodeTimeoutSec:  5,
		LockTTLSec:        60,
		ProgressBatchSize: 2,
		SplitTempDir:      t.TempDir(),
	}

	orch := NewOrchestrator(
		cfg,
		NewFilesystemSource(root, zap.NewNop()),
		store,
		blobs,
		locks,
		extractor,
		pdf.NewSegmenter(extractor, zap.NewNop()),
		identity.NewResolver(store, zap.NewNop()),
		classify.NewEngine(store, zap.NewNop()),
		zap.NewNop(),
	)
	return orch, store, locks
}

func runScan(t *testing.T, orch *Orchestrator, store *sqlite.Client) *models.ScanJob {
	t.Helper()
	job, err := store.CreateScanJob(models.SourceBatchArchive)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background(), job.ID))

	job, err = store.GetScanJob(job.ID)
	require.NoError(t, err)
	return job
}

func TestRunIngestsArchive(t *testing.T) {
	root := t.TempDir()
	writeArchiveFile(t, root, "00000001", "202503", "Lohnjournal_2025.txt", "journal content")
	writeArchiveFile(t, root, "00000001", "202503", "notizen.txt", "freeform notes")
	writeArchiveFile(t, root, "00000002", "202504", "E_Sage_Export.txt", "export rows")

	orch, store, _ := testOrchestrator(t, root)
	job := runScan(t, orch, store)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 3, job.TotalFiles)
	assert.Equal(t, 3, job.ProcessedFiles)
	assert.Equal(t, 0, job.SkippedFiles)
	assert.Equal(t, 0, job.ErrorFiles)
	require.NotNil(t, job.CompletedAt)

	paths, err := store.KnownPaths()
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	// Tenants are created on first sight of their archive folders.
	tenants, err := store.ListActiveTenants()
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeArchiveFile(t, root, "00000001", "202503", "Lohnjournal_2025.txt", "journal content")
	writeArchiveFile(t, root, "00000001", "202503", "notizen.txt", "freeform notes")

	orch, store, _ := testOrchestrator(t, root)
	first := runScan(t, orch, store)
	require.Equal(t, 2, first.ProcessedFiles)

	second := runScan(t, orch, store)
	assert.Equal(t, models.JobCompleted, second.Status)
	assert.Equal(t, 2, second.TotalFiles)
	assert.Equal(t, 0, second.ProcessedFiles)
	assert.Equal(t, 2, second.SkippedFiles)
	assert.Equal(t, 0, second.ErrorFiles)

	paths, err := store.KnownPaths()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestRunIngestsCorruptPDF(t *testing.T) {
	root := t.TempDir()
	path := writeArchiveFile(t, root, "00000001", "202503", "kaputt.pdf", "these are not pdf bytes")

	orch, store, _ := testOrchestrator(t, root)
	job := runScan(t, orch, store)

	// An unparseable PDF loses code enrichment but is still ingested
	// as a whole document, never counted as an error.
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 1, job.ProcessedFiles)
	assert.Equal(t, 0, job.ErrorFiles)
	assert.Equal(t, 0, job.SkippedFiles)

	paths, err := store.KnownPaths()
	require.NoError(t, err)
	assert.Contains(t, paths, path)
}

func TestRunDedupsIdenticalContentPerTenant(t *testing.T) {
	root := t.TempDir()
	writeArchiveFile(t, root, "00000001", "202503", "kopie_a.txt", "same bytes")
	writeArchiveFile(t, root, "00000001", "202504", "kopie_b.txt", "same bytes")
	writeArchiveFile(t, root, "00000002", "202503", "kopie_c.txt", "same bytes")

	orch, store, _ := testOrchestrator(t, root)
	job := runScan(t, orch, store)

	assert.Equal(t, models.JobCompleted, job.Status)
	// One copy per tenant survives; the within-tenant duplicate is
	// dropped by the content hash.
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Equal(t, 1, job.SkippedFiles)
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	root := t.TempDir()
	writeArchiveFile(t, root, "00000001", "202503", "datei.txt", "x")

	orch, store, locks := testOrchestrator(t, root)

	lease, ok := locks.Acquire(context.Background(), lockName, orch.cfg.LockTTL())
	require.True(t, ok)
	defer lease.Release(context.Background())

	job, err := store.CreateScanJob(models.SourceBatchArchive)
	require.NoError(t, err)

	err = orch.Run(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrScanActive)

	job, err = store.GetScanJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
}

func TestProgressFlushFailureIsLogged(t *testing.T) {
	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.InitSchema())
	require.NoError(t, store.Close())

	core, logs := observer.New(zap.WarnLevel)
	rs := &runState{
		store:     store,
		jobID:     "job-1",
		batchSize: 1,
		log:       zap.New(core),
	}

	rs.bumpProcessed("datei.pdf")
	rs.flush()

	assert.Equal(t, 2, logs.FilterMessage("Failed to flush scan progress").Len())
}

func TestRouteStatus(t *testing.T) {
	emp := &models.Employee{ID: 1}
	subjectType := classify.FileType{Code: "LOHNSCHEINE", SubjectSpecific: true}
	companyType := classify.FileType{Code: "FIBU"}

	assert.Equal(t, models.StatusAssigned, routeStatus(subjectType, true, emp))
	assert.Equal(t, models.StatusReviewNeeded, routeStatus(subjectType, true, nil))
	assert.Equal(t, models.StatusUnassigned, routeStatus(subjectType, false, nil))
	assert.Equal(t, models.StatusCompany, routeStatus(companyType, true, nil))
	assert.Equal(t, models.StatusUnassigned, routeStatus(classify.UnknownType, true, nil))
}
