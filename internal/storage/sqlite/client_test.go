package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	return client
}

func newTestDocument(t *testing.T, c *Client, tenantID int64, hash, path string) *models.Document {
	t.Helper()
	doc := &models.Document{
		TenantID:         tenantID,
		Title:            "Lohnschein",
		OriginalFilename: "Lohnschein.pdf",
		FileExtension:    "pdf",
		SHA256:           hash,
		Status:           models.StatusUnassigned,
		Source:           models.SourceBatchArchive,
	}
	require.NoError(t, c.CreateDocument(doc, path))
	return doc
}

func TestGetOrCreateTenant(t *testing.T) {
	c := newTestClient(t)

	first, err := c.GetOrCreateTenant("00000042")
	require.NoError(t, err)
	assert.Equal(t, "Mandant 00000042", first.Name)
	assert.True(t, first.IsActive)

	second, err := c.GetOrCreateTenant("00000042")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateDocumentDuplicateHash(t *testing.T) {
	c := newTestClient(t)
	tenant, err := c.GetOrCreateTenant("00000001")
	require.NoError(t, err)

	newTestDocument(t, c, tenant.ID, "hash-a", "/archive/a.pdf")

	dup := &models.Document{
		TenantID:         tenant.ID,
		Title:            "Kopie",
		OriginalFilename: "Kopie.pdf",
		FileExtension:    "pdf",
		SHA256:           "hash-a",
		Status:           models.StatusUnassigned,
		Source:           models.SourceBatchArchive,
	}
	err = c.CreateDocument(dup, "/archive/kopie.pdf")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDuplicateHashAllowedAcrossTenants(t *testing.T) {
	c := newTestClient(t)
	first, err := c.GetOrCreateTenant("00000001")
	require.NoError(t, err)
	second, err := c.GetOrCreateTenant("00000002")
	require.NoError(t, err)

	newTestDocument(t, c, first.ID, "hash-a", "/archive/1/a.pdf")
	newTestDocument(t, c, second.ID, "hash-a", "/archive/2/a.pdf")

	has, err := c.HasProcessedFile(second.ID, "hash-a")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMarkProcessedAndIndices(t *testing.T) {
	c := newTestClient(t)
	tenant, err := c.GetOrCreateTenant("00000001")
	require.NoError(t, err)

	require.NoError(t, c.MarkProcessed(tenant.ID, "hash-split", "/archive/batch.pdf"))
	assert.ErrorIs(t, c.MarkProcessed(tenant.ID, "hash-split", "/archive/batch.pdf"), ErrDuplicate)

	paths, err := c.KnownPaths()
	require.NoError(t, err)
	assert.Contains(t, paths, "/archive/batch.pdf")

	hashes, err := c.KnownHashes(tenant.ID)
	require.NoError(t, err)
	assert.Contains(t, hashes, "hash-split")
}

func TestCreateReviewTaskIdempotent(t *testing.T) {
	c := newTestClient(t)
	tenant, err := c.GetOrCreateTenant("00000001")
	require.NoError(t, err)
	doc := newTestDocument(t, c, tenant.ID, "hash-r", "/archive/r.pdf")

	first, err := c.CreateReviewTask(doc, models.SourceBatchArchive)
	require.NoError(t, err)
	assert.Equal(t, models.TaskOpen, first.Status)
	assert.Contains(t, first.Title, "Lohnschein.pdf")

	second, err := c.CreateReviewTask(doc, models.SourceBatchArchive)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestListActiveRulesOrdering(t *testing.T) {
	c := newTestClient(t)
	tenant, err := c.GetOrCreateTenant("00000001")
	require.NoError(t, err)
	other, err := c.GetOrCreateTenant("00000002")
	require.NoError(t, err)

	low := &models.MatchingRule{TenantID: &tenant.ID, Name: "low", IsActive: true, Priority: 1, Algorithm: models.AlgorithmExact, Pattern: "a"}
	high := &models.MatchingRule{TenantID: &tenant.ID, Name: "high", IsActive: true, Priority: 9, Algorithm: models.AlgorithmExact, Pattern: "b"}
	global := &models.MatchingRule{Name: "global", IsActive: true, Priority: 5, Algorithm: models.AlgorithmExact, Pattern: "c"}
	foreign := &models.MatchingRule{TenantID: &other.ID, Name: "foreign", IsActive: true, Priority: 99, Algorithm: models.AlgorithmExact, Pattern: "d"}
	inactive := &models.MatchingRule{TenantID: &tenant.ID, Name: "off", IsActive: false, Priority: 99, Algorithm: models.AlgorithmExact, Pattern: "e"}
	for _, r := range []*models.MatchingRule{low, high, global, foreign, inactive} {
		require.NoError(t, c.CreateMatchingRule(r))
	}

	rules, err := c.ListActiveRules(tenant.ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "high", rules[0].Name)
	assert.Equal(t, "global", rules[1].Name)
	assert.Equal(t, "low", rules[2].Name)
}

func TestRecordRuleMatch(t *testing.T) {
	c := newTestClient(t)
	rule := &models.MatchingRule{Name: "r", IsActive: true, Algorithm: models.AlgorithmExact, Pattern: "x"}
	require.NoError(t, c.CreateMatchingRule(rule))

	require.NoError(t, c.RecordRuleMatch(rule.ID))
	require.NoError(t, c.RecordRuleMatch(rule.ID))

	got, err := c.GetMatchingRule(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.MatchCount)
	assert.NotNil(t, got.LastMatchedAt)
}

func TestScanJobLifecycle(t *testing.T) {
	c := newTestClient(t)

	job, err := c.CreateScanJob(models.SourceBatchArchive)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)

	require.NoError(t, c.SetScanJobStatus(job.ID, models.JobRunning))
	require.NoError(t, c.SetScanJobTotals(job.ID, 12, 3))
	require.NoError(t, c.UpdateScanJobProgress(job.ID, 5, 1, 3, "datei.pdf"))
	require.NoError(t, c.FinishScanJob(job.ID, models.JobCompleted, 8, 1, 3, ""))

	got, err := c.GetScanJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 12, got.TotalFiles)
	assert.Equal(t, 8, got.ProcessedFiles)
	assert.Equal(t, 1, got.ErrorFiles)
	assert.Equal(t, 3, got.SkippedFiles)
	assert.Empty(t, got.CurrentFile)
	require.NotNil(t, got.CompletedAt)
}

func TestGetScanJobNotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GetScanJob("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
