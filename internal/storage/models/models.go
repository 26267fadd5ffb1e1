package models

import "time"

type DocumentStatus string

const (
	StatusUnassigned   DocumentStatus = "UNASSIGNED"
	StatusAssigned     DocumentStatus = "ASSIGNED"
	StatusReviewNeeded DocumentStatus = "REVIEW_NEEDED"
	StatusCompany      DocumentStatus = "COMPANY"
	StatusArchived     DocumentStatus = "ARCHIVED"
)

type DocumentSource string

const (
	SourceBatchArchive DocumentSource = "BATCH_ARCHIVE"
	SourceEmail        DocumentSource = "EMAIL"
	SourceAPI          DocumentSource = "API"
	SourceManual       DocumentSource = "MANUAL"
)

type ScanJobStatus string

const (
	JobPending   ScanJobStatus = "PENDING"
	JobRunning   ScanJobStatus = "RUNNING"
	JobCompleted ScanJobStatus = "COMPLETED"
	JobFailed    ScanJobStatus = "FAILED"
)

type RuleAlgorithm string

const (
	AlgorithmNone  RuleAlgorithm = "NONE"
	AlgorithmAny   RuleAlgorithm = "ANY"
	AlgorithmAll   RuleAlgorithm = "ALL"
	AlgorithmExact RuleAlgorithm = "EXACT"
	AlgorithmRegex RuleAlgorithm = "REGEX"
	AlgorithmFuzzy RuleAlgorithm = "FUZZY"
)

// Tenant is one isolated customer scope, keyed by its 8-digit archive
// folder code.
type Tenant struct {
	ID        int64
	Code      string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// Employee is a canonical tenant-scoped identity. TenantID is nil for
// legacy records imported before tenant partitioning.
type Employee struct {
	ID         int64
	TenantID   *int64
	EmployeeID string
	FirstName  string
	LastName   string
	Email      string
	IsActive   bool
	CreatedAt  time.Time
}

// Metadata is the documented classification metadata of a document.
// Anything outside the schema goes into Extra.
type Metadata struct {
	OriginalPath       string            `json:"original_path,omitempty"`
	TenantCode         string            `json:"tenant_code,omitempty"`
	MonthFolder        string            `json:"month_folder,omitempty"`
	DocType            string            `json:"doc_type,omitempty"`
	DocTypeDescription string            `json:"doc_type_description,omitempty"`
	CategoryCode       string            `json:"category_code,omitempty"`
	SubjectSpecific    bool              `json:"subject_specific"`
	NeedsReview        bool              `json:"needs_review,omitempty"`
	SplitFrom          string            `json:"split_from,omitempty"`
	SplitPages         int               `json:"split_pages,omitempty"`
	SubjectIDFromCode  string            `json:"subject_id_from_code,omitempty"`
	CodesFound         int               `json:"codes_found,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

type Document struct {
	ID               string
	TenantID         int64
	Title            string
	OriginalFilename string
	FileExtension    string
	MimeType         string
	// ContentRef points at the encrypted content in the blob store.
	ContentRef   string
	FileSize     int64
	SHA256       string
	Status       DocumentStatus
	Source       DocumentSource
	Metadata     Metadata
	EmployeeID   *int64
	DocumentType string
	Tags         []string
	PeriodYear   *int
	PeriodMonth  *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProcessedFile is the dedup authority: at most one record per
// (tenant, content hash).
type ProcessedFile struct {
	ID           int64
	TenantID     int64
	SHA256       string
	OriginalPath string
	DocumentID   *string
	ProcessedAt  time.Time
}

type ScanJob struct {
	ID             string
	Source         DocumentSource
	Status         ScanJobStatus
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	ErrorFiles     int
	CurrentFile    string
	ErrorMessage   string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// MatchingRule is one prioritized classification rule, tenant-scoped
// or global (TenantID nil). Higher priority evaluates first; equal
// priorities keep declaration order.
type MatchingRule struct {
	ID               int64
	TenantID         *int64
	Name             string
	IsActive         bool
	Priority         int
	Algorithm        RuleAlgorithm
	Pattern          string
	CaseSensitive    bool
	AssignType       string
	AssignEmployeeID *int64
	AssignStatus     DocumentStatus
	AssignTags       []string
	MatchCount       int64
	LastMatchedAt    *time.Time
}

type ReviewTaskStatus string

const (
	TaskOpen       ReviewTaskStatus = "OPEN"
	TaskInProgress ReviewTaskStatus = "IN_PROGRESS"
	TaskCompleted  ReviewTaskStatus = "COMPLETED"
	TaskCancelled  ReviewTaskStatus = "CANCELLED"
)

type ReviewTask struct {
	ID          string
	DocumentID  string
	Title       string
	Description string
	Priority    int
	Status      ReviewTaskStatus
	CreatedAt   time.Time
}
