package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Source lifecycle: created on first successful ingestion of a canonical URL,
// updated in place on every later run. One row per org + canonical URL.
type Source struct {
	ID              string
	OrgID           string
	Jurisdiction    string
	SourceType      string // "statute", "case", "gazette", "regulation"
	Title           string
	Publisher       string
	BindingLanguage string
	Consolidated    bool
	AdoptedAt       *time.Time
	EffectiveAt     *time.Time
	VersionLabel    string
	LanguageNote    string
	CanonicalURL    string
	ContentHash     string
	ETag            string
	LastModified    string
	ResidencyZone   string
	LinkStatus      string // "ok" or "failed"
	LinkError       string
	LinkCheckedAt   time.Time
	ELI             string
	ECLI            string
	BodyJSON        string // structured sections stored as JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Document is one stored binary referencing a Source. Immutable once written
// except for the vector-store sync fields.
type Document struct {
	ID           string
	OrgID        string
	SourceID     string
	Bucket       string
	StoragePath  string
	ByteSize     int64
	MimeType     string
	VectorFileID string
	SyncStatus   string // "pending", "uploaded", "failed"
	SyncError    string
	CreatedAt    time.Time
}

const (
	SyncPending  = "pending"
	SyncUploaded = "uploaded"
	SyncFailed   = "failed"
)

// AuthorityDomain doubles as allowlist membership and health signal for one
// host + jurisdiction pair.
type AuthorityDomain struct {
	Host          string
	Jurisdiction  string
	FailureCount  int
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
}

// QuarantineEntry records a document rejected from the trusted corpus.
// Upsert key: org + source URL + reason.
type QuarantineEntry struct {
	ID           string
	OrgID        string
	SourceURL    string
	Reason       string
	Detail       string
	MetadataJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Quarantine reasons written by the ingestion orchestrator.
const (
	QuarantineInvalidURL       = "invalid_url"
	QuarantineNotAllowlisted   = "domain_not_allowlisted"
	QuarantineMissingLanguage  = "binding_language_missing"
	QuarantineIngestionFailure = "ingestion_failure"
)

// IngestionRun tracks one orchestrator invocation for one adapter.
type IngestionRun struct {
	ID         string
	OrgID      string
	Adapter    string
	Status     string // "running", "completed", "failed"
	Inserted   int
	Skipped    int
	Failures   int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// AgentRun is one recorded agent invocation, consumed by the learning loop.
type AgentRun struct {
	ID         string
	OrgID      string
	Status     string // "succeeded", "failed"
	Question   string
	OccurredAt time.Time
}

// Citation is one citation emitted during an agent run, with its allowlist
// verdict.
type Citation struct {
	ID          string
	RunID       string
	OrgID       string
	SourceURL   string
	Allowlisted bool
	CheckedAt   time.Time
}

// TelemetryEvent is one tool invocation observation.
type TelemetryEvent struct {
	ID         string
	OrgID      string
	RunID      string
	Tool       string
	Outcome    string
	DurationMs int64
	OccurredAt time.Time
}

// ReviewAction is one human reviewer decision on agent output.
type ReviewAction struct {
	ID         string
	OrgID      string
	RunID      string
	Reviewer   string
	Decision   string // "approved", "rejected", "escalated"
	Notes      string
	OccurredAt time.Time
}

// LearningSignal is one row of the unified, append-only signal log.
type LearningSignal struct {
	ID          string
	OrgID       string
	RunID       string
	SourceID    string
	SignalType  string // "agent_run", "citation_check", "tool_telemetry", "review_action"
	Kind        string // status/outcome of the underlying event
	PayloadJSON string
	ObservedAt  time.Time
	CreatedAt   time.Time
}

// LearningMetric is an append-only time-series point. Latest is resolved by
// computed_at descending.
type LearningMetric struct {
	ID         string
	OrgID      string
	Name       string
	Value      float64
	Window     string
	ComputedAt time.Time
}

// LearningJob state machine:
//
//	pending -> processing -> {ready | failed}
//	ready -> needs_approval       (policy applier, bound to a version)
//	needs_approval -> completed   (version approved)
//	needs_approval -> rolled_back (evaluation gate)
type LearningJob struct {
	ID              string
	OrgID           string
	Type            string
	PayloadJSON     string
	Status          string
	Error           string
	PolicyVersionID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	JobPending       = "pending"
	JobProcessing    = "processing"
	JobReady         = "ready"
	JobNeedsApproval = "needs_approval"
	JobCompleted     = "completed"
	JobFailed        = "failed"
	JobRolledBack    = "rolled_back"
)

// Learning job types dispatched by the processor.
const (
	JobTypeIndexing       = "indexing_ticket"
	JobTypeQueryRewrite   = "query_rewrite_ticket"
	JobTypeGuardrailTune  = "guardrail_tune_ticket"
	JobTypeReviewFeedback = "review_feedback_ticket"
	JobTypeCanonicalizer  = "canonicalizer_update"
)

// PolicyVersion is a versioned snapshot of agent configuration changes.
// Version numbers are monotonic per org; rolled_back is terminal.
type PolicyVersion struct {
	ID          string
	OrgID       string
	Version     int
	Status      string // "draft", "needs_approval", "approved", "rolled_back"
	ChangesJSON string
	Notes       string
	ApprovedBy  string
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	PolicyDraft         = "draft"
	PolicyNeedsApproval = "needs_approval"
	PolicyApproved      = "approved"
	PolicyRolledBack    = "rolled_back"
)

// Synonym is one query-expansion term keyed by jurisdiction + term.
type Synonym struct {
	Jurisdiction string
	Term         string
	Origin       string // job id that produced the term
	UpdatedAt    time.Time
}

// CaseTreatment links a citing case to a cited case with a treatment verdict.
type CaseTreatment struct {
	ID             string
	OrgID          string
	CitingSourceID string
	CitedSourceID  string
	Treatment      string // "affirmed", "overturned", "distinguished"
	Weight         float64
	DecidedAt      *time.Time
	CreatedAt      time.Time
}

// Task is one advisory row in the agent task queue.
type Task struct {
	ID          string
	OrgID       string
	Type        string
	Priority    int
	PayloadJSON string
	Status      string // "scheduled"
	ScheduledAt time.Time
	CreatedAt   time.Time
}
