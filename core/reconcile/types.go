package reconcile

// Document is a derived search document with a stable primary key.
type Document interface {
	DocumentID() string
}

// Entry is the input of a sync plan for a single record.
type Entry struct {
	// ID is the record id.
	ID string

	// Doc is the freshly built document. Nil means the record must be removed from the index.
	Doc Document

	// Hash is the hash of Doc.
	Hash string

	// PreviousHash is the hash stored after the last confirmed write, empty if none.
	PreviousHash string
}

// Result represents the audit outcome for a single record id.
type Result struct {
	// ID is the record id.
	ID string `json:"id"`

	// UpstreamPresent indicates whether the record is active upstream.
	UpstreamPresent bool `json:"upstream_present"`

	// IndexPresent indicates whether the index holds a document for the record.
	IndexPresent bool `json:"index_present"`
}

// ActionType represents the type of index mutation.
type ActionType string

const (
	// ActionUpsert writes a document.
	ActionUpsert ActionType = "upsert"
	// ActionDelete removes a document.
	ActionDelete ActionType = "delete"
	// ActionEnqueue schedules a record for reprocessing.
	ActionEnqueue ActionType = "enqueue"
)

// Action represents a planned mutation.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// Key is the record id.
	Key string `json:"key"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	// Doc is the document to write. Only populated for ActionUpsert.
	Doc Document `json:"-"`
}

// Plan contains planned actions and aggregate counts.
type Plan struct {
	// Results contains per-record audit data. Empty for sync plans.
	Results []Result `json:"results,omitempty"`

	// Actions contains planned mutations.
	Actions []Action `json:"actions"`

	// Summary provides aggregate counts.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate statistics for a plan.
type PlanSummary struct {
	Total        int `json:"total"`
	Unchanged    int `json:"unchanged"`
	Upserts      int `json:"upserts"`
	Deletes      int `json:"deletes"`
	Enqueues     int `json:"enqueues"`
	MissingIndex int `json:"missing_index"`
	Orphans      int `json:"orphans"`
}

// Options controls how a plan is built and applied.
type Options struct {
	// DryRun prevents execution of any mutations if true.
	DryRun bool

	// Confirmed indicates the caller has confirmed the plan.
	// If false, mutations will not execute regardless of DryRun.
	Confirmed bool

	// DoPurge plans deletion of orphaned index documents during an audit.
	DoPurge bool

	// DoEnqueue plans reprocessing of records missing from the index during an audit.
	DoEnqueue bool

	// BatchSize is the number of documents per index request. Defaults to 100.
	BatchSize int

	// Workers bounds the number of concurrent index requests. Defaults to 4.
	Workers int

	// Flush blocks until the index has applied every write, if the indexer supports it.
	Flush bool
}
