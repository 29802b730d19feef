package constants

// JobStatus is the canonical pipeline state, also stored in extract_job.status.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusIdle          JobStatus = "IDLE"
	JobStatusRouted        JobStatus = "ROUTED"
	JobStatusTextExtracted JobStatus = "TEXT_EXTRACTED"
	JobStatusSchemaReady   JobStatus = "SCHEMA_READY"
	JobStatusPromptBuilt   JobStatus = "PROMPT_BUILT"
	JobStatusAwaitingModel JobStatus = "AWAITING_MODEL"
	JobStatusReconciled    JobStatus = "RECONCILED"
	JobStatusDone          JobStatus = "DONE"
	JobStatusFailed        JobStatus = "FAILED" // terminal failure
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Source of an extraction request.
const (
	SourceText = "TEXT"
	SourceFile = "FILE"
)

// Schema construction modes.
const (
	ModeHeadings = "headings"
	ModeJSON     = "json"
)
