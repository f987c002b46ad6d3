package model

import "time"

// Citation is a numbered, user-facing reference to an evidence item's
// source. Indices are 1-based and stable only within their report.
type Citation struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	SourceLabel string `json:"source_label"`
	Location    string `json:"location"`
}

// ReportStatus tracks a research request through the orchestrator state
// machine.
type ReportStatus string

const (
	ReportStatusReceived         ReportStatus = "received"
	ReportStatusReserved         ReportStatus = "reserved"
	ReportStatusEvidenceGathered ReportStatus = "evidence_gathered"
	ReportStatusSynthesized      ReportStatus = "synthesized"
	ReportStatusCommitted        ReportStatus = "committed"
	ReportStatusFailed           ReportStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusCommitted || s == ReportStatusFailed
}

// ResearchReport is the durable outcome of a successful research request.
// Immutable after creation; per-user history is append-only.
type ResearchReport struct {
	ID          string       `json:"report_id"`
	UserID      string       `json:"user_id"`
	Question    string       `json:"question"`
	Answer      string       `json:"answer"`
	Citations   []Citation   `json:"citations"`
	SourcesUsed []SourceKind `json:"sources_used"`
	Status      ReportStatus `json:"status"`
	CreditCost  int          `json:"credit_cost"`
	CreatedAt   time.Time    `json:"created_at"`
}
