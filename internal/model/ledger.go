package model

import "time"

// EntryReason classifies a credit ledger entry.
type EntryReason string

const (
	ReasonReservation EntryReason = "reservation"
	ReasonCommit      EntryReason = "commit"
	ReasonRollback    EntryReason = "rollback"
	ReasonPurchase    EntryReason = "purchase"
)

// Terminal reports whether the reason closes out a reservation.
func (r EntryReason) Terminal() bool {
	return r == ReasonCommit || r == ReasonRollback
}

// CreditLedgerEntry is one row of the append-only credit audit trail.
// CorrelationID links a reservation to its eventual commit or rollback:
// every reservation has exactly one terminal entry with the same id.
type CreditLedgerEntry struct {
	EntryID       string      `json:"entry_id"`
	UserID        string      `json:"user_id"`
	Delta         int         `json:"delta"`
	Reason        EntryReason `json:"reason"`
	BalanceAfter  int         `json:"balance_after"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// UserBalance is the cached available-credit view of a user's ledger. It
// must always equal the running sum of the user's ledger deltas.
type UserBalance struct {
	UserID    string    `json:"user_id"`
	Available int       `json:"available_credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageStats summarizes a user's committed spend, from the ledger.
type UsageStats struct {
	UserID           string              `json:"user_id"`
	Available        int                 `json:"available_credits"`
	CreditsSpent     int                 `json:"credits_spent"`
	ReportsGenerated int                 `json:"reports_generated"`
	RecentEntries    []CreditLedgerEntry `json:"recent_entries"`
}
