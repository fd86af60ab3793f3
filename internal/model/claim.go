package model

import (
	"time"

	"github.com/google/uuid"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusApproved ClaimStatus = "approved"
	ClaimStatusRejected ClaimStatus = "rejected"
)

// Claim records one settlement attempt against a policy. The claims
// table carries a partial unique index on policy_id over non-rejected
// rows, so at most one claim per policy can ever be paid.
type Claim struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	PolicyID     uuid.UUID   `db:"policy_id" json:"policy_id"`
	Policyholder string      `db:"policyholder" json:"policyholder"`
	Amount       int64       `db:"amount" json:"amount"`
	Status       ClaimStatus `db:"status" json:"status"`
	TriggeredAt  time.Time   `db:"triggered_at" json:"triggered_at"`
	ProcessedAt  *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
}

// Payout ties an approved claim to the settlement chain transaction
// that paid it. Exactly one row per approved claim, append-only.
type Payout struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ClaimID       uuid.UUID `db:"claim_id" json:"claim_id"`
	Amount        int64     `db:"amount" json:"amount"`
	SettlementRef string    `db:"settlement_ref" json:"settlement_ref"`
	ProcessedAt   time.Time `db:"processed_at" json:"processed_at"`
}

// ClaimsLedger is the singleton capital pool row. The invariant
// available_balance == total_capacity - total_processed (and >= 0)
// is enforced by the debit/credit SQL, never recomputed in memory.
type ClaimsLedger struct {
	ID               int       `db:"id" json:"-"`
	TotalCapacity    int64     `db:"total_capacity" json:"total_capacity"`
	AvailableBalance int64     `db:"available_balance" json:"available_balance"`
	TotalProcessed   int64     `db:"total_processed" json:"total_processed"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
