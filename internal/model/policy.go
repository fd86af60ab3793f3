package model

import (
	"time"

	"github.com/google/uuid"
)

// Policy is the local mirror of an issued parametric policy. Funds are
// held by the external settlement chain; this row tracks identity and
// the payout flag, which flips false->true exactly once via the claim
// settlement workflow.
type Policy struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PolicyAddress  string    `db:"policy_address" json:"policy_address"`
	Policyholder   string    `db:"policyholder" json:"policyholder"`
	CoverageAmount int64     `db:"coverage_amount" json:"coverage_amount"`
	PremiumAmount  int64     `db:"premium_amount" json:"premium_amount"`
	PayoutTriggered bool     `db:"payout_triggered" json:"payout_triggered"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
