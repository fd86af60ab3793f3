package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/riverguard/parametric-api/internal/model"
)

// Sentinel errors surfaced by repositories. Services translate these
// into AppErrors at the API boundary.
var (
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientBalance is returned by a debit whose conditional
	// update matched no row: the balance check and the write are one
	// statement, so callers never race past the check.
	ErrInsufficientBalance = errors.New("insufficient ledger balance")
	// ErrLedgerMissing is returned when the singleton ledger row has
	// not been created.
	ErrLedgerMissing = errors.New("claims ledger not initialized")
	// ErrDuplicateActiveClaim is returned when the one-non-rejected-
	// claim-per-policy index rejects an insert.
	ErrDuplicateActiveClaim = errors.New("active claim already exists for policy")
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type PolicyRepository interface {
	Create(ctx context.Context, policy *model.Policy) error
	Get(ctx context.Context, id uuid.UUID) (*model.Policy, error)
	List(ctx context.Context, limit, offset int) ([]*model.Policy, error)
	// SetPayoutTriggeredTx flips the payout flag inside the settlement
	// transaction.
	SetPayoutTriggeredTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
}

type ReadingRepository interface {
	Create(ctx context.Context, reading *model.Reading) error
	MarkPushed(ctx context.Context, id uuid.UUID) error
	Latest(ctx context.Context, stationID string) (*model.Reading, error)
	List(ctx context.Context, stationID string, limit int) ([]*model.Reading, error)
}

type ThresholdRepository interface {
	Get(ctx context.Context, stationID string) (*model.Threshold, error)
	Upsert(ctx context.Context, threshold *model.Threshold) error
}

type LedgerRepository interface {
	// Initialize creates the singleton row if absent; no-op otherwise.
	Initialize(ctx context.Context, capacity int64) error
	Get(ctx context.Context) (*model.ClaimsLedger, error)
	Credit(ctx context.Context, amount int64) error
	Debit(ctx context.Context, amount int64) error
	// DebitTx performs the conditional debit inside the settlement
	// transaction.
	DebitTx(ctx context.Context, tx *sqlx.Tx, amount int64) error
}

type ClaimRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	List(ctx context.Context, limit, offset int) ([]*model.Claim, error)
	// GetActiveByPolicy returns the non-rejected claim for a policy,
	// or ErrNotFound.
	GetActiveByPolicy(ctx context.Context, policyID uuid.UUID) (*model.Claim, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, claim *model.Claim) error
	CreatePayoutTx(ctx context.Context, tx *sqlx.Tx, payout *model.Payout) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus, processedAt time.Time) error
}

type NotificationRepository interface {
	CreateLog(ctx context.Context, log *model.NotificationLog) error
	UpdateLogStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus, failureReason *string, retryCount int, deliveredAt *time.Time) error
	ListLogs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.NotificationLog, error)

	GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error)
	UpsertPreferences(ctx context.Context, prefs *model.NotificationPreferences) error

	GetTemplates(ctx context.Context, eventType string) ([]*model.NotificationTemplate, error)

	CreateInApp(ctx context.Context, n *model.InAppNotification) error
	ListInApp(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*model.InAppNotification, error)
	MarkInAppRead(ctx context.Context, id uuid.UUID) error

	CreateSubscription(ctx context.Context, sub *model.WebhookSubscription) error
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*model.WebhookSubscription, error)
	ActiveSubscriptions(ctx context.Context, userID uuid.UUID, eventType string) ([]*model.WebhookSubscription, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
}
