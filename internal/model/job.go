package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusDead       JobStatus = "dead"
)

// Job types carried by the dispatch queue.
const (
	JobTypeTrigger      = "trigger"
	JobTypeNotification = "notification"
)

// Job is one durable queue entry. RunAt implements backoff scheduling:
// a retried job goes back to pending with RunAt in the future and is
// invisible to workers until then.
type Job struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	JobType    string          `db:"job_type" json:"job_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Status     JobStatus       `db:"status" json:"status"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  *string         `db:"last_error" json:"last_error,omitempty"`
	RunAt      time.Time       `db:"run_at" json:"run_at"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
