package domain

import "time"

// Action is a password-reset state transition recorded in the audit trail.
type Action string

const (
	ActionRequested Action = "requested"
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
	ActionExpired   Action = "expired"
)

// Entry is one append-only audit record. One entry is written per reset state
// transition attempt, including failed ones; entries are never mutated or
// deleted.
type Entry struct {
	ID        string
	UserID    string // empty when the target account does not exist
	UserType  string // staff or member
	Email     string
	Action    Action
	Details   string // free text; internal reasons live here, never in API responses
	CreatedAt time.Time
}
