package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/licensehub/backend/internal/domain/shared"
)

// Action names a privileged operation recorded in the trail
type Action string

const (
	ActionGenerate    Action = "generate"
	ActionRevoke      Action = "revoke"
	ActionRegenerate  Action = "regenerate"
	ActionReset       Action = "reset"
	ActionValidate    Action = "validate"
	ActionImpersonate Action = "impersonate"
	ActionProvision   Action = "provision"
	ActionStatus      Action = "status_change"
	ActionProducts    Action = "products_change"
	ActionMigrate     Action = "migrate"
)

// Outcome records whether the audited attempt succeeded
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is an immutable audit record
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	Action     Action         `json:"action"`
	ActorID    string         `json:"actor_id"`
	LicenseKey string         `json:"license_key"`
	ResourceID string         `json:"resource_id"`
	Outcome    Outcome        `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewEntry builds an entry for a successful action
func NewEntry(action Action, actorID, licenseKey, resourceID string, changes map[string]any, now time.Time) *Entry {
	return &Entry{
		ID:         uuid.New(),
		Action:     action,
		ActorID:    actorID,
		LicenseKey: licenseKey,
		ResourceID: resourceID,
		Outcome:    OutcomeSuccess,
		Changes:    changes,
		CreatedAt:  now,
	}
}

// Failed marks the entry as a failed attempt and notes the cause in the payload
func (e *Entry) Failed(err error) *Entry {
	if err == nil {
		return e
	}
	e.Outcome = OutcomeFailure
	e.Error = err.Error()
	return e
}

// Filter narrows audit queries
type Filter struct {
	shared.Filter
	LicenseKey string
	ActorID    string
	Action     Action
	From       *time.Time
	To         *time.Time
}

// Repository is append-only: there is deliberately no update or delete.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, int64, error)
}
