// Package audit records privileged actions to the append-only audit trail.
package audit

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 3 * time.Second

// Event describes one audited attempt
type Event struct {
	Action     audit.Action
	Actor      licensing.Actor
	LicenseKey string
	Resource   string
	Changes    map[string]any
	// Err is the failure of the audited action, nil on success
	Err error
}

// Recorder appends audit entries. Write failures are logged and never
// returned, so auditing cannot fail the action being audited.
type Recorder struct {
	repo         audit.Repository
	clock        shared.Clock
	writeTimeout time.Duration
	logger       *zap.Logger
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the timestamp source
func WithRecorderClock(c shared.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = c }
}

// WithRecorderTimeout bounds each append
func WithRecorderTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo audit.Repository, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		repo:         repo,
		clock:        shared.SystemClock{},
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry for ev. The write runs on a context detached from
// the caller's cancellation so a timed-out request still leaves its trail.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	actorID := ev.Actor.ActorID
	if actorID == "" {
		actorID = ev.Actor.LicenseKey.String()
	}
	changes := ev.Changes
	if ev.Actor.ImpersonatedBy != "" {
		changes = withField(changes, "impersonated_by", ev.Actor.ImpersonatedBy)
	}

	entry := audit.NewEntry(ev.Action, actorID, ev.LicenseKey, ev.Resource, changes, r.clock.Now())
	entry.IPAddress = ev.Actor.IP
	entry.Failed(ev.Err)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if err := r.repo.Append(writeCtx, entry); err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("action", string(entry.Action)),
			zap.String("actor_id", entry.ActorID),
			zap.String("license_key", entry.LicenseKey),
			zap.String("resource_id", entry.ResourceID),
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err),
		)
	}
}

// List returns audit entries for administrative review
func (r *Recorder) List(ctx context.Context, filter audit.Filter) (shared.Paginated[audit.Entry], error) {
	entries, total, err := r.repo.List(ctx, filter)
	if err != nil {
		return shared.Paginated[audit.Entry]{}, err
	}
	return shared.NewPaginated(entries, total, filter.Page, filter.Limit()), nil
}

func withField(m map[string]any, k string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}
