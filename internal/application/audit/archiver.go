package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	archivePageSize    = 100
	archiveContentType = "application/x-ndjson"
)

// ObjectStore receives archive files
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// ArchiveResult describes one written archive
type ArchiveResult struct {
	Day     time.Time `json:"day"`
	Key     string    `json:"key"`
	Entries int       `json:"entries"`
	Bytes   int       `json:"bytes"`
}

// Archiver copies one UTC day of the audit trail to object storage as JSON
// Lines, oldest entry first. Re-running a day overwrites its file.
type Archiver struct {
	repo   audit.Repository
	store  ObjectStore
	prefix string
	clock  shared.Clock
	logger *zap.Logger
}

// NewArchiver creates an archiver writing under prefix
func NewArchiver(repo audit.Repository, store ObjectStore, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{repo: repo, store: store, prefix: prefix, clock: shared.SystemClock{}, logger: logger}
}

// WithClock overrides the timestamp source
func (a *Archiver) WithClock(c shared.Clock) *Archiver {
	a.clock = c
	return a
}

// ArchiveDay writes the entries created on day's UTC calendar date. Only
// days that have fully elapsed can be archived.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (ArchiveResult, error) {
	from := startOfDay(day)
	to := from.Add(24*time.Hour - time.Nanosecond)
	if !a.clock.Now().After(to) {
		return ArchiveResult{}, shared.ErrInvalidInput.WithMessage("Only past days can be archived")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for page := 1; ; page++ {
		filter := audit.Filter{
			Filter: shared.Filter{Page: page, PageSize: archivePageSize, OrderBy: "created_at", OrderDir: "asc"},
			From:   &from,
			To:     &to,
		}
		entries, total, err := a.repo.List(ctx, filter)
		if err != nil {
			return ArchiveResult{}, err
		}
		for i := range entries {
			if err := enc.Encode(&entries[i]); err != nil {
				return ArchiveResult{}, fmt.Errorf("encode audit entry %s: %w", entries[i].ID, err)
			}
		}
		count += len(entries)
		if len(entries) < archivePageSize || int64(count) >= total {
			break
		}
	}

	key := a.keyFor(from)
	if err := a.store.Upload(ctx, key, buf.Bytes(), archiveContentType); err != nil {
		return ArchiveResult{}, shared.ErrStoreUnavailable.WithCause(err)
	}

	a.logger.Info("Audit day archived",
		zap.String("day", from.Format(time.DateOnly)),
		zap.String("key", key),
		zap.Int("entries", count))
	return ArchiveResult{Day: from, Key: key, Entries: count, Bytes: buf.Len()}, nil
}

// Archive is an administrative run of ArchiveDay
func (a *Archiver) Archive(ctx context.Context, actor licensing.Actor, day time.Time) (ArchiveResult, error) {
	if !actor.IsMaster {
		return ArchiveResult{}, shared.ErrForbidden.WithMessage("Only the master license can archive the audit trail")
	}
	return a.ArchiveDay(ctx, day)
}

func (a *Archiver) keyFor(day time.Time) string {
	return path.Join(a.prefix, day.Format("2006"), day.Format("01"), day.Format("02")+".jsonl")
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
