package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/repowatch/repowatch/core"
)

// EventStore persists canonical events in the repo_events table.
type EventStore struct {
	db           *bun.DB
	repo         repository.Repository[*eventRecord]
	defaultLimit int
	maxLimit     int
}

type EventStoreOption func(*EventStore)

// WithListLimits overrides the default and maximum read limits.
func WithListLimits(defaultLimit int, maxLimit int) EventStoreOption {
	return func(s *EventStore) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

func NewEventStore(db *bun.DB, options ...EventStoreOption) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	store := &EventStore{
		db:           db,
		repo:         repo,
		defaultLimit: core.DefaultEventsLimit,
		maxLimit:     core.MaxEventsLimit,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(store)
	}
	return store, nil
}

// Save inserts the event unless a record with the same request id already
// exists. The insert races through the unique index, so concurrent saves of
// the same request id resolve to exactly one created row and the first
// writer's fields are never overwritten.
func (s *EventStore) Save(ctx context.Context, event core.Event) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event store is not configured")
	}
	requestID := strings.TrimSpace(event.RequestID)
	if requestID == "" {
		return false, fmt.Errorf("sqlstore: event request id is required")
	}

	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	record := &eventRecord{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		Author:      event.Author,
		Action:      event.Action.String(),
		ToBranch:    event.ToBranch,
		DisplayedAt: event.Timestamp,
		CreatedAt:   createdAt,
	}
	if trimmed := strings.TrimSpace(event.FromBranch); trimmed != "" {
		record.FromBranch = &trimmed
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListRecent returns up to limit events ordered by ingestion time
// descending. Non-positive limits fall back to the configured default;
// anything above the cap is clamped.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]core.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	limit = s.clampLimit(limit)

	var records []*eventRecord
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]core.Event, 0, len(records))
	for _, record := range records {
		events = append(events, eventToDomain(record))
	}
	return events, nil
}

// Stats aggregates the stored event counts per action in one query.
func (s *EventStore) Stats(ctx context.Context) (core.EventStats, error) {
	if s == nil || s.db == nil {
		return core.EventStats{}, fmt.Errorf("sqlstore: event store is not configured")
	}

	var rows []struct {
		Action string `bun:"action"`
		Count  int64  `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*eventRecord)(nil)).
		ColumnExpr("?TableAlias.action AS action").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("?TableAlias.action").
		Scan(ctx, &rows)
	if err != nil {
		return core.EventStats{}, err
	}

	stats := core.EventStats{ByAction: map[core.Action]int64{}}
	for _, row := range rows {
		if action, ok := core.ParseAction(row.Action); ok {
			stats.ByAction[action] = row.Count
			stats.Total += row.Count
		}
	}
	return stats, nil
}

func (s *EventStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *EventStore) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit
}

// MaxLimit exposes the clamp ceiling for read-through caches layered above
// this store.
func (s *EventStore) MaxLimit() int {
	if s == nil {
		return core.MaxEventsLimit
	}
	return s.maxLimit
}

func eventToDomain(record *eventRecord) core.Event {
	if record == nil {
		return core.Event{}
	}
	event := core.Event{
		RequestID: record.RequestID,
		Author:    record.Author,
		ToBranch:  record.ToBranch,
		Timestamp: record.DisplayedAt,
		CreatedAt: record.CreatedAt,
	}
	if action, ok := core.ParseAction(record.Action); ok {
		event.Action = action
	}
	if record.FromBranch != nil {
		event.FromBranch = *record.FromBranch
	}
	return event
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.EventStore = (*EventStore)(nil)
