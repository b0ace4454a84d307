package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sealor/ai-extractor/pkg/persistence"
)

const recordColumns = `id, name, description, event_json, original_event, failure_reason, filename, replay_history, version, created_at`

// AddEvent inserts a record and returns its generated ID.
func (s *PGStore) AddEvent(ctx context.Context, rec *persistence.Record) (int64, error) {
	var eventJSON any
	if rec.EventJSON != nil {
		eventJSON = rec.EventJSON
	}
	history := rec.ReplayHistory
	if history == nil {
		history = []persistence.Message{}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO parsed_events (name, description, event_json, original_event, failure_reason, filename, replay_history, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		rec.Name, rec.Description, eventJSON, rec.OriginalEvent, rec.FailureReason, rec.Filename, history, rec.Version,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("events: insert event: %w", err)
	}
	return rec.ID, nil
}

// GetEvent fetches a record by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetEvent(ctx context.Context, id int64) (*persistence.Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM parsed_events WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("events: get event: %w", err)
	}
	return rec, nil
}

// ListEvents returns matching records ordered by ID.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListEvents(ctx context.Context, filter persistence.Filter) ([]persistence.Record, error) {
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM parsed_events
		 WHERE ($1 = '' OR version = $1) AND ($2 = '' OR filename = $2)
		 ORDER BY id LIMIT $3 OFFSET $4`,
		filter.Version, filter.Filename, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("events: list events: %w", err)
	}
	defer rows.Close()

	records := []persistence.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("events: scan event: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: rows events: %w", err)
	}
	return records, nil
}

// CountEvents counts the records of a run. Empty arguments match everything.
func (s *PGStore) CountEvents(ctx context.Context, version, filename string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM parsed_events WHERE ($1 = '' OR version = $1) AND ($2 = '' OR filename = $2)`,
		version, filename,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("events: count events: %w", err)
	}
	return n, nil
}

func scanRecord(row pgx.Row) (*persistence.Record, error) {
	var rec persistence.Record
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.EventJSON, &rec.OriginalEvent,
		&rec.FailureReason, &rec.Filename, &rec.ReplayHistory, &rec.Version, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
