package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS parsed_events (
    id             BIGSERIAL PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    event_json     JSONB,
    original_event TEXT NOT NULL,
    failure_reason TEXT NOT NULL DEFAULT '',
    filename       TEXT NOT NULL,
    replay_history JSONB NOT NULL DEFAULT '[]',
    version        TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_parsed_events_version_filename ON parsed_events(version, filename);
`

// CreateSchema creates the parsed_events table if it doesn't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS parsed_events;`)
	return err
}
