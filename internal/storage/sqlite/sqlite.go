// Package sqlite persists the viewer's room membership and the last playback
// snapshot so a restarted agent can rejoin silently.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Options struct {
	BusyTimeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS membership (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	role               TEXT    NOT NULL,
	owner_email        TEXT    NOT NULL DEFAULT '',
	owner_display_name TEXT    NOT NULL DEFAULT '',
	updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS last_music (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	video_id    TEXT,
	is_playing  INTEGER NOT NULL DEFAULT 0,
	progress_ms INTEGER NOT NULL DEFAULT 0,
	owner_email TEXT    NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL
);
`

func Open(path string, options Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if options.BusyTimeout <= 0 {
		options.BusyTimeout = 5 * time.Second
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", options.BusyTimeout.Milliseconds()),
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, now: time.Now}
	if err := store.MigrateSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) MigrateSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveMembership(ctx context.Context, m membership.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO membership (id, role, owner_email, owner_display_name, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			owner_email = excluded.owner_email,
			owner_display_name = excluded.owner_display_name,
			updated_at = excluded.updated_at`,
		m.Role.String(), m.OwnerEmail, m.OwnerDisplayName, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (s *Store) LoadMembership(ctx context.Context) (membership.Membership, bool, error) {
	var (
		role string
		m    membership.Membership
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT role, owner_email, owner_display_name FROM membership WHERE id = 1`,
	).Scan(&role, &m.OwnerEmail, &m.OwnerDisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return membership.Membership{}, false, nil
	}
	if err != nil {
		return membership.Membership{}, false, fmt.Errorf("failed to load membership: %w", err)
	}

	m.Role = membership.ParseRole(role)
	return m, true, nil
}

func (s *Store) SaveMusic(ctx context.Context, state playback.State) error {
	state = state.Normalize()

	var videoID sql.NullString
	if !state.Idle() {
		videoID = sql.NullString{String: state.VideoID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_music (id, video_id, is_playing, progress_ms, owner_email, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_id = excluded.video_id,
			is_playing = excluded.is_playing,
			progress_ms = excluded.progress_ms,
			owner_email = excluded.owner_email,
			updated_at = excluded.updated_at`,
		videoID, state.IsPlaying, state.ProgressMs, state.OwnerEmail, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save music: %w", err)
	}
	return nil
}

func (s *Store) LoadMusic(ctx context.Context) (playback.State, bool, error) {
	var (
		videoID sql.NullString
		state   playback.State
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT video_id, is_playing, progress_ms, owner_email FROM last_music WHERE id = 1`,
	).Scan(&videoID, &state.IsPlaying, &state.ProgressMs, &state.OwnerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return playback.State{}, false, nil
	}
	if err != nil {
		return playback.State{}, false, fmt.Errorf("failed to load music: %w", err)
	}

	state.VideoID = videoID.String
	return state.Normalize(), true, nil
}

func (s *Store) ClearMusic(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM last_music`); err != nil {
		return fmt.Errorf("failed to clear music: %w", err)
	}
	return nil
}
