package adapters

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/go-libsql"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
)

//go:embed migrations/*.sql
var migrations embed.FS

// LibSQLSessionStore keeps session snapshots in a libsql database.
type LibSQLSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLSessionStore wraps db, applying pending migrations first.
func NewLibSQLSessionStore(ctx context.Context, db *sql.DB) (*LibSQLSessionStore, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &LibSQLSessionStore{db: db, now: time.Now}, nil
}

// Migrate brings the session schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectTurso, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// SaveSession inserts or replaces the snapshot for id.
func (s *LibSQLSessionStore) SaveSession(ctx context.Context, id string, snapshot []byte) error {
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, id, string(snapshot), now, now)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// LoadSession returns the snapshot for id.
func (s *LibSQLSessionStore) LoadSession(ctx context.Context, id string) ([]byte, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return []byte(snapshot), nil
}

// DeleteSession removes id. Deleting a missing session is not an error.
func (s *LibSQLSessionStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns every stored session, most recently updated first.
func (s *LibSQLSessionStore) ListSessions(ctx context.Context) ([]ports.SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at FROM sessions
		ORDER BY updated_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []ports.SessionInfo
	for rows.Next() {
		var (
			id               string
			created, updated int64
		)
		if err := rows.Scan(&id, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, ports.SessionInfo{
			ID:        id,
			CreatedAt: time.Unix(0, created),
			UpdatedAt: time.Unix(0, updated),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

var _ ports.SessionStore = (*LibSQLSessionStore)(nil)
