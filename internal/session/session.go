// Package session implements the HistoryStore/ProfileStore collaborators:
// durable turn/message history and user-profile text, Postgres-backed
// through core/db with hand-written SQL against db.DB.Pool() directly.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"algokg.app/core/core/db"
	"algokg.app/core/internal/model"
)

var ErrNotFound = errors.New("session: not found")

// HistoryStore persists per-session dialogue turns and serves the recent
// rounds the Planner/Responder prompts prepend. The caller is
// responsible for filtering internal-prefixed assistant messages
// (internal/agent/dialogue.go does this); HistoryStore just returns raw
// rows in chronological order.
type HistoryStore interface {
	RecentRounds(ctx context.Context, sessionID int64, limit int) ([]model.Message, error)
	AppendMessage(ctx context.Context, sessionID int64, msg model.Message) error
}

// ProfileStore reads the free-text user profile fed to the Planner and
// Responder, and applies profile-extraction updates. Nothing on the turn
// path calls ApplyUpdates: stream.Handler runs no profile extraction.
type ProfileStore interface {
	Read(ctx context.Context, userID int64) (string, error)
	ApplyUpdates(ctx context.Context, userID int64, updates []model.UserProfileUpdate) error
}

// Store bundles both collaborators over a single pool.
type Store struct {
	db *db.DB
}

func New(database *db.DB) *Store {
	return &Store{db: database}
}

// EnsureSchema creates the turn_messages and user_profiles tables if they
// don't already exist. Called once at startup, the same idempotent-DDL
// idiom common/arangodb.Client.EnsureCollections uses for the graph side.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Pool().Exec(ctx, `
CREATE TABLE IF NOT EXISTS turn_messages (
	id                BIGSERIAL PRIMARY KEY,
	session_id        BIGINT NOT NULL,
	role              TEXT NOT NULL,
	content           TEXT NOT NULL,
	reasoning_content TEXT NOT NULL DEFAULT '',
	tool_call_id      TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_turn_messages_session_created
	ON turn_messages (session_id, created_at);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id    BIGINT PRIMARY KEY,
	profile    TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return fmt.Errorf("ensure session schema: %w", err)
	}
	return nil
}

// RecentRounds returns up to limit*8 messages (a "round" is one user
// message plus its answer), oldest first, so
// internal/agent/dialogue.formatDialogueHistory can pair them up the same
// way it pairs in-memory TurnState.History.
func (s *Store) RecentRounds(ctx context.Context, sessionID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 5
	}
	// Over-fetch rows (8 per round) since internal/assistant-prefixed
	// trajectory messages are interleaved with the user-facing ones and
	// get filtered out by the caller, not here.
	rows, err := s.db.Pool().Query(ctx, `
SELECT role, content, reasoning_content, tool_call_id, created_at FROM (
	SELECT role, content, reasoning_content, tool_call_id, created_at, id
	FROM turn_messages
	WHERE session_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
) recent
ORDER BY created_at ASC, id ASC
`, sessionID, limit*8)
	if err != nil {
		return nil, fmt.Errorf("query recent rounds: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var createdAt time.Time
		if err := rows.Scan(&role, &m.Content, &m.ReasoningContent, &m.ToolCallID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = model.MessageRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// AppendMessage persists one message of the ongoing turn log.
func (s *Store) AppendMessage(ctx context.Context, sessionID int64, msg model.Message) error {
	_, err := s.db.Pool().Exec(ctx, `
INSERT INTO turn_messages (session_id, role, content, reasoning_content, tool_call_id)
VALUES ($1, $2, $3, $4, $5)
`, sessionID, string(msg.Role), msg.Content, msg.ReasoningContent, msg.ToolCallID)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Read returns the free-text profile for a user, or "" if none exists yet
// (a brand-new user has an empty profile, not a missing one — the Planner
// and Responder both treat an empty string as "no known profile").
func (s *Store) Read(ctx context.Context, userID int64) (string, error) {
	var profile string
	err := s.db.Pool().QueryRow(ctx, `SELECT profile FROM user_profiles WHERE user_id = $1`, userID).Scan(&profile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read profile: %w", err)
	}
	return profile, nil
}

// ApplyUpdates folds profile-extraction updates into the stored free-text
// profile, one line per update, without a consolidation pass of its own;
// the Planner/Responder already treat the whole profile blob as untrusted
// free text.
func (s *Store) ApplyUpdates(ctx context.Context, userID int64, updates []model.UserProfileUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var existing string
		err := tx.QueryRow(ctx, `SELECT profile FROM user_profiles WHERE user_id = $1 FOR UPDATE`, userID).Scan(&existing)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock profile row: %w", err)
		}

		existing = appendProfileLines(existing, updates)

		_, err = tx.Exec(ctx, `
INSERT INTO user_profiles (user_id, profile, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at
`, userID, existing)
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		return nil
	})
}

// appendProfileLines folds profile-extraction updates into an existing
// free-text profile blob, one line per update, skipping updates with no
// target entity. Pulled out of ApplyUpdates so it can be unit tested
// without a database.
func appendProfileLines(existing string, updates []model.UserProfileUpdate) string {
	for _, u := range updates {
		if u.TargetEntity == "" {
			continue
		}
		line := fmt.Sprintf("%s: %s", u.RelationType, u.TargetEntity)
		if u.Evidence != "" {
			line += " (" + u.Evidence + ")"
		}
		if existing != "" {
			existing += "\n"
		}
		existing += line
	}
	return existing
}

// NoopProfileStore is a no-op ProfileStore: stream.Handler depends only
// on the interface, so callers that don't configure Postgres still get a
// valid, harmless implementation.
type NoopProfileStore struct{}

func (NoopProfileStore) Read(ctx context.Context, userID int64) (string, error) { return "", nil }
func (NoopProfileStore) ApplyUpdates(ctx context.Context, userID int64, updates []model.UserProfileUpdate) error {
	return nil
}
