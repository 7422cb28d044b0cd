// Package history keeps a PostgreSQL log of upload outcomes so a session's
// past results survive the in-memory manager.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Action is what happened to a file.
type Action string

const (
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
	ActionCancelled Action = "cancelled"
	ActionRetried   Action = "retried"
	ActionRemoved   Action = "removed"
	ActionDeleted   Action = "deleted"
)

// Entry is one row of upload_history.
type Entry struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	FileID    string      `json:"fileId"`
	FileName  string      `json:"fileName"`
	FileSize  int64       `json:"fileSize"`
	MimeType  string      `json:"mimeType,omitempty"`
	Action    Action      `json:"action"`
	Status    core.Status `json:"status"`
	URL       string      `json:"url,omitempty"`
	Message   string      `json:"message,omitempty"`
	IPAddress string      `json:"ipAddress,omitempty"`
	UserAgent string      `json:"userAgent,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// FromRecord fills the file fields of an entry from a record snapshot.
func FromRecord(sessionID string, action Action, rec core.Record) Entry {
	e := Entry{
		SessionID: sessionID,
		FileID:    rec.ID,
		FileName:  rec.File.Name,
		FileSize:  rec.File.Size,
		MimeType:  rec.File.MimeType,
		Action:    action,
		Status:    rec.Status,
		Message:   rec.LastError(),
	}
	if rec.Result != nil {
		e.URL = rec.Result.URL
	}
	return e
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes upload_history.
type Store struct {
	db DBTX
}

// New returns a store on db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS upload_history (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL,
	file_id     TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	file_size   BIGINT NOT NULL DEFAULT 0,
	mime_type   TEXT,
	action      TEXT NOT NULL,
	status      TEXT NOT NULL,
	url         TEXT,
	message     TEXT,
	ip_address  TEXT,
	user_agent  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS upload_history_session_idx ON upload_history (session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS upload_history_created_idx ON upload_history (created_at);
`

// EnsureSchema creates the table and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create upload_history: %w", err)
	}
	return nil
}

const insertSQL = `
INSERT INTO upload_history
	(id, session_id, file_id, file_name, file_size, mime_type, action, status, url, message, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Log appends an entry. ID and CreatedAt are filled when empty.
func (s *Store) Log(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, insertSQL,
		toPgUUID(e.ID),
		e.SessionID,
		e.FileID,
		e.FileName,
		e.FileSize,
		toPgText(e.MimeType),
		string(e.Action),
		string(e.Status),
		toPgText(e.URL),
		toPgText(e.Message),
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert upload_history: %w", err)
	}
	return e, nil
}

// Filter narrows List.
type Filter struct {
	SessionID string
	Action    Action
	Since     time.Time
	Limit     int
	Offset    int
}

const listSQL = `
SELECT id, session_id, file_id, file_name, file_size, mime_type, action, status, url, message, ip_address, user_agent, created_at
FROM upload_history
WHERE ($1 = '' OR session_id = $1)
  AND ($2 = '' OR action = $2)
  AND created_at >= $3
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

// List returns entries newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	since := f.Since
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}

	rows, err := s.db.Query(ctx, listSQL,
		f.SessionID, string(f.Action), pgtype.Timestamptz{Time: since, Valid: true}, int32(f.Limit), int32(f.Offset))
	if err != nil {
		return nil, fmt.Errorf("query upload_history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan upload_history: %w", err)
	}
	return entries, nil
}

// DeleteFile removes every entry of a file.
func (s *Store) DeleteFile(ctx context.Context, fileID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM upload_history WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete upload_history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Purge removes entries older than the cutoff.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM upload_history WHERE created_at < $1`,
		pgtype.Timestamptz{Time: olderThan, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("purge upload_history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		id        pgtype.UUID
		e         Entry
		action    string
		status    string
		mimeType  pgtype.Text
		url       pgtype.Text
		message   pgtype.Text
		ipAddress pgtype.Text
		userAgent pgtype.Text
		createdAt pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &e.SessionID, &e.FileID, &e.FileName, &e.FileSize, &mimeType,
		&action, &status, &url, &message, &ipAddress, &userAgent, &createdAt,
	)
	if err != nil {
		return Entry{}, err
	}

	e.ID = pgUUIDToString(id)
	e.Action = Action(action)
	e.Status = core.Status(status)
	e.MimeType = mimeType.String
	e.URL = url.String
	e.Message = message.String
	e.IPAddress = ipAddress.String
	e.UserAgent = userAgent.String
	e.CreatedAt = createdAt.Time
	return e, nil
}
