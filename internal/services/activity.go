// Package services contains the portal's persistence-backed services.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aduan-desa/portal-server/internal/models"
	"github.com/aduan-desa/portal-server/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DB is the subset of *pgxpool.Pool used by SessionEventLog.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SessionEventLog stores session lifecycle events for later review of
// logins, logouts and identity mismatches.
type SessionEventLog struct {
	db     DB
	logger *zap.SugaredLogger
}

// NewSessionEventLog creates a new session event log
func NewSessionEventLog(db DB, logger *zap.SugaredLogger) *SessionEventLog {
	return &SessionEventLog{db: db, logger: logger}
}

// Record implements session.EventRecorder. Insert failures are logged.
func (s *SessionEventLog) Record(ctx context.Context, e session.Event) {
	if err := s.Log(ctx, e); err != nil {
		s.logger.Errorw("Failed to record session event", "type", e.Type, "error", err)
	}
}

// Log inserts one event
func (s *SessionEventLog) Log(ctx context.Context, e session.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	var subject *int64
	if e.SubjectID != 0 {
		subject = &e.SubjectID
	}

	query := `
		INSERT INTO session_events (client_hash, variant, event_type, subject_id, detail)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.Exec(ctx, query, e.ClientHash, e.Variant, e.Type, subject, e.Detail); err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}

	s.logger.Infow("Session event logged",
		"variant", e.Variant,
		"type", e.Type,
		"subject_id", e.SubjectID,
	)
	return nil
}

// FetchByClient returns the events of one browser, newest first
func (s *SessionEventLog) FetchByClient(ctx context.Context, clientHash string, limit int) ([]models.SessionEventRow, error) {
	query := `
		SELECT id, client_hash, variant, event_type, subject_id, COALESCE(detail, ''), created_at
		FROM session_events
		WHERE client_hash = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, clientHash, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// FetchRecent returns recent events across all browsers
func (s *SessionEventLog) FetchRecent(ctx context.Context, eventType string, limit int) ([]models.SessionEventRow, error) {
	query := `
		SELECT id, client_hash, variant, event_type, subject_id, COALESCE(detail, ''), created_at
		FROM session_events
		WHERE $1 = '' OR event_type = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, eventType, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]models.SessionEventRow, error) {
	defer rows.Close()

	var events []models.SessionEventRow
	for rows.Next() {
		var e models.SessionEventRow
		if err := rows.Scan(&e.ID, &e.ClientHash, &e.Variant, &e.EventType,
			&e.SubjectID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
