package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/MrEthical07/tenantauth"
)

const loginFailureEvent = "login_failure"

// AuditWriter appends audit events to audit_log. Login failures are also
// copied to failed_login_attempts. Wrap it with tenantauth.TolerantSink.
type AuditWriter struct {
	db *sql.DB
}

var _ tenantauth.AuditErrorSink = (*AuditWriter)(nil)

func (s *Store) AuditWriter() *AuditWriter {
	return &AuditWriter{db: s.db}
}

func (w *AuditWriter) Write(ctx context.Context, e tenantauth.AuditEvent) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return err
		}
	}

	insert := func(db interface {
		ExecContext(context.Context, string, ...any) (sql.Result, error)
	}) error {
		_, err := db.ExecContext(ctx, `
			insert into audit_log (id, occurred_at, event_type, user_id, company_id, session_id, ip, user_agent, success, error_code, metadata)
			values ($1, $2, $3, nullif($4, ''), nullif($5, ''), nullif($6, ''), nullif($7, ''), nullif($8, ''), $9, nullif($10, ''), $11)
		`, e.ID, e.Timestamp, e.EventType, e.UserID, e.CompanyID, e.SessionID, e.IP, e.UserAgent, e.Success, e.Error, meta)
		return err
	}

	email := e.Metadata["email"]
	if e.EventType != loginFailureEvent || email == "" {
		return insert(w.db)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insert(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into failed_login_attempts (email, ip, reason, attempted_at)
		values ($1, nullif($2, ''), $3, $4)
	`, email, e.IP, e.Metadata["reason"], e.Timestamp); err != nil {
		return err
	}
	return tx.Commit()
}
