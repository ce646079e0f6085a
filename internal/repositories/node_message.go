package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/db"
)

type nodeMessage struct {
	conn *db.Sqlx
}

// NewNodeMessage returns a sqlx backed node message repository
func NewNodeMessage(conn *db.Sqlx) *nodeMessage {
	return &nodeMessage{conn: conn}
}

type nodeMessageRow struct {
	SenderRef    string         `db:"sender_ref"`
	CredentialID sql.NullString `db:"credential_id"`
	Subject      string         `db:"subject"`
	Status       string         `db:"status"`
	Body         types.JSONText `db:"body"`
	CreatedAt    time.Time      `db:"created_at"`
}

type nodeMessageHistoryRow struct {
	Status    string    `db:"status"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// Save inserts a message. Saving a known sender ref again keeps the first record.
func (r *nodeMessage) Save(ctx context.Context, m *domain.NodeMessage) error {
	body, err := json.Marshal(m.Body)
	if err != nil {
		return err
	}
	row := nodeMessageRow{
		SenderRef: m.SenderRef,
		Subject:   m.Subject,
		Status:    string(m.Status),
		Body:      body,
	}
	if m.CredentialID != nil {
		row.CredentialID = sql.NullString{String: *m.CredentialID, Valid: true}
	}
	_, err = r.conn.DB.NamedExecContext(ctx, `INSERT INTO node_messages (sender_ref, credential_id, subject, status, body)
		VALUES (:sender_ref, :credential_id, :subject, :status, :body) ON CONFLICT (sender_ref) DO NOTHING`, row)
	return err
}

// GetBySenderRef returns a message and its status history
func (r *nodeMessage) GetBySenderRef(ctx context.Context, senderRef string) (*domain.NodeMessage, error) {
	var row nodeMessageRow
	err := r.conn.DB.GetContext(ctx, &row, `SELECT sender_ref, credential_id, subject, status, body, created_at
		FROM node_messages WHERE sender_ref = $1`, senderRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	var history []nodeMessageHistoryRow
	if err := r.conn.DB.SelectContext(ctx, &history, `SELECT status, message, created_at
		FROM node_message_history WHERE sender_ref = $1 ORDER BY id`, senderRef); err != nil {
		return nil, err
	}

	m := &domain.NodeMessage{
		SenderRef: row.SenderRef,
		Subject:   row.Subject,
		Status:    domain.NodeMessageStatus(row.Status),
		CreatedAt: row.CreatedAt,
	}
	if row.CredentialID.Valid {
		m.CredentialID = &row.CredentialID.String
	}
	if err := row.Body.Unmarshal(&m.Body); err != nil {
		return nil, err
	}
	for _, h := range history {
		m.History = append(m.History, domain.NodeMessageHistory{
			Status:  domain.NodeMessageStatus(h.Status),
			Message: h.Message,
			At:      h.CreatedAt,
		})
	}
	return m, nil
}

// UpdateStatus sets the message status and appends the notification to its history
func (r *nodeMessage) UpdateStatus(ctx context.Context, senderRef string, entry domain.NodeMessageHistory) error {
	tx, err := r.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := updateMessageStatus(ctx, tx, senderRef, entry); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func updateMessageStatus(ctx context.Context, tx *sqlx.Tx, senderRef string, entry domain.NodeMessageHistory) error {
	res, err := tx.ExecContext(ctx, `UPDATE node_messages SET status = $2 WHERE sender_ref = $1`, senderRef, string(entry.Status))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrMessageNotFound
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO node_message_history (sender_ref, status, message, created_at)
		VALUES ($1, $2, $3, $4)`, senderRef, string(entry.Status), entry.Message, at)
	return err
}
