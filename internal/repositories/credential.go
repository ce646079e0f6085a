package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/db"
)

const duplicateViolationErrorCode = "23505"

// ErrDuplicateBlobKey a credential already owns the blob key
var ErrDuplicateBlobKey = errors.New("blob key already attached to a credential")

type credential struct {
	conn *db.Storage
}

// NewCredential returns a pgx backed credential repository
func NewCredential(conn *db.Storage) *credential {
	return &credential{conn: conn}
}

const credentialColumns = `id, short_id, subject_id, coalesce(sender_ref, ''), schema_version, document, status, status_reason,
       verification_status, verification_reason, verification_attempts, coalesce(blob_key, ''), coalesce(proof_root, ''),
       coalesce(tx_hash, ''), coalesce(ipfs_cid, ''), encrypted, created_at, updated_at`

// Save inserts the credential record
func (c *credential) Save(ctx context.Context, cred *domain.Credential) error {
	sql := `INSERT INTO credentials (id, short_id, subject_id, sender_ref, schema_version, document, status, verification_status)
			VALUES($1, $2, $3, nullif($4, ''), $5, $6, $7, $8)`
	_, err := c.conn.Pgx.Exec(ctx, sql, cred.ID, cred.ShortID, cred.SubjectID, cred.SenderRef, cred.SchemaVersion.String(),
		cred.Document, cred.Status, cred.VerificationStatus)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// GetByID returns the credential with its history
func (c *credential) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	return c.getOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
}

// GetByBlobKey returns the credential enqueued under blobKey
func (c *credential) GetByBlobKey(ctx context.Context, blobKey string) (*domain.Credential, error) {
	return c.getOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE blob_key = $1`, blobKey)
}

func (c *credential) getOne(ctx context.Context, sql string, arg any) (*domain.Credential, error) {
	cred, err := scanCredential(c.conn.Pgx.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if cred.History, err = c.history(ctx, cred.ID); err != nil {
		return nil, err
	}
	return cred, nil
}

// List returns a page of credentials ordered by filter.OrderBy, newest first by default
func (c *credential) List(ctx context.Context, filter *ports.CredentialFilter) ([]*domain.Credential, uint, error) {
	var where []string
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Verification != nil {
		args = append(args, string(*filter.Verification))
		where = append(where, fmt.Sprintf("verification_status = $%d", len(args)))
	}

	sql := `SELECT ` + credentialColumns + `, count(*) OVER() FROM credentials`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	orderBy := filter.OrderBy.String()
	if orderBy == "" {
		orderBy = string(ports.CredentialsCreatedAt) + " DESC"
	}
	sql += " ORDER BY " + orderBy + ", id"
	args = append(args, filter.Pagination.GetLimit(), filter.Pagination.GetOffset())
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := c.conn.Pgx.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var total uint
	creds := make([]*domain.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		creds = append(creds, cred)
	}
	return creds, total, rows.Err()
}

func scanCredential(row pgx.Row, extra ...any) (*domain.Credential, error) {
	cred := domain.Credential{}
	var encrypted pgtype.JSONB
	dest := []any{
		&cred.ID,
		&cred.ShortID,
		&cred.SubjectID,
		&cred.SenderRef,
		&cred.SchemaVersion,
		&cred.Document,
		&cred.Status,
		&cred.StatusReason,
		&cred.VerificationStatus,
		&cred.VerificationReason,
		&cred.VerificationAttempts,
		&cred.BlobKey,
		&cred.ProofRoot,
		&cred.TxHash,
		&cred.IPFSCID,
		&encrypted,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if encrypted.Status == pgtype.Present {
		cred.Encrypted = &domain.EncryptedDocument{}
		if err := encrypted.AssignTo(cred.Encrypted); err != nil {
			return nil, fmt.Errorf("decoding encrypted document: %w", err)
		}
	}
	return &cred, nil
}

func (c *credential) history(ctx context.Context, id uuid.UUID) ([]domain.HistoryEntry, error) {
	rows, err := c.conn.Pgx.Query(ctx, `SELECT step, message, error, created_at FROM credential_history
		WHERE credential_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.Step, &h.Message, &h.Error, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (c *credential) update(ctx context.Context, sql string, args ...any) error {
	tag, err := c.conn.Pgx.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateViolationErrorCode {
			return ErrDuplicateBlobKey
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// UpdateStatus sets the anchoring status
func (c *credential) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CredentialStatus, reason string) error {
	return c.update(ctx, `UPDATE credentials SET status = $2, status_reason = $3, updated_at = now() WHERE id = $1`,
		id, status, reason)
}

// AttachBlob records the pending blob key and proof root
func (c *credential) AttachBlob(ctx context.Context, id uuid.UUID, blobKey, proofRoot string) error {
	return c.update(ctx, `UPDATE credentials SET blob_key = $2, proof_root = $3, updated_at = now() WHERE id = $1`,
		id, blobKey, proofRoot)
}

// MarkAnchored records the receipt of the anchoring transaction
func (c *credential) MarkAnchored(ctx context.Context, id uuid.UUID, receipt domain.AnchorReceipt, proofRoot, cid string) error {
	return c.update(ctx, `UPDATE credentials SET status = $2, status_reason = '', tx_hash = nullif($3, ''),
		proof_root = $4, ipfs_cid = nullif($5, ''), updated_at = now() WHERE id = $1`,
		id, domain.CredentialAnchored, receipt.TxHash, proofRoot, cid)
}

// UpdateVerification writes the verification status. Terminal statuses are not moved back to pending.
func (c *credential) UpdateVerification(ctx context.Context, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int) error {
	return c.setVerification(ctx, id, status, reason, attempts, false)
}

// RestartVerification resets the verification to pending
func (c *credential) RestartVerification(ctx context.Context, id uuid.UUID) error {
	return c.setVerification(ctx, id, domain.VerificationPending, "", 0, true)
}

func (c *credential) setVerification(ctx context.Context, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int, reverify bool) error {
	return c.conn.Pgx.BeginFunc(ctx, func(tx pgx.Tx) error {
		return writeVerification(ctx, tx, id, status, reason, attempts, reverify)
	})
}

// writeVerification locks the row, q must be a transaction
func writeVerification(ctx context.Context, q db.Querier, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int, reverify bool) error {
	var current domain.VerificationStatus
	err := q.QueryRow(ctx, `SELECT verification_status FROM credentials WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCredentialNotFound
	}
	if err != nil {
		return err
	}
	if !current.CanMoveTo(status, reverify) {
		return nil
	}
	_, err = q.Exec(ctx, `UPDATE credentials SET verification_status = $2, verification_reason = $3,
		verification_attempts = $4, updated_at = now() WHERE id = $1`, id, status, reason, attempts)
	return err
}

// SaveEncrypted stores the selective disclosure form of the credential
func (c *credential) SaveEncrypted(ctx context.Context, id uuid.UUID, doc *domain.EncryptedDocument) error {
	var encrypted pgtype.JSONB
	if err := encrypted.Set(doc); err != nil {
		return err
	}
	return c.update(ctx, `UPDATE credentials SET encrypted = $2, updated_at = now() WHERE id = $1`, id, encrypted)
}

// AppendHistory adds an audit entry
func (c *credential) AppendHistory(ctx context.Context, id uuid.UUID, entry domain.HistoryEntry) error {
	return insertHistory(ctx, c.conn.Pgx, id, entry)
}

func insertHistory(ctx context.Context, q db.Querier, id uuid.UUID, entry domain.HistoryEntry) error {
	_, err := q.Exec(ctx, `INSERT INTO credential_history (credential_id, step, message, error, created_at)
		VALUES($1, $2, $3, $4, $5)`, id, entry.Step, entry.Message, entry.Error, entry.At)
	return err
}
