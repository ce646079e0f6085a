package repositories

import (
	"context"

	"github.com/jackc/pgtype"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/db"
)

type incomingDocument struct {
	conn *db.Storage
}

// NewIncomingDocument returns the repository of documents received from counterpart nodes
func NewIncomingDocument(conn *db.Storage) *incomingDocument {
	return &incomingDocument{conn: conn}
}

type attachmentRecord struct {
	domain.Attachment
	Data []byte `json:"data"`
}

// Save inserts a parsed incoming document
func (r *incomingDocument) Save(ctx context.Context, doc *domain.IncomingDocument) error {
	records := make([]attachmentRecord, 0, len(doc.Attachments))
	for _, a := range doc.Attachments {
		records = append(records, attachmentRecord{Attachment: a, Data: a.Data})
	}
	var attachments pgtype.JSONB
	if err := attachments.Set(records); err != nil {
		return err
	}
	sql := `INSERT INTO incoming_documents (id, content_hash, sender_ref, sender, subject, shape, schema_version,
			document_number, issue_date, exporter_name, importer_name, origin, destination, trade_agreement, attachments, raw)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.conn.Pgx.Exec(ctx, sql, doc.ID, doc.ContentHash, doc.SenderRef, doc.Sender, doc.Subject, doc.Shape,
		doc.SchemaVersion.String(), doc.DocumentNumber, doc.IssueDate, doc.ExporterName, doc.ImporterName, doc.Origin,
		doc.Destination, doc.TradeAgreement, attachments, doc.Raw)
	return err
}

// CountByContentHash returns how many times a document was received
func (r *incomingDocument) CountByContentHash(ctx context.Context, contentHash string) (int, error) {
	var n int
	err := r.conn.Pgx.QueryRow(ctx, `SELECT count(*) FROM incoming_documents WHERE content_hash = $1`, contentHash).Scan(&n)
	return n, err
}
