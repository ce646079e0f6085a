package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/core/domain"
)

func TestIncomingDocument_Save(t *testing.T) {
	requireStorage(t)
	ctx := context.Background()
	repo := NewIncomingDocument(storage)

	issued := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	fta := "AANZFTA"
	hash := uuid.NewString()
	doc := &domain.IncomingDocument{
		ID:             uuid.New(),
		ContentHash:    hash,
		SenderRef:      uuid.NewString(),
		Sender:         "SG",
		Subject:        "SG.org.1",
		Shape:          "un_coo",
		SchemaVersion:  domain.SchemaVersionOAV2,
		DocumentNumber: "CO-1",
		IssueDate:      &issued,
		Origin:         "SG",
		Destination:    "AU",
		TradeAgreement: &fta,
		Attachments:    []domain.Attachment{{Filename: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}},
		Raw:            []byte(`{"version":"https://schema.openattestation.com/2.0/schema.json"}`),
	}
	require.NoError(t, repo.Save(ctx, doc))

	second := *doc
	second.ID = uuid.New()
	second.IssueDate = nil
	second.TradeAgreement = nil
	second.Attachments = nil
	require.NoError(t, repo.Save(ctx, &second))

	n, err := repo.CountByContentHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Error(t, repo.Save(ctx, doc), "ids are unique")
}
