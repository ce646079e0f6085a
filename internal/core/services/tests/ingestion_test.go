package services_tests

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/agreements"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/services"
)

const contentHash = "QmRAQfHNnknnz8S936M2yJGhhVNA6wXJ4jTRP3VXtptmmL"

type ingestionFixture struct {
	node     *nodeClientMock
	blobs    *blobStore
	docs     *incomingRepo
	messages *messageRepo
	svc      *services.Ingestion
}

func newIngestion(t *testing.T, maxAttempts int) *ingestionFixture {
	catalogue, err := agreements.Load("")
	require.NoError(t, err)
	f := &ingestionFixture{
		node:     &nodeClientMock{},
		blobs:    newBlobStore(),
		docs:     &incomingRepo{},
		messages: newMessageRepo(),
	}
	f.svc = services.NewIngestion(f.node, f.blobs, &fakeCodec{}, f.docs, f.messages, catalogue, nil, services.IngestionConfig{
		IncomingBucket: incomingBucket,
		MaxAttempts:    maxAttempts,
		BackoffStep:    time.Millisecond,
		EscalateAfter:  2,
	})
	return f
}

func pointer() domain.IncomingPointer {
	return domain.IncomingPointer{SenderRef: "ref-9", Sender: "sg", Subject: "SG.org.co-9", ContentHash: contentHash}
}

func mustJSON(t *testing.T, v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestIngestion_UNCertificateOfOrigin(t *testing.T) {
	ctx := context.Background()
	f := newIngestion(t, 3)
	wrapped := mustJSON(t, map[string]any{
		"version": "https://schema.openattestation.com/2.0/schema.json",
		"data": map[string]any{
			"credentialSubject": map[string]any{
				"certificateOfOrigin": map[string]any{
					"id":                 "CO-SG-77",
					"issueDateTime":      "2024-03-01",
					"freeTradeAgreement": "china australia fta",
					"exportCountry":      "sg",
					"importCountry":      map[string]any{"code": "au", "name": "Australia"},
					"supplyChainConsignment": map[string]any{
						"consignor": map[string]any{"name": "Exporter Pte Ltd"},
						"consignee": map[string]any{"name": "Importer Pty Ltd"},
					},
					"attachments": []any{map[string]any{
						"filename": "invoice.pdf",
						"type":     "application/pdf",
						"data":     base64.StdEncoding.EncodeToString([]byte("invoice")),
					}},
				},
			},
		},
		"signature": map[string]any{"merkleRoot": "00"},
	})
	f.node.On("RetrieveDocument", mock.Anything, contentHash).Return(wrapped, nil).Once()

	res, err := f.svc.Ingest(ctx, pointer())
	require.NoError(t, err)
	require.Equal(t, domain.IngestParsed, res.Status, res.Reason)

	doc := res.Document
	assert.Equal(t, services.ShapeUNCoO, doc.Shape)
	assert.Equal(t, domain.SchemaVersionOAV2, doc.SchemaVersion)
	assert.Equal(t, "CO-SG-77", doc.DocumentNumber)
	require.NotNil(t, doc.IssueDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *doc.IssueDate)
	assert.Equal(t, "SG", doc.Origin)
	assert.Equal(t, "AU", doc.Destination)
	assert.Equal(t, "Exporter Pte Ltd", doc.ExporterName)
	assert.Equal(t, "Importer Pty Ltd", doc.ImporterName)
	require.NotNil(t, doc.TradeAgreement)
	assert.Equal(t, "ChAFTA", *doc.TradeAgreement)
	require.Len(t, doc.Attachments, 1)
	assert.Equal(t, "application/pdf", doc.Attachments[0].MimeType)
	assert.Equal(t, []byte("invoice"), doc.Attachments[0].Data)
	assert.Equal(t, "ref-9", doc.SenderRef)
	assert.Equal(t, wrapped, doc.Raw)

	assert.Len(t, f.docs.docs, 1)
	stored, err := f.blobs.Get(ctx, incomingBucket, "SG/"+contentHash)
	require.NoError(t, err)
	assert.Equal(t, wrapped, stored)
}

func TestIngestion_LegacyShape(t *testing.T) {
	f := newIngestion(t, 3)
	raw := mustJSON(t, map[string]any{
		"version":            "open-attestation/2.0",
		"iD":                 "LEG-1",
		"issueDateTime":      "sometime last week",
		"freeTradeAgreement": "Some Unlisted Agreement",
		"supplyChainConsignment": map[string]any{
			"exportCountry": "nz",
			"importCountry": "au",
			"consignor":     map[string]any{"name": "Kiwi Exports"},
		},
		"attachedFile": []any{
			map[string]any{"filename": "a.pdf", "file": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("hi"))},
			map[string]any{"filename": "b.pdf", "file": "!!not base64!!"},
		},
	})
	f.node.On("RetrieveDocument", mock.Anything, contentHash).Return(raw, nil).Once()

	res, err := f.svc.Ingest(context.Background(), pointer())
	require.NoError(t, err)
	require.Equal(t, domain.IngestParsed, res.Status, res.Reason)

	doc := res.Document
	assert.Equal(t, services.ShapeLegacy, doc.Shape)
	assert.Equal(t, "LEG-1", doc.DocumentNumber)
	assert.Nil(t, doc.IssueDate)
	assert.Nil(t, doc.TradeAgreement)
	assert.Equal(t, "NZ", doc.Origin)
	assert.Equal(t, "AU", doc.Destination)
	assert.Equal(t, "Kiwi Exports", doc.ExporterName)
	require.Len(t, doc.Attachments, 1)
	assert.Equal(t, "a.pdf", doc.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", doc.Attachments[0].MimeType)
	assert.Equal(t, []byte("hi"), doc.Attachments[0].Data)
}

func TestIngestion_UnparseableContent(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status domain.IngestStatus
	}{
		{name: "pdf", body: "%PDF-1.4 binary", status: domain.IngestNotJSON},
		{name: "json array", body: `[1,2,3]`, status: domain.IngestNotJSON},
		{name: "json string", body: `"text"`, status: domain.IngestNotJSON},
		{name: "no version", body: `{"certificateOfOrigin":{}}`, status: domain.IngestUnsupportedVersion},
		{name: "unknown version", body: `{"version":"https://schema.openattestation.com/9.0/schema.json"}`, status: domain.IngestUnsupportedVersion},
		{name: "unknown shape", body: `{"version":"3.0","something":"else"}`, status: domain.IngestFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newIngestion(t, 3)
			f.node.On("RetrieveDocument", mock.Anything, contentHash).Return([]byte(tc.body), nil).Once()

			res, err := f.svc.Ingest(context.Background(), pointer())
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.NotEmpty(t, res.Reason)
			assert.Nil(t, res.Document)
			assert.Empty(t, f.docs.docs)
			assert.Equal(t, 1, f.blobs.count(incomingBucket))
		})
	}
}

func TestIngestion_DownloadRetries(t *testing.T) {
	transient := domain.NewTransientError("retrieve document", errors.New("502"))

	t.Run("recovers after transient failures", func(t *testing.T) {
		f := newIngestion(t, 5)
		f.node.On("RetrieveDocument", mock.Anything, contentHash).Return(nil, transient).Times(3)
		f.node.On("RetrieveDocument", mock.Anything, contentHash).Return([]byte(`[]`), nil).Once()

		res, err := f.svc.Ingest(context.Background(), pointer())
		require.NoError(t, err)
		assert.Equal(t, domain.IngestNotJSON, res.Status)
		f.node.AssertNumberOfCalls(t, "RetrieveDocument", 4)
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		f := newIngestion(t, 3)
		f.node.On("RetrieveDocument", mock.Anything, contentHash).Return(nil, transient)

		res, err := f.svc.Ingest(context.Background(), pointer())
		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrDownloadAttemptsExhausted)
		assert.True(t, domain.IsTransientError(err))
		assert.Equal(t, domain.IngestFailed, res.Status)
		f.node.AssertNumberOfCalls(t, "RetrieveDocument", 3)
		assert.Equal(t, 0, f.blobs.count(incomingBucket))
	})

	t.Run("does not retry a rejected hash", func(t *testing.T) {
		f := newIngestion(t, 3)
		f.node.On("RetrieveDocument", mock.Anything, contentHash).
			Return(nil, domain.NewDocumentError("retrieve document", errors.New("404"))).Once()

		res, err := f.svc.Ingest(context.Background(), pointer())
		assert.True(t, domain.IsDocumentError(err))
		assert.Equal(t, domain.IngestFailed, res.Status)
		f.node.AssertNumberOfCalls(t, "RetrieveDocument", 1)
	})
}

func TestIngestion_HandleMessageUpdate(t *testing.T) {
	ctx := context.Background()
	f := newIngestion(t, 1)
	require.NoError(t, f.messages.Save(ctx, &domain.NodeMessage{SenderRef: "ref-1", Status: domain.NodeMessageSent}))
	f.node.On("RetrieveMessage", mock.Anything, "ref-1").
		Return(&domain.MessagePayload{SenderRef: "ref-1", Status: "accepted"}, nil).Once()
	f.node.On("RetrieveMessage", mock.Anything, "ref-1").
		Return(&domain.MessagePayload{SenderRef: "ref-1", Status: "rejected"}, nil).Once()
	f.node.On("RetrieveMessage", mock.Anything, "missing").
		Return(&domain.MessagePayload{SenderRef: "missing"}, nil)

	require.NoError(t, f.svc.HandleMessageUpdate(ctx, "ref-1", domain.NodeMessageAccepted, "delivered"))
	require.NoError(t, f.svc.HandleMessageUpdate(ctx, "ref-1", domain.NodeMessageRejected, "bad signature"))

	msg, err := f.messages.GetBySenderRef(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeMessageRejected, msg.Status)
	require.Len(t, msg.History, 2)
	assert.Equal(t, "delivered", msg.History[0].Message)

	err = f.svc.HandleMessageUpdate(ctx, "missing", domain.NodeMessageAccepted, "")
	assert.True(t, domain.IsDocumentError(err))
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestIngestion_HandleMessageUpdateConfirmsWithNode(t *testing.T) {
	ctx := context.Background()
	f := newIngestion(t, 1)
	require.NoError(t, f.messages.Save(ctx, &domain.NodeMessage{SenderRef: "ref-2", Status: domain.NodeMessageSent}))
	f.node.On("RetrieveMessage", mock.Anything, "ref-2").
		Return(nil, domain.NewTransientError("retrieve message", errors.New("502"))).Once()
	f.node.On("RetrieveMessage", mock.Anything, "ref-2").
		Return(&domain.MessagePayload{SenderRef: "ref-2", Status: "rejected"}, nil).Once()

	err := f.svc.HandleMessageUpdate(ctx, "ref-2", domain.NodeMessageAccepted, "delivered")
	assert.True(t, domain.IsTransientError(err))
	msg, err := f.messages.GetBySenderRef(ctx, "ref-2")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeMessageSent, msg.Status)
	assert.Empty(t, msg.History)

	require.NoError(t, f.svc.HandleMessageUpdate(ctx, "ref-2", domain.NodeMessageAccepted, "delivered"))
	msg, err = f.messages.GetBySenderRef(ctx, "ref-2")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeMessageRejected, msg.Status)
}
