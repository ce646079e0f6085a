package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/intergov/notary/internal/agreements"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
)

// Incoming document shapes
const (
	ShapeUNCoO  = "un_coo"
	ShapeLegacy = "legacy"
)

// ErrDownloadAttemptsExhausted is returned when every download attempt failed transiently
var ErrDownloadAttemptsExhausted = errors.New("document download attempts exhausted")

// IngestionConfig holds the download retry budget and the raw document bucket
type IngestionConfig struct {
	IncomingBucket string
	MaxAttempts    int
	BackoffStep    time.Duration
	EscalateAfter  int
}

// Ingestion downloads and parses documents published by counterpart nodes
type Ingestion struct {
	node       ports.NodeClient
	blobs      ports.BlobStore
	codec      ports.CredentialCodec
	docs       ports.IncomingDocumentRepository
	messages   ports.NodeMessageRepository
	agreements *agreements.Catalogue
	metrics    *metrics.Metrics
	cfg        IngestionConfig
}

// NewIngestion returns an Ingestion
func NewIngestion(
	node ports.NodeClient,
	blobs ports.BlobStore,
	codec ports.CredentialCodec,
	docs ports.IncomingDocumentRepository,
	messages ports.NodeMessageRepository,
	catalogue *agreements.Catalogue,
	m *metrics.Metrics,
	cfg IngestionConfig,
) *Ingestion {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 20
	}
	if cfg.EscalateAfter < 1 {
		cfg.EscalateAfter = 10
	}
	return &Ingestion{
		node:       node,
		blobs:      blobs,
		codec:      codec,
		docs:       docs,
		messages:   messages,
		agreements: catalogue,
		metrics:    m,
		cfg:        cfg,
	}
}

// Ingest processes the document a pointer refers to. Content that can not be parsed is reported in
// the result with a nil error. An error is returned only when the download or the storage failed.
func (s *Ingestion) Ingest(ctx context.Context, pointer domain.IncomingPointer) (*domain.IngestResult, error) {
	ctx = log.With(ctx, "senderRef", pointer.SenderRef, "contentHash", pointer.ContentHash)

	raw, err := s.download(ctx, pointer.ContentHash)
	if err != nil {
		s.metrics.IncIncomingDocument(string(domain.IngestFailed))
		log.Error(ctx, "downloading incoming document", "err", err)
		return &domain.IngestResult{Status: domain.IngestFailed, Reason: err.Error()}, err
	}
	if err := s.blobs.Put(ctx, s.cfg.IncomingBucket, incomingBlobKey(pointer), raw); err != nil {
		return nil, domain.NewTransientError("store incoming document", err)
	}

	result := s.parse(ctx, pointer, raw)
	if result.Document != nil {
		if err := s.docs.Save(ctx, result.Document); err != nil {
			return nil, err
		}
	}
	s.metrics.IncIncomingDocument(string(result.Status))
	log.Info(ctx, "incoming document processed", "status", result.Status, "reason", result.Reason)
	return result, nil
}

func (s *Ingestion) download(ctx context.Context, contentHash string) ([]byte, error) {
	var (
		raw     []byte
		attempt int
	)
	op := func() error {
		attempt++
		data, err := s.node.RetrieveDocument(ctx, contentHash)
		if err == nil {
			raw = data
			return nil
		}
		if !domain.IsTransientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		level := log.LevelWarn
		if attempt > s.cfg.EscalateAfter {
			level = log.LevelErr
		}
		log.Log(ctx, level, "document download failed, retrying", "attempt", attempt, "wait", wait, "err", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: s.cfg.BackoffStep}, uint64(s.cfg.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if domain.IsTransientError(err) && attempt >= s.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrDownloadAttemptsExhausted, attempt, err)
		}
		return nil, err
	}
	return raw, nil
}

// linearBackOff waits attempt * step before the next attempt
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

func (s *Ingestion) parse(ctx context.Context, pointer domain.IncomingPointer, raw []byte) *domain.IngestResult {
	var content any
	if err := json.Unmarshal(raw, &content); err != nil {
		return &domain.IngestResult{Status: domain.IngestNotJSON, Reason: err.Error()}
	}
	doc, ok := content.(map[string]any)
	if !ok {
		return &domain.IngestResult{Status: domain.IngestNotJSON, Reason: "document is not a json object"}
	}

	version, err := s.codec.DetectVersion(doc)
	if err != nil {
		return &domain.IngestResult{Status: domain.IngestUnsupportedVersion, Reason: err.Error()}
	}

	data, err := s.codec.Unwrap(ctx, raw)
	switch {
	case errors.Is(err, domain.ErrNotWrapped):
		data = doc
	case err != nil:
		return &domain.IngestResult{Status: domain.IngestFailed, Reason: err.Error()}
	}

	incoming, err := s.decode(ctx, data)
	if err != nil {
		return &domain.IngestResult{Status: domain.IngestFailed, Reason: err.Error()}
	}
	incoming.ID = uuid.New()
	incoming.ContentHash = pointer.ContentHash
	incoming.SenderRef = pointer.SenderRef
	incoming.Sender = pointer.Sender
	incoming.Subject = pointer.Subject
	incoming.SchemaVersion = version
	incoming.Raw = raw
	incoming.CreatedAt = time.Now().UTC()
	return &domain.IngestResult{Status: domain.IngestParsed, Document: incoming}
}

type country struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

func (c country) String() string {
	if c.Code != "" {
		return strings.ToUpper(c.Code)
	}
	return c.Name
}

type party struct {
	Name string `mapstructure:"name"`
}

type attachment struct {
	Filename string `mapstructure:"filename"`
	Type     string `mapstructure:"type"`
	MimeType string `mapstructure:"mimeType"`
	Data     string `mapstructure:"data"`
	File     string `mapstructure:"file"`
}

type consignment struct {
	Consignor     party   `mapstructure:"consignor"`
	Consignee     party   `mapstructure:"consignee"`
	ExportCountry country `mapstructure:"exportCountry"`
	ImportCountry country `mapstructure:"importCountry"`
}

// certificate covers the fields both shapes share. Keys match case insensitively, so the legacy iD
// lands in ID.
type certificate struct {
	ID                     string       `mapstructure:"id"`
	IssueDateTime          string       `mapstructure:"issueDateTime"`
	FreeTradeAgreement     string       `mapstructure:"freeTradeAgreement"`
	ExportCountry          country      `mapstructure:"exportCountry"`
	ImportCountry          country      `mapstructure:"importCountry"`
	SupplyChainConsignment consignment  `mapstructure:"supplyChainConsignment"`
	Attachments            []attachment `mapstructure:"attachments"`
	AttachedFiles          []attachment `mapstructure:"attachedFile"`
}

// locate returns the certificate section of a document and its shape
func locate(doc map[string]any) (map[string]any, string, bool) {
	if subject, ok := doc["credentialSubject"].(map[string]any); ok {
		if coo, ok := subject["certificateOfOrigin"].(map[string]any); ok {
			return coo, ShapeUNCoO, true
		}
		return subject, ShapeUNCoO, true
	}
	if coo, ok := doc["certificateOfOrigin"].(map[string]any); ok {
		return coo, ShapeUNCoO, true
	}
	if _, ok := doc["supplyChainConsignment"].(map[string]any); ok {
		return doc, ShapeLegacy, true
	}
	return nil, "", false
}

func (s *Ingestion) decode(ctx context.Context, doc map[string]any) (*domain.IncomingDocument, error) {
	section, shape, ok := locate(doc)
	if !ok {
		return nil, domain.NewDocumentError("unknown document shape", nil)
	}

	var cert certificate
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       countryFromString,
		Result:           &cert,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(section); err != nil {
		return nil, domain.NewDocumentError("decode "+shape+" document", err)
	}

	out := &domain.IncomingDocument{
		Shape:          shape,
		DocumentNumber: cert.ID,
		IssueDate:      parseLenientDate(cert.IssueDateTime),
		ExporterName:   cert.SupplyChainConsignment.Consignor.Name,
		ImporterName:   cert.SupplyChainConsignment.Consignee.Name,
		Origin:         firstNonEmpty(cert.ExportCountry.String(), cert.SupplyChainConsignment.ExportCountry.String()),
		Destination:    firstNonEmpty(cert.ImportCountry.String(), cert.SupplyChainConsignment.ImportCountry.String()),
	}
	if cert.IssueDateTime != "" && out.IssueDate == nil {
		log.Warn(ctx, "unparseable issue date", "value", cert.IssueDateTime)
	}

	if cert.FreeTradeAgreement != "" {
		if a, ok := s.agreements.Match(cert.FreeTradeAgreement); ok {
			code := a.Code
			out.TradeAgreement = &code
		} else {
			log.Warn(ctx, "unknown trade agreement", "name", cert.FreeTradeAgreement)
		}
	}

	for i, a := range append(cert.Attachments, cert.AttachedFiles...) {
		decoded, err := decodeAttachment(a)
		if err != nil {
			log.Warn(ctx, "skipping undecodable attachment", "index", i, "err", err)
			continue
		}
		out.Attachments = append(out.Attachments, decoded)
	}
	return out, nil
}

func decodeAttachment(a attachment) (domain.Attachment, error) {
	payload := firstNonEmpty(a.Data, a.File)
	if payload == "" {
		return domain.Attachment{}, errors.New("empty attachment")
	}
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		if a.MimeType == "" {
			a.MimeType = strings.TrimPrefix(payload[:i], "data:")
		}
		payload = payload[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return domain.Attachment{}, err
		}
	}
	return domain.Attachment{
		Filename: a.Filename,
		MimeType: firstNonEmpty(a.MimeType, a.Type),
		Data:     data,
	}, nil
}

// countryFromString accepts a bare country code where an object is expected
func countryFromString(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf(country{}) {
		return map[string]any{"code": data}, nil
	}
	return data, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2 January 2006",
	"02 Jan 2006",
}

func parseLenientDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func incomingBlobKey(p domain.IncomingPointer) string {
	if p.Sender == "" {
		return p.ContentHash
	}
	return fmt.Sprintf("%s/%s", strings.ToUpper(p.Sender), p.ContentHash)
}

// HandleMessageUpdate records a status change notification of a message we sent. The status is
// confirmed with the node first and the node view wins over the notification.
func (s *Ingestion) HandleMessageUpdate(ctx context.Context, senderRef string, status domain.NodeMessageStatus, note string) error {
	remote, err := s.node.RetrieveMessage(ctx, senderRef)
	if err != nil {
		log.Warn(ctx, "confirming message status with the node", "err", err, "senderRef", senderRef)
		return err
	}
	switch confirmed := domain.NodeMessageStatus(remote.Status); confirmed {
	case domain.NodeMessageAccepted, domain.NodeMessageRejected:
		if confirmed != status {
			log.Warn(ctx, "notified status differs from the node", "senderRef", senderRef, "notified", status, "node", confirmed)
			status = confirmed
		}
	}
	entry := domain.NodeMessageHistory{Status: status, Message: note, At: time.Now().UTC()}
	if err := s.messages.UpdateStatus(ctx, senderRef, entry); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return domain.NewDocumentError("message "+senderRef, err)
		}
		return err
	}
	log.Info(ctx, "node message status updated", "senderRef", senderRef, "status", status)
	return nil
}
