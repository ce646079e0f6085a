package domain

import (
	"time"

	"github.com/google/uuid"
)

// IssueRequest asks the orchestrator to issue a credential
type IssueRequest struct {
	ShortID       string
	Receiver      string
	SchemaVersion SchemaVersion
	Document      map[string]any
}

// IssueResult is returned to the caller after the synchronous steps of the pipeline
type IssueResult struct {
	CredentialID uuid.UUID
	SubjectID    string
	SenderRef    string
	BlobKey      string
	QRCode       string
	Link         string
}

// IncomingPointer is a notification of a document published by a counterpart node
type IncomingPointer struct {
	SenderRef   string
	Sender      string
	Subject     string
	ContentHash string
}

// IngestStatus of an incoming document
type IngestStatus string

// Ingest statuses
const (
	IngestParsed             IngestStatus = "parsed"
	IngestNotJSON            IngestStatus = "not_json"
	IngestUnsupportedVersion IngestStatus = "unsupported_version"
	IngestFailed             IngestStatus = "failed"
)

// IngestResult is the outcome of an ingestion
type IngestResult struct {
	Status   IngestStatus
	Reason   string
	Document *IncomingDocument
}

// Attachment decoded from an incoming document
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// IncomingDocument is a foreign credential parsed into the common certificate fields
type IncomingDocument struct {
	ID             uuid.UUID
	ContentHash    string
	SenderRef      string
	Sender         string
	Subject        string
	Shape          string
	SchemaVersion  SchemaVersion
	DocumentNumber string
	IssueDate      *time.Time
	ExporterName   string
	ImporterName   string
	Origin         string
	Destination    string
	TradeAgreement *string
	Attachments    []Attachment
	Raw            []byte
	CreatedAt      time.Time
}
