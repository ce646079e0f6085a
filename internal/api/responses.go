package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/services"
	"github.com/intergov/notary/internal/timeapi"
)

// ErrorResponse is the body of every non 2xx response
type ErrorResponse struct {
	Message string `json:"message"`
}

// IssueCredentialRequest is the body of POST /v1/credentials
type IssueCredentialRequest struct {
	ShortID       string         `json:"shortId"`
	Receiver      string         `json:"receiver,omitempty"`
	SchemaVersion string         `json:"schemaVersion,omitempty"`
	Document      map[string]any `json:"document"`
}

// IssueCredentialResponse is returned once the credential is enqueued
type IssueCredentialResponse struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	SenderRef string `json:"senderRef,omitempty"`
	BlobKey   string `json:"blobKey"`
	QRCode    string `json:"qrCode"`
	Link      string `json:"link"`
}

// Verification is the verification state of a credential
type Verification struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

// HistoryEntry of the issuance pipeline
type HistoryEntry struct {
	Step    string       `json:"step"`
	Message string       `json:"message"`
	Error   string       `json:"error,omitempty"`
	At      timeapi.Time `json:"at"`
}

// CredentialResponse is the public view of a credential record
type CredentialResponse struct {
	ID            string         `json:"id"`
	ShortID       string         `json:"shortId"`
	SubjectID     string         `json:"subjectId"`
	SenderRef     string         `json:"senderRef,omitempty"`
	SchemaVersion string         `json:"schemaVersion"`
	Status        string         `json:"status"`
	StatusReason  string         `json:"statusReason,omitempty"`
	Verification  Verification   `json:"verification"`
	BlobKey       string         `json:"blobKey,omitempty"`
	ProofRoot     string         `json:"proofRoot,omitempty"`
	TxHash        string         `json:"txHash,omitempty"`
	IPFSCID       string         `json:"ipfsCid,omitempty"`
	History       []HistoryEntry `json:"history"`
	CreatedAt     timeapi.Time   `json:"createdAt"`
	UpdatedAt     timeapi.Time   `json:"updatedAt"`
}

// PaginatedMetadata describes the page returned by a list endpoint
type PaginatedMetadata struct {
	Total      uint `json:"total"`
	Page       uint `json:"page"`
	MaxResults uint `json:"max_results"`
}

// CredentialsPaginated is a page of credentials
type CredentialsPaginated struct {
	Items []CredentialResponse `json:"items"`
	Meta  PaginatedMetadata    `json:"meta"`
}

// VerifyResponse is the outcome of a one shot verification
type VerifyResponse struct {
	Status string `json:"status"`
}

// QRPayload found in a pdf
type QRPayload struct {
	Payload string `json:"payload"`
	Kind    string `json:"kind"`
}

// ExtractQRResponse lists the payloads of a pdf
type ExtractQRResponse struct {
	Payloads []QRPayload `json:"payloads"`
}

// MessageCallbackRequest is a status change of a message this node sent
type MessageCallbackRequest struct {
	SenderRef string `json:"sender_ref"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
}

// DocumentCallbackRequest announces a document published by a counterpart node
type DocumentCallbackRequest struct {
	SenderRef string `json:"sender_ref"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Obj       string `json:"obj"`
}

// DocumentCallbackResponse is the ingestion outcome
type DocumentCallbackResponse struct {
	Status     string  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
	DocumentID *string `json:"documentId,omitempty"`
}

func credentialResponse(c *domain.Credential) CredentialResponse {
	history := make([]HistoryEntry, 0, len(c.History))
	for _, h := range c.History {
		history = append(history, HistoryEntry{Step: h.Step, Message: h.Message, Error: h.Error, At: timeapi.Time(h.At)})
	}
	return CredentialResponse{
		ID:            c.ID.String(),
		ShortID:       c.ShortID,
		SubjectID:     c.SubjectID,
		SenderRef:     c.SenderRef,
		SchemaVersion: c.SchemaVersion.String(),
		Status:        string(c.Status),
		StatusReason:  c.StatusReason,
		Verification: Verification{
			Status:   string(c.VerificationStatus),
			Reason:   c.VerificationReason,
			Attempts: c.VerificationAttempts,
		},
		BlobKey:   c.BlobKey,
		ProofRoot: c.ProofRoot,
		TxHash:    c.TxHash,
		IPFSCID:   c.IPFSCID,
		History:   history,
		CreatedAt: timeapi.Time(c.CreatedAt),
		UpdatedAt: timeapi.Time(c.UpdatedAt),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Message: msg})
}

// errorStatus maps the error taxonomy onto http status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrCredentialNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, services.ErrQRCodeLinkNotFound),
		errors.Is(err, domain.ErrNoQRFound):
		return http.StatusNotFound
	case domain.IsDocumentError(err):
		return http.StatusBadRequest
	case domain.IsIntegrityError(err):
		return http.StatusUnprocessableEntity
	case domain.IsTransientError(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
