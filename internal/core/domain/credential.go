package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

// CredentialStatus is the anchoring lifecycle of a credential
type CredentialStatus string

// Credential statuses
const (
	CredentialNotSent  CredentialStatus = "not_sent"
	CredentialPending  CredentialStatus = "pending"
	CredentialAnchored CredentialStatus = "anchored"
	CredentialFailed   CredentialStatus = "failed"
)

// Valid reports whether s is a known credential status
func (s CredentialStatus) Valid() bool {
	switch s {
	case CredentialNotSent, CredentialPending, CredentialAnchored, CredentialFailed:
		return true
	}
	return false
}

// VerificationStatus of a credential
type VerificationStatus string

// Verification statuses
const (
	VerificationNotStarted VerificationStatus = "not_started"
	VerificationPending    VerificationStatus = "pending"
	VerificationValid      VerificationStatus = "valid"
	VerificationInvalid    VerificationStatus = "invalid"
	VerificationError      VerificationStatus = "error"
	VerificationFailed     VerificationStatus = "failed"
)

// IsTerminal tells whether no more verification attempts are expected
func (s VerificationStatus) IsTerminal() bool {
	switch s {
	case VerificationValid, VerificationInvalid, VerificationError, VerificationFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known verification status
func (s VerificationStatus) Valid() bool {
	return s == VerificationNotStarted || s == VerificationPending || s.IsTerminal()
}

func (s VerificationStatus) rank() int {
	switch s {
	case VerificationNotStarted, "":
		return 0
	case VerificationPending:
		return 1
	default:
		return 2
	}
}

// CanMoveTo reports whether the status may change to next. Statuses only move forward,
// except when a re-verification is explicitly requested. Terminal to terminal is allowed:
// the later write wins.
func (s VerificationStatus) CanMoveTo(next VerificationStatus, reverify bool) bool {
	if reverify {
		return true
	}
	return next.rank() >= s.rank() && !(s.IsTerminal() && next == VerificationPending)
}

// Credential is the core view of a certificate record
type Credential struct {
	ID                   uuid.UUID
	ShortID              string
	SubjectID            string
	SenderRef            string
	SchemaVersion        SchemaVersion
	Document             pgtype.JSONB
	Status               CredentialStatus
	StatusReason         string
	VerificationStatus   VerificationStatus
	VerificationReason   string
	VerificationAttempts int
	BlobKey              string
	ProofRoot            string
	TxHash               string
	IPFSCID              string
	Encrypted            *EncryptedDocument
	History              []HistoryEntry
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HistoryEntry is an append only audit record of a pipeline step
type HistoryEntry struct {
	Step    string    `json:"step"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// NewHistoryEntry returns an entry stamped with the current time
func NewHistoryEntry(step, message string, err error) HistoryEntry {
	h := HistoryEntry{Step: step, Message: message, At: time.Now().UTC()}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// SubjectID builds the conversation subject {senderCountry}.{senderOrgId}.{shortId}.
// Each part has its dots replaced by dashes so the subject always has three segments.
func SubjectID(senderCountry, senderOrgID, shortID string) string {
	return strings.Join([]string{
		SanitizeID(strings.ToUpper(senderCountry)),
		SanitizeID(senderOrgID),
		SanitizeID(shortID),
	}, ".")
}

// SanitizeID replaces dots with dashes
func SanitizeID(id string) string {
	return strings.ReplaceAll(id, ".", "-")
}
