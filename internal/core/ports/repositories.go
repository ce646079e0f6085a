package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/pagination"
	"github.com/intergov/notary/internal/sqltools"
)

// Credential columns the listing can be sorted by
const (
	CredentialsCreatedAt    sqltools.SQLFieldName = "created_at"
	CredentialsShortID      sqltools.SQLFieldName = "short_id"
	CredentialsStatus       sqltools.SQLFieldName = "status"
	CredentialsVerification sqltools.SQLFieldName = "verification_status"
)

// CredentialFilter selects a page of credentials. Nil statuses match every credential.
type CredentialFilter struct {
	Status       *domain.CredentialStatus
	Verification *domain.VerificationStatus
	OrderBy      sqltools.OrderByFilters
	Pagination   pagination.Filter
}

// CredentialRepository persists credential records. History is append only.
type CredentialRepository interface {
	Save(ctx context.Context, c *domain.Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error)
	GetByBlobKey(ctx context.Context, blobKey string) (*domain.Credential, error)
	// List returns a page of credentials without their history, and the total number of matches
	List(ctx context.Context, filter *CredentialFilter) ([]*domain.Credential, uint, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CredentialStatus, reason string) error
	// AttachBlob records where the wrapped credential was enqueued and its proof root
	AttachBlob(ctx context.Context, id uuid.UUID, blobKey, proofRoot string) error
	MarkAnchored(ctx context.Context, id uuid.UUID, receipt domain.AnchorReceipt, proofRoot, cid string) error
	UpdateVerification(ctx context.Context, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int) error
	// RestartVerification moves the verification back to pending with no attempts, from any status
	RestartVerification(ctx context.Context, id uuid.UUID) error
	SaveEncrypted(ctx context.Context, id uuid.UUID, doc *domain.EncryptedDocument) error
	AppendHistory(ctx context.Context, id uuid.UUID, entry domain.HistoryEntry) error
}

// NodeMessageRepository persists messages exchanged with counterpart nodes. Messages are never deleted.
type NodeMessageRepository interface {
	Save(ctx context.Context, m *domain.NodeMessage) error
	GetBySenderRef(ctx context.Context, senderRef string) (*domain.NodeMessage, error)
	UpdateStatus(ctx context.Context, senderRef string, entry domain.NodeMessageHistory) error
}

// IncomingDocumentRepository persists documents received from counterpart nodes
type IncomingDocumentRepository interface {
	Save(ctx context.Context, doc *domain.IncomingDocument) error
}
