package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/intergov/notary/internal/core/domain"
)

// ProofChecker is the remote verification service
type ProofChecker interface {
	Check(ctx context.Context, wrapped []byte) ([]domain.VerificationFragment, error)
}

// CredentialVerifier unwraps a credential, checks it and classifies the result
type CredentialVerifier interface {
	Verify(ctx context.Context, wrapped []byte) (*domain.VerificationOutcome, error)
}

// VerificationReconciler drives the bounded verification retry loop
type VerificationReconciler interface {
	Start(ctx context.Context, credentialID uuid.UUID) error
	CheckNow(ctx context.Context, credentialID uuid.UUID) (domain.VerificationStatus, error)
	Reverify(ctx context.Context, credentialID uuid.UUID) error
}

// QRExtractor recovers supported qr payloads from a pdf
type QRExtractor interface {
	Extract(ctx context.Context, pdf []byte) ([]string, error)
}
