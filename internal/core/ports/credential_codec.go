package ports

import (
	"context"

	"github.com/intergov/notary/internal/core/domain"
)

// CredentialCodec wraps and unwraps credential documents against the proof generation service
type CredentialCodec interface {
	// Wrap returns the byte exact wrapped document. Already wrapped input is rejected.
	Wrap(ctx context.Context, document map[string]any, version domain.SchemaVersion) ([]byte, error)
	// Unwrap returns the document without proof metadata. Input must have data and proof sections.
	Unwrap(ctx context.Context, wrapped []byte) (map[string]any, error)
	// DetectVersion reads the version field of a document, wrapped or not.
	DetectVersion(document map[string]any) (domain.SchemaVersion, error)
}

// SelectiveDisclosureCipher encrypts wrapped credentials with a per credential key
type SelectiveDisclosureCipher interface {
	GenerateKey() ([]byte, error)
	Encrypt(cleartext []byte, key []byte) (*domain.EncryptedDocument, error)
	Decrypt(doc *domain.EncryptedDocument, key []byte) ([]byte, error)
}
