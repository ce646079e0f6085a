package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/intergov/notary/internal/core/domain"
)

// QrStoreService caches the encrypted documents served to qr code holders
type QrStoreService interface {
	Find(ctx context.Context, id uuid.UUID) (*domain.EncryptedDocument, error)
	Store(ctx context.Context, id uuid.UUID, doc *domain.EncryptedDocument, ttl time.Duration) error
}
