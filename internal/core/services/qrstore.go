package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/intergov/notary/internal/cache"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
)

// DefaultQRBodyTTL is the default time to live of a cached encrypted document
const DefaultQRBodyTTL = 30 * 24 * time.Hour

// ErrQRCodeLinkNotFound is the error returned when the encrypted document behind a qr code does not exist
var ErrQRCodeLinkNotFound = errors.New("qr code link not found")

// QrStoreService implements the ports.QrStoreService interface.
// It serves the encrypted documents qr code holders download, from the cache first and then from
// the credential records.
type QrStoreService struct {
	store cache.Cache
	creds ports.CredentialRepository
}

// NewQrStoreService creates a new QrStoreService instance. creds can be nil.
func NewQrStoreService(store cache.Cache, creds ports.CredentialRepository) *QrStoreService {
	return &QrStoreService{
		store: store,
		creds: creds,
	}
}

// Find retrieves the encrypted document of a credential. Not finding an item is considered an error
func (s *QrStoreService) Find(ctx context.Context, id uuid.UUID) (*domain.EncryptedDocument, error) {
	var doc domain.EncryptedDocument
	if found := s.store.Get(ctx, s.key(id), &doc); found {
		return &doc, nil
	}
	if s.creds == nil {
		return nil, ErrQRCodeLinkNotFound
	}
	cred, err := s.creds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, ErrQRCodeLinkNotFound
		}
		return nil, err
	}
	if cred.Encrypted == nil {
		log.Warn(ctx, "credential has no encrypted document", "id", id.String())
		return nil, ErrQRCodeLinkNotFound
	}
	if err := s.Store(ctx, id, cred.Encrypted, DefaultQRBodyTTL); err != nil {
		log.Warn(ctx, "error caching encrypted document", "id", id.String(), "err", err)
	}
	return cred.Encrypted, nil
}

// Store caches the encrypted document of a credential
func (s *QrStoreService) Store(ctx context.Context, id uuid.UUID, doc *domain.EncryptedDocument, ttl time.Duration) error {
	if err := s.store.Set(ctx, s.key(id), doc, ttl); err != nil {
		log.Error(ctx, "error storing encrypted document", "id", id.String(), "err", err)
		return err
	}
	return nil
}

// ToURL is the address holders download the encrypted document from
func (s *QrStoreService) ToURL(hostURL string, id uuid.UUID) string {
	return fmt.Sprintf("%s/v1/qr/%s", strings.TrimRight(hostURL, "/"), id.String())
}

func (s *QrStoreService) key(id uuid.UUID) string {
	return "notary:qr-code:" + id.String()
}
