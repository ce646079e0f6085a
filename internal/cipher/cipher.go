package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/intergov/notary/internal/core/domain"
)

const (
	// KeySize is the size in bytes of a selective disclosure key
	KeySize = 32
	tagSize = 16
)

// Cipher encrypts wrapped credentials for selective disclosure
type Cipher struct {
	kind string
}

// New returns a Cipher producing documents of the given type.
// Decryption accepts every supported type regardless of kind.
func New(kind string) (*Cipher, error) {
	switch kind {
	case domain.CipherOpenAttestationType1, domain.CipherXChaCha20Poly1305:
		return &Cipher{kind: kind}, nil
	}
	return nil, domain.NewConfigurationError("cipher", fmt.Errorf("unsupported cipher type %q", kind))
}

// GenerateKey returns a fresh random key. Keys are never reused across credentials.
func (c *Cipher) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt base64 encodes cleartext and seals it with key
func (c *Cipher) Encrypt(cleartext []byte, key []byte) (*domain.EncryptedDocument, error) {
	aead, err := newAEAD(c.kind, key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(cleartext))
	sealed := aead.Seal(nil, nonce, encoded, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return &domain.EncryptedDocument{
		Type:       c.kind,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(tag),
		CipherText: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Decrypt opens doc with key. Any failure is an IntegrityError and no plaintext is returned.
func (c *Cipher) Decrypt(doc *domain.EncryptedDocument, key []byte) ([]byte, error) {
	if doc == nil {
		return nil, domain.NewIntegrityError("decrypt", errors.New("empty document"))
	}
	aead, err := newAEAD(doc.Type, key)
	if err != nil {
		return nil, domain.NewIntegrityError("decrypt", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(doc.Nonce)
	if err != nil || len(nonce) != aead.NonceSize() {
		return nil, domain.NewIntegrityError("decrypt", errors.New("invalid nonce"))
	}
	tag, err := base64.StdEncoding.DecodeString(doc.Tag)
	if err != nil || len(tag) != tagSize {
		return nil, domain.NewIntegrityError("decrypt", errors.New("invalid tag"))
	}
	ct, err := base64.StdEncoding.DecodeString(doc.CipherText)
	if err != nil {
		return nil, domain.NewIntegrityError("decrypt", errors.New("invalid cipher text"))
	}
	encoded, err := aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, domain.NewIntegrityError("decrypt", err)
	}
	cleartext, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, domain.NewIntegrityError("decrypt", err)
	}
	return cleartext, nil
}

func newAEAD(kind string, key []byte) (gocipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	switch kind {
	case domain.CipherOpenAttestationType1:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return gocipher.NewGCM(block)
	case domain.CipherXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	}
	return nil, fmt.Errorf("unsupported cipher type %q", kind)
}
