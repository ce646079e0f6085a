package kms

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

type localEthKeyProvider struct {
	keyType KeyType
	keys    map[string]*ecdsa.PrivateKey
}

// NewLocalEthKeyProvider creates a provider over hex encoded private keys indexed by key id
func NewLocalEthKeyProvider(keyType KeyType, hexKeys map[string]string) (KeyProvider, error) {
	keys := make(map[string]*ecdsa.PrivateKey, len(hexKeys))
	for id, h := range hexKeys {
		pk, err := decodeETHPrivateKeyHex(h)
		if err != nil {
			return nil, errors.Wrapf(err, "key %q", id)
		}
		keys[id] = pk
	}
	return &localEthKeyProvider{keyType: keyType, keys: keys}, nil
}

func (p *localEthKeyProvider) privateKey(keyID KeyID) (*ecdsa.PrivateKey, error) {
	if keyID.Type != p.keyType {
		return nil, errors.WithStack(ErrIncorrectKeyType)
	}
	pk, ok := p.keys[keyID.ID]
	if !ok {
		return nil, errors.WithStack(ErrKeyNotFound)
	}
	return pk, nil
}

func (p *localEthKeyProvider) PublicKey(_ context.Context, keyID KeyID) ([]byte, error) {
	pk, err := p.privateKey(keyID)
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSAPub(&pk.PublicKey), nil
}

func (p *localEthKeyProvider) Sign(_ context.Context, keyID KeyID, digest []byte) ([]byte, error) {
	pk, err := p.privateKey(keyID)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, pk)
	return sig, errors.WithStack(err)
}

func decodeETHPrivateKeyHex(h string) (*ecdsa.PrivateKey, error) {
	h = strings.TrimPrefix(strings.TrimSpace(h), "0x")
	if h == "" {
		return nil, errors.New("private key is empty")
	}
	pk, err := crypto.HexToECDSA(h)
	return pk, errors.WithStack(err)
}
