package kms

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

type vaultEthKeyProvider struct {
	keyType  KeyType
	vaultCli *api.Client
	mount    string
	field    string
}

// VaultClient returns a vault client authenticated with a token
func VaultClient(address, token string) (*api.Client, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address
	cli, err := api.NewClient(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cli.SetToken(token)
	return cli, nil
}

// NewVaultEthKeyProvider reads signer keys from a KV v2 engine mounted at mount. The key id is
// the secret path and field names the entry holding the hex private key.
func NewVaultEthKeyProvider(cli *api.Client, keyType KeyType, mount, field string) KeyProvider {
	return &vaultEthKeyProvider{keyType: keyType, vaultCli: cli, mount: strings.Trim(mount, "/"), field: field}
}

func (v *vaultEthKeyProvider) secretPath(keyID KeyID) string {
	return fmt.Sprintf("%s/data/%s", v.mount, strings.TrimLeft(keyID.ID, "/"))
}

func (v *vaultEthKeyProvider) privateKeyHex(ctx context.Context, keyID KeyID) (string, error) {
	if keyID.Type != v.keyType {
		return "", errors.WithStack(ErrIncorrectKeyType)
	}
	if keyID.ID == "" {
		return "", errors.New("key ID is empty")
	}
	secret, err := v.vaultCli.Logical().ReadWithContext(ctx, v.secretPath(keyID))
	if err != nil {
		return "", errors.WithStack(err)
	}
	data, err := kvV2SecretData(secret)
	if err != nil {
		return "", err
	}
	raw, ok := data[v.field]
	if !ok {
		return "", errors.WithStack(ErrKeyNotFound)
	}
	h, ok := raw.(string)
	if !ok {
		return "", errors.New("unexpected format for private key")
	}
	return h, nil
}

func (v *vaultEthKeyProvider) PublicKey(ctx context.Context, keyID KeyID) ([]byte, error) {
	h, err := v.privateKeyHex(ctx, keyID)
	if err != nil {
		return nil, err
	}
	pk, err := decodeETHPrivateKeyHex(h)
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSAPub(&pk.PublicKey), nil
}

func (v *vaultEthKeyProvider) Sign(ctx context.Context, keyID KeyID, digest []byte) ([]byte, error) {
	h, err := v.privateKeyHex(ctx, keyID)
	if err != nil {
		return nil, err
	}
	pk, err := decodeETHPrivateKeyHex(h)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, pk)
	return sig, errors.WithStack(err)
}

func kvV2SecretData(secret *api.Secret) (map[string]interface{}, error) {
	if secret == nil {
		return nil, errors.WithStack(ErrKeyNotFound)
	}
	dataI, ok := secret.Data["data"]
	if !ok || dataI == nil {
		return nil, errors.New("secret data not found")
	}
	data, ok := dataI.(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected format of secret data")
	}
	return data, nil
}
