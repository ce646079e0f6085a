package kms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/api"
	pkgerrors "github.com/pkg/errors"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
)

// KeyType describes the type of Key
type KeyType string

// KeyTypeEthereum is the only key type the notary signs with
const KeyTypeEthereum KeyType = "ETH"

var (
	// ErrUnknownKeyType returns when we do not support this type of keys
	ErrUnknownKeyType = errors.New("unknown key type")
	// ErrIncorrectKeyType returns when key provider can't work with given key type
	ErrIncorrectKeyType = errors.New("incorrect key type")
	// ErrKeyTypeConflict raises when we register new key provider with key type that already exists
	ErrKeyTypeConflict = errors.New("key type already registered")
	// ErrKeyNotFound is returned when the provider has no key under the given id
	ErrKeyNotFound = errors.New("key not found")
)

// KeyID is a key unique identifier
type KeyID struct {
	Type KeyType
	ID   string
}

// KeyProvider describes the interface that key providers should match.
type KeyProvider interface {
	// PublicKey returns the uncompressed public key
	PublicKey(ctx context.Context, keyID KeyID) ([]byte, error)
	// Sign signs a 32 byte digest and returns a 65 byte [R || S || V] signature
	Sign(ctx context.Context, keyID KeyID, digest []byte) ([]byte, error)
}

// KMS dispatches key operations to the registered provider
type KMS struct {
	registry map[KeyType]KeyProvider
}

// NewKMS create new KMS
func NewKMS() *KMS {
	return &KMS{registry: make(map[KeyType]KeyProvider)}
}

// RegisterKeyProvider register new key provider. It is thread unsafe
// function should be called on app initialization or under external mutex.
func (k *KMS) RegisterKeyProvider(kt KeyType, kp KeyProvider) error {
	if _, ok := k.registry[kt]; ok {
		return pkgerrors.WithStack(ErrKeyTypeConflict)
	}
	k.registry[kt] = kp
	return nil
}

// PublicKey returns bytes representation for public key for specified key ID
func (k *KMS) PublicKey(ctx context.Context, keyID KeyID) ([]byte, error) {
	kp, ok := k.registry[keyID.Type]
	if !ok {
		return nil, pkgerrors.WithStack(ErrUnknownKeyType)
	}
	return kp.PublicKey(ctx, keyID)
}

// Sign signs digest with private key
func (k *KMS) Sign(ctx context.Context, keyID KeyID, digest []byte) ([]byte, error) {
	kp, ok := k.registry[keyID.Type]
	if !ok {
		return nil, pkgerrors.WithStack(ErrUnknownKeyType)
	}
	return kp.Sign(ctx, keyID, digest)
}

// Address returns the ethereum address of keyID
func (k *KMS) Address(ctx context.Context, keyID KeyID) (common.Address, error) {
	pub, err := k.PublicKey(ctx, keyID)
	if err != nil {
		return common.Address{}, err
	}
	return AddressFromPublicKey(pub)
}

// AddressFromPublicKey derives the ethereum address of an uncompressed or compressed public key
func AddressFromPublicKey(pub []byte) (common.Address, error) {
	switch len(pub) {
	case 33:
		pk, err := crypto.DecompressPubkey(pub)
		if err != nil {
			return common.Address{}, pkgerrors.WithStack(err)
		}
		return crypto.PubkeyToAddress(*pk), nil
	case 65:
		pk, err := crypto.UnmarshalPubkey(pub)
		if err != nil {
			return common.Address{}, pkgerrors.WithStack(err)
		}
		return crypto.PubkeyToAddress(*pk), nil
	default:
		return common.Address{}, fmt.Errorf("unexpected public key length %d", len(pub))
	}
}

// Open builds a KMS with the ethereum provider selected in the configuration
func Open(ctx context.Context, cfg config.KeyStore, awsCfg config.AWS) (*KMS, error) {
	var (
		kp  KeyProvider
		err error
	)
	switch cfg.Provider {
	case config.KeyStoreLocal:
		kp, err = NewLocalEthKeyProvider(KeyTypeEthereum, map[string]string{cfg.SignerKeyID: cfg.PrivateKey})
	case config.KeyStoreVault:
		var cli *api.Client
		cli, err = VaultClient(cfg.VaultAddress, cfg.VaultToken)
		if err == nil {
			kp = NewVaultEthKeyProvider(cli, KeyTypeEthereum, cfg.VaultKVMount, cfg.VaultKeyField)
		}
	case config.KeyStoreAWSSecretsManager:
		var c aws.Config
		c, err = LoadAWSConfig(ctx, awsCfg)
		if err == nil {
			kp = NewAwsSecretEthKeyProvider(c, KeyTypeEthereum, awsCfg)
		}
	case config.KeyStoreAWSKMS:
		var c aws.Config
		c, err = LoadAWSConfig(ctx, awsCfg)
		if err == nil {
			kp = NewAwsKMSEthKeyProvider(c, KeyTypeEthereum, awsCfg)
		}
	default:
		return nil, domain.NewConfigurationError("key store provider", fmt.Errorf("unknown provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, domain.NewConfigurationError("key store", err)
	}

	k := NewKMS()
	if err := k.RegisterKeyProvider(KeyTypeEthereum, kp); err != nil {
		return nil, err
	}
	return k, nil
}

// LoadAWSConfig loads the shared AWS configuration. Static credentials are used when set.
func LoadAWSConfig(ctx context.Context, c config.AWS) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// IsLocal reports whether the AWS clients must point to the local endpoint
func IsLocal(c config.AWS) bool {
	return strings.ToLower(c.Region) == "local"
}
