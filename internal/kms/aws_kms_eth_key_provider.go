package kms

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/log"
)

const aliasPrefix = "alias/"

type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

type awsKmsEthKeyProvider struct {
	keyType   KeyType
	kmsClient kmsAPI

	mu       sync.RWMutex
	pubCache map[string][]byte
}

// NewAwsKMSEthKeyProvider creates a provider for secp256k1 keys kept in AWS KMS. Key ids are
// KMS key ids, ARNs or alias names with or without the alias/ prefix.
func NewAwsKMSEthKeyProvider(cfg aws.Config, keyType KeyType, awsCfg config.AWS) KeyProvider {
	var options []func(*kms.Options)
	if IsLocal(awsCfg) {
		options = append(options, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
		})
	}
	return &awsKmsEthKeyProvider{
		keyType:   keyType,
		kmsClient: kms.NewFromConfig(cfg, options...),
		pubCache:  make(map[string][]byte),
	}
}

func kmsKeyID(id string) string {
	if strings.HasPrefix(id, "arn:") || strings.HasPrefix(id, aliasPrefix) || isUUID(id) {
		return id
	}
	return aliasPrefix + id
}

func isUUID(s string) bool {
	const uuidLen = 36
	return len(s) == uuidLen && strings.Count(s, "-") == 4
}

// PublicKey returns the uncompressed public key for keyID
func (p *awsKmsEthKeyProvider) PublicKey(ctx context.Context, keyID KeyID) ([]byte, error) {
	if keyID.Type != p.keyType {
		return nil, ErrIncorrectKeyType
	}
	id := kmsKeyID(keyID.ID)

	p.mu.RLock()
	cached, ok := p.pubCache[id]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	out, err := p.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	pk, err := DecodeAWSETHPubKey(ctx, out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	pub := crypto.FromECDSAPub(pk)

	p.mu.Lock()
	p.pubCache[id] = pub
	p.mu.Unlock()
	return pub, nil
}

// Sign signs the digest in KMS and converts the DER signature to the ethereum format
func (p *awsKmsEthKeyProvider) Sign(ctx context.Context, keyID KeyID, digest []byte) ([]byte, error) {
	pub, err := p.PublicKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	result, err := p.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(kmsKeyID(keyID.ID)),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		log.Error(ctx, "failed to sign payload", "err", err)
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	signature, err := DecodeAWSETHSig(ctx, result.Signature, pub, digest)
	if err != nil {
		log.Error(ctx, "failed to decode signature", "err", err)
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return signature, nil
}
