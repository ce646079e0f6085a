package kms

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/log"
)

type secretKeyMaterial struct {
	KeyType    string `json:"key_type"`
	PrivateKey string `json:"private_key"`
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type awsSecretEthKeyProvider struct {
	keyType KeyType
	sm      secretsManagerAPI
}

// NewAwsSecretEthKeyProvider reads signer keys from AWS Secrets Manager. The secret named by the
// key id holds either the bare hex key or a JSON document with a private_key field.
func NewAwsSecretEthKeyProvider(cfg aws.Config, keyType KeyType, awsCfg config.AWS) KeyProvider {
	var options []func(*secretsmanager.Options)
	if IsLocal(awsCfg) {
		options = append(options, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
		})
	}
	return &awsSecretEthKeyProvider{keyType: keyType, sm: secretsmanager.NewFromConfig(cfg, options...)}
}

func (a *awsSecretEthKeyProvider) privateKeyHex(ctx context.Context, keyID KeyID) (string, error) {
	if keyID.Type != a.keyType {
		return "", errors.WithStack(ErrIncorrectKeyType)
	}
	out, err := a.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(keyID.ID)})
	if err != nil {
		log.Error(ctx, "error getting secret value", "err", err, "keyID", keyID.ID)
		return "", errors.WithStack(err)
	}
	value := strings.TrimSpace(aws.ToString(out.SecretString))
	if strings.HasPrefix(value, "{") {
		var material secretKeyMaterial
		if err := json.Unmarshal([]byte(value), &material); err != nil {
			return "", errors.WithStack(err)
		}
		if material.KeyType != "" && !strings.EqualFold(material.KeyType, "ethereum") && KeyType(material.KeyType) != a.keyType {
			return "", errors.WithStack(ErrIncorrectKeyType)
		}
		value = material.PrivateKey
	}
	return value, nil
}

func (a *awsSecretEthKeyProvider) PublicKey(ctx context.Context, keyID KeyID) ([]byte, error) {
	h, err := a.privateKeyHex(ctx, keyID)
	if err != nil {
		return nil, err
	}
	pk, err := decodeETHPrivateKeyHex(h)
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSAPub(&pk.PublicKey), nil
}

func (a *awsSecretEthKeyProvider) Sign(ctx context.Context, keyID KeyID, digest []byte) ([]byte, error) {
	h, err := a.privateKeyHex(ctx, keyID)
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
