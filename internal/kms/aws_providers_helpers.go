package kms

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intergov/notary/internal/log"
)

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// DecodeAWSETHPubKey decodes the DER SubjectPublicKeyInfo returned by AWS KMS.
func DecodeAWSETHPubKey(_ context.Context, key []byte) (*ecdsa.PublicKey, error) {
	var info asn1EcPublicKey
	if _, err := asn1.Unmarshal(key, &info); err != nil {
		return nil, err
	}
	return crypto.UnmarshalPubkey(info.PublicKey.Bytes)
}

// DecodeAWSETHSig turns a DER signature into a 65 byte ethereum signature. S is normalised to the
// lower half of the curve order and V is chosen so that the signer recovers to pubKeyBytes.
func DecodeAWSETHSig(ctx context.Context, signature []byte, pubKeyBytes []byte, digest []byte) ([]byte, error) {
	var sig asn1EcSig
	if _, err := asn1.Unmarshal(signature, &sig); err != nil {
		return nil, err
	}

	n := crypto.S256().Params().N
	halfN := new(big.Int).Rsh(n, 1)
	s := new(big.Int).SetBytes(sig.S.Bytes)
	if s.Cmp(halfN) > 0 {
		sig.S.Bytes = new(big.Int).Sub(n, s).Bytes()
	}

	ethSig, err := recoverableSignature(pubKeyBytes, digest, sig.R.Bytes, sig.S.Bytes)
	if err != nil {
		log.Error(ctx, "failed to build recoverable signature", "err", err)
		return nil, err
	}
	if !crypto.VerifySignature(pubKeyBytes, digest, ethSig[:64]) {
		return nil, errors.New("signature verification failed")
	}
	return ethSig, nil
}

func recoverableSignature(expected []byte, digest []byte, r []byte, s []byte) ([]byte, error) {
	rs := append(padTo32(r), padTo32(s)...)
	for _, v := range []byte{0, 1} {
		candidate := append(append([]byte{}, rs...), v)
		recovered, err := crypto.Ecrecover(digest, candidate)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(recovered, expected) {
			return candidate, nil
		}
	}
	return nil, errors.New("can not reconstruct public key from sig")
}

func padTo32(buffer []byte) []byte {
	buffer = bytes.TrimLeft(buffer, "\x00")
	if len(buffer) >= 32 {
		return buffer
	}
	out := make([]byte, 32)
	copy(out[32-len(buffer):], buffer)
	return out
}
