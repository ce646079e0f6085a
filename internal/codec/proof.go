package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/intergov/notary/internal/core/domain"
)

// ProofRoot returns the merkle root embedded in a wrapped document
func ProofRoot(wrapped map[string]any, version domain.SchemaVersion) ([32]byte, error) {
	var root [32]byte
	var section map[string]any
	switch version {
	case domain.SchemaVersionOAV2:
		section, _ = wrapped["signature"].(map[string]any)
	case domain.SchemaVersionOAV3:
		section, _ = wrapped["proof"].(map[string]any)
	default:
		return root, domain.NewDocumentError(version.String(), domain.ErrUnknownVersion)
	}
	raw, _ := section["merkleRoot"].(string)
	if raw == "" {
		return root, domain.NewDocumentError("proof root", errors.New("merkleRoot not found"))
	}
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil || len(b) != len(root) {
		return root, domain.NewDocumentError("proof root", fmt.Errorf("invalid merkleRoot %q", raw))
	}
	copy(root[:], b)
	return root, nil
}

// AnchorSource returns the contract address the document declares as its anchor
func AnchorSource(wrapped map[string]any, version domain.SchemaVersion) (string, error) {
	switch version {
	case domain.SchemaVersionOAV2:
		data, ok := UnsaltData(wrapped["data"]).(map[string]any)
		if !ok {
			return "", domain.NewDocumentError("anchor source", domain.ErrNotWrapped)
		}
		issuers, _ := data["issuers"].([]any)
		if len(issuers) == 0 {
			return "", domain.NewDocumentError("anchor source", errors.New("no issuers"))
		}
		issuer, _ := issuers[0].(map[string]any)
		for _, field := range []string{"documentStore", "tokenRegistry", "certificateStore"} {
			if addr, ok := issuer[field].(string); ok && addr != "" {
				return addr, nil
			}
		}
		return "", domain.NewDocumentError("anchor source", errors.New("issuer has no document store"))
	case domain.SchemaVersionOAV3:
		meta, _ := wrapped["openAttestationMetadata"].(map[string]any)
		proof, _ := meta["proof"].(map[string]any)
		if addr, ok := proof["value"].(string); ok && addr != "" {
			return addr, nil
		}
		return "", domain.NewDocumentError("anchor source", errors.New("openAttestationMetadata.proof.value not found"))
	}
	return "", domain.NewDocumentError(version.String(), domain.ErrUnknownVersion)
}
