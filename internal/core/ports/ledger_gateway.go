package ports

import (
	"context"

	"github.com/intergov/notary/internal/core/domain"
)

// LedgerGateway drives the anchoring contract
type LedgerGateway interface {
	// Issue anchors merkleRoot. A TransientError means the receipt did not arrive in time,
	// a DocumentError means the transaction was rejected on chain.
	Issue(ctx context.Context, merkleRoot [32]byte) (*domain.AnchorReceipt, error)
	// IsIssued asks the contract whether merkleRoot is already anchored
	IsIssued(ctx context.Context, merkleRoot [32]byte) (bool, error)
	// VerifyAnchorOwner checks the document declares this gateway contract as its anchor
	VerifyAnchorOwner(wrapped map[string]any, version domain.SchemaVersion) error
	// OnMessageProcessed counts a processed message and refreshes the fee when the cadence is hit
	OnMessageProcessed(ctx context.Context)
}
