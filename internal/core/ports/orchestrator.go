package ports

import (
	"context"

	"github.com/intergov/notary/internal/core/domain"
)

// IssuanceOrchestrator runs the producer side pipeline of a credential
type IssuanceOrchestrator interface {
	Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error)
}

// Ingestor processes documents received from counterpart nodes
type Ingestor interface {
	Ingest(ctx context.Context, pointer domain.IncomingPointer) (*domain.IngestResult, error)
	HandleMessageUpdate(ctx context.Context, senderRef string, status domain.NodeMessageStatus, note string) error
}
