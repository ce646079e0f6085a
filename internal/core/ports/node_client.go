package ports

import (
	"context"

	"github.com/intergov/notary/internal/core/domain"
)

// AuthProvider returns the bearer credential required by each counterpart node api
type AuthProvider interface {
	DocumentAuthHeader(ctx context.Context) (domain.AuthHeader, error)
	MessageAuthHeader(ctx context.Context) (domain.AuthHeader, error)
	SubscriptionAuthHeader(ctx context.Context) (domain.AuthHeader, error)
}

// NodeClient talks to a counterpart jurisdiction node
type NodeClient interface {
	PostMessage(ctx context.Context, msg domain.MessagePayload) (*domain.MessagePayload, error)
	RetrieveMessage(ctx context.Context, senderRef string) (*domain.MessagePayload, error)
	PostDocument(ctx context.Context, receiver string, data []byte) (string, error)
	RetrieveDocument(ctx context.Context, contentHash string) ([]byte, error)
	Subscribe(ctx context.Context, topic, callbackURL string) error
	Unsubscribe(ctx context.Context, topic, callbackURL string) error
}
