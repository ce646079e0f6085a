package ports

import (
	"context"
	"time"

	"github.com/intergov/notary/internal/core/domain"
)

// Queue is an at least once delivery queue with a visibility timeout lease model
type Queue interface {
	Receive(ctx context.Context, maxMessages int, visibility time.Duration) ([]domain.QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
	Send(ctx context.Context, body string) error
}

// BlobStore is a key to bytes store split in buckets
type BlobStore interface {
	// Get returns domain.ErrBlobNotFound when the key does not exist
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// ContentMirror stores a content addressed copy of a document and returns its address
type ContentMirror interface {
	Add(ctx context.Context, data []byte) (string, error)
}

// Notarizer is the producer side of the notarization queue
type Notarizer interface {
	Enqueue(ctx context.Context, logicalID string, wrapped []byte) (*domain.NotarizationEnvelope, error)
}
