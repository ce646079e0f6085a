package services

import (
	"context"
	"time"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
)

// Notarizer writes wrapped credentials to the pending bucket and notifies the notarization queue.
// The blob store does not notify on put, so the queue message is always sent explicitly.
type Notarizer struct {
	blobs  ports.BlobStore
	queue  ports.Queue
	bucket string
	now    func() time.Time
}

// NewNotarizer returns a Notarizer writing to bucket
func NewNotarizer(blobs ports.BlobStore, queue ports.Queue, bucket string) *Notarizer {
	return &Notarizer{blobs: blobs, queue: queue, bucket: bucket, now: time.Now}
}

// Enqueue stores wrapped under {date}/{logicalID}.json and sends the notification
func (n *Notarizer) Enqueue(ctx context.Context, logicalID string, wrapped []byte) (*domain.NotarizationEnvelope, error) {
	at := n.now()
	key := domain.PendingBlobKey(at, logicalID)
	if err := n.blobs.Put(ctx, n.bucket, key, wrapped); err != nil {
		return nil, domain.NewTransientError("enqueue: store blob", err)
	}
	body, err := domain.NewS3Notification(n.bucket, key).Marshal()
	if err != nil {
		return nil, domain.NewTransientError("enqueue: encode notification", err)
	}
	if err := n.queue.Send(ctx, body); err != nil {
		return nil, domain.NewTransientError("enqueue: notify", err)
	}
	log.Info(ctx, "credential enqueued for notarization", "key", key)
	return &domain.NotarizationEnvelope{Bucket: n.bucket, BlobKey: key, EnqueuedAt: at}, nil
}
