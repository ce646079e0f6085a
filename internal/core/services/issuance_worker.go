package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/intergov/notary/internal/codec"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
	"github.com/intergov/notary/internal/pubsub"
	"github.com/intergov/notary/internal/syncttlmap"
)

// Outcome of a processed queue message
type Outcome string

// Outcomes. Only Retry leaves the message on the queue.
const (
	OutcomeIssued        Outcome = "issued"
	OutcomeAlreadyIssued Outcome = "already_issued"
	OutcomeDropped       Outcome = "dropped"
	OutcomeRetry         Outcome = "retry"
)

// IssuanceWorkerConfig tunes the polling loop
type IssuanceWorkerConfig struct {
	PendingBucket string
	IssuedBucket  string
	BatchSize     int
	Visibility    time.Duration
	PollInterval  time.Duration
}

// IssuanceWorker consumes the notarization queue and anchors the credentials it references
type IssuanceWorker struct {
	queue     ports.Queue
	blobs     ports.BlobStore
	codec     ports.CredentialCodec
	ledger    ports.LedgerGateway
	creds     ports.CredentialRepository
	mirror    ports.ContentMirror
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	cfg       IssuanceWorkerConfig
	inFlight  *syncttlmap.TTLMap
}

// NewIssuanceWorker returns a worker. mirror and publisher are optional.
func NewIssuanceWorker(
	queue ports.Queue,
	blobs ports.BlobStore,
	credentialCodec ports.CredentialCodec,
	ledger ports.LedgerGateway,
	creds ports.CredentialRepository,
	mirror ports.ContentMirror,
	publisher pubsub.Publisher,
	m *metrics.Metrics,
	cfg IssuanceWorkerConfig,
) *IssuanceWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &IssuanceWorker{
		queue:     queue,
		blobs:     blobs,
		codec:     credentialCodec,
		ledger:    ledger,
		creds:     creds,
		mirror:    mirror,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		inFlight:  syncttlmap.New(cfg.Visibility),
	}
}

// Run polls the queue until ctx is cancelled
func (w *IssuanceWorker) Run(ctx context.Context) {
	log.Info(ctx, "issuance worker started", "batch", w.cfg.BatchSize, "visibility", w.cfg.Visibility)
	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			log.Error(ctx, "receiving notarization messages", "err", err)
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info(ctx, "issuance worker stopped")
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// ProcessBatch leases up to BatchSize messages and processes them concurrently
func (w *IssuanceWorker) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := w.queue.Receive(ctx, w.cfg.BatchSize, w.cfg.Visibility)
	if err != nil {
		return 0, err
	}
	var g errgroup.Group
	g.SetLimit(w.cfg.BatchSize)
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			outcome := w.Process(ctx, msg)
			w.metrics.IncQueueMessage(string(outcome))
			return nil
		})
	}
	_ = g.Wait()
	return len(msgs), nil
}

// Process handles one queue message. The message is deleted unless some record needs a retry.
func (w *IssuanceWorker) Process(ctx context.Context, msg domain.QueueMessage) Outcome {
	ctx = log.With(ctx, "messageID", msg.ID, "receiveCount", msg.ReceiveCount)
	envs, err := domain.EnvelopesFromMessage(msg)
	if err != nil {
		log.Error(ctx, "dropping unreadable queue message", "err", err)
		w.delete(ctx, msg)
		return OutcomeDropped
	}

	outcome := OutcomeIssued
	for _, env := range envs {
		o := w.processEnvelope(log.With(ctx, "key", env.BlobKey), env)
		if o == OutcomeRetry {
			outcome = OutcomeRetry
		} else if outcome != OutcomeRetry && o != OutcomeIssued {
			outcome = o
		}
	}
	if outcome != OutcomeRetry {
		w.delete(ctx, msg)
	}
	return outcome
}

func (w *IssuanceWorker) delete(ctx context.Context, msg domain.QueueMessage) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		// the message comes back after the visibility timeout, processing is idempotent
		log.Warn(ctx, "deleting queue message", "err", err)
	}
}

func (w *IssuanceWorker) processEnvelope(ctx context.Context, env domain.NotarizationEnvelope) Outcome {
	claim := uuid.New()
	if !w.inFlight.Claim(env.BlobKey, claim) {
		log.Info(ctx, "credential is being anchored by another message")
		return OutcomeRetry
	}
	defer w.inFlight.Release(env.BlobKey, claim)

	issued, err := w.blobs.Exists(ctx, w.cfg.IssuedBucket, env.BlobKey)
	if err != nil {
		log.Warn(ctx, "checking issued store", "err", err)
		return OutcomeRetry
	}
	if issued {
		log.Info(ctx, "credential already in the issued store")
		return OutcomeAlreadyIssued
	}

	bucket := env.Bucket
	if bucket == "" {
		bucket = w.cfg.PendingBucket
	}
	data, err := w.blobs.Get(ctx, bucket, env.BlobKey)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			log.Error(ctx, "dropping message for a missing blob", "bucket", bucket)
			return OutcomeDropped
		}
		log.Warn(ctx, "reading pending blob", "err", err)
		return OutcomeRetry
	}

	wrapped, doc, version, err := w.prepare(ctx, data)
	if err == nil {
		err = w.ledger.VerifyAnchorOwner(doc, version)
	}
	var root [32]byte
	if err == nil {
		root, err = codec.ProofRoot(doc, version)
	}
	if err != nil {
		return w.fail(ctx, env, err)
	}

	alreadyIssued, err := w.ledger.IsIssued(ctx, root)
	if err != nil {
		log.Warn(ctx, "querying anchor contract", "err", err)
		return OutcomeRetry
	}
	receipt := &domain.AnchorReceipt{Status: domain.AnchorSuccess}
	outcome := OutcomeAlreadyIssued
	if !alreadyIssued {
		receipt, err = w.ledger.Issue(ctx, root)
		switch {
		case errors.Is(err, domain.ErrAlreadyIssued):
			receipt = &domain.AnchorReceipt{Status: domain.AnchorSuccess}
		case err != nil:
			w.metrics.IncAnchor(anchorOutcome(err))
			return w.fail(ctx, env, err)
		default:
			outcome = OutcomeIssued
			w.metrics.IncAnchor("success")
			w.ledger.OnMessageProcessed(ctx)
		}
	}

	if err := w.blobs.Put(ctx, w.cfg.IssuedBucket, env.BlobKey, wrapped); err != nil {
		log.Warn(ctx, "writing issued store", "err", err)
		return OutcomeRetry
	}
	w.finish(ctx, env, receipt, hex.EncodeToString(root[:]), wrapped)
	log.Info(ctx, "credential anchored", "tx", receipt.TxHash, "outcome", outcome)
	return outcome
}

// prepare returns the wrapped bytes to anchor, wrapping the document when needed
func (w *IssuanceWorker) prepare(ctx context.Context, data []byte) ([]byte, map[string]any, domain.SchemaVersion, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, nil, "", domain.NewDocumentError("pending blob is not a json object", err)
	}
	version, err := w.codec.DetectVersion(doc)
	if err != nil {
		return nil, nil, "", err
	}
	if codec.IsWrapped(doc) {
		if _, err := w.codec.Unwrap(ctx, data); err != nil {
			return nil, nil, "", err
		}
		return data, doc, version, nil
	}
	wrapped, err := w.codec.Wrap(ctx, doc, version)
	if err != nil {
		return nil, nil, "", err
	}
	var wrappedDoc map[string]any
	if err := json.Unmarshal(wrapped, &wrappedDoc); err != nil {
		return nil, nil, "", domain.NewTransientError("decode wrapped document", err)
	}
	return wrapped, wrappedDoc, version, nil
}

// fail maps err to an outcome. Document errors are terminal for the credential.
func (w *IssuanceWorker) fail(ctx context.Context, env domain.NotarizationEnvelope, err error) Outcome {
	if !domain.IsDocumentError(err) && !domain.IsIntegrityError(err) {
		log.Warn(ctx, "notarization will be retried", "err", err)
		return OutcomeRetry
	}
	log.Error(ctx, "dropping credential", "err", err)
	w.metrics.IncCredential("failed")
	cred, lookupErr := w.creds.GetByBlobKey(ctx, env.BlobKey)
	if lookupErr != nil {
		if !errors.Is(lookupErr, domain.ErrCredentialNotFound) {
			log.Warn(ctx, "looking up credential", "err", lookupErr)
		}
		return OutcomeDropped
	}
	if err := w.creds.UpdateStatus(ctx, cred.ID, domain.CredentialFailed, err.Error()); err != nil {
		log.Error(ctx, "updating credential status", "err", err, "id", cred.ID)
	}
	w.history(ctx, cred, "anchor", "anchoring rejected", err)
	return OutcomeDropped
}

func (w *IssuanceWorker) finish(ctx context.Context, env domain.NotarizationEnvelope, receipt *domain.AnchorReceipt, root string, wrapped []byte) {
	var cid string
	if w.mirror != nil {
		var err error
		if cid, err = w.mirror.Add(ctx, wrapped); err != nil {
			log.Warn(ctx, "mirroring issued credential", "err", err)
		}
	}

	event := &pubsub.CredentialAnchoredEvent{BlobKey: env.BlobKey, TxHash: receipt.TxHash}
	cred, err := w.creds.GetByBlobKey(ctx, env.BlobKey)
	switch {
	case err == nil:
		event.CredentialID = cred.ID.String()
		if err := w.creds.MarkAnchored(ctx, cred.ID, *receipt, root, cid); err != nil {
			log.Error(ctx, "marking credential anchored", "err", err, "id", cred.ID)
		}
		w.history(ctx, cred, "anchor", fmt.Sprintf("anchored in %s", receipt.TxHash), nil)
		w.metrics.IncCredential("anchored")
	case errors.Is(err, domain.ErrCredentialNotFound):
		log.Debug(ctx, "anchored document has no credential record")
	default:
		log.Warn(ctx, "looking up credential", "err", err)
	}

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, pubsub.EventCredentialAnchored, event); err != nil {
			log.Warn(ctx, "publishing anchored event", "err", err)
		}
	}
}

func (w *IssuanceWorker) history(ctx context.Context, cred *domain.Credential, step, msg string, err error) {
	if err := w.creds.AppendHistory(ctx, cred.ID, domain.NewHistoryEntry(step, msg, err)); err != nil {
		log.Error(ctx, "appending credential history", "err", err, "id", cred.ID)
	}
}

func anchorOutcome(err error) string {
	if domain.IsDocumentError(err) {
		return "rejected"
	}
	return "timeout"
}
