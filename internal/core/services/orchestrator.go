package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"golang.org/x/sync/errgroup"

	"github.com/intergov/notary/internal/codec"
	"github.com/intergov/notary/internal/common"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
	"github.com/intergov/notary/internal/pubsub"
	"github.com/intergov/notary/internal/qrlink"
)

// History steps of the issuance pipeline
const (
	StepRender  = "render"
	StepWrap    = "wrap"
	StepEncrypt = "encrypt"
	StepEnqueue = "enqueue"
	StepVerify  = "verify"
	StepLodge   = "lodge"
)

// OrchestratorConfig are the jurisdiction settings of the producer
type OrchestratorConfig struct {
	SenderCountry string
	SenderOrgID   string
	// ServerURL is the public address of this service, holders download encrypted documents from it
	ServerURL     string
	VerifierUIURL string
	CallbackURL   string
}

// Orchestrator runs the issuance pipeline of a credential
type Orchestrator struct {
	creds      ports.CredentialRepository
	messages   ports.NodeMessageRepository
	codec      ports.CredentialCodec
	cipher     ports.SelectiveDisclosureCipher
	notarizer  ports.Notarizer
	reconciler ports.VerificationReconciler
	node       ports.NodeClient
	qrStore    *QrStoreService
	publisher  pubsub.Publisher
	metrics    *metrics.Metrics
	cfg        OrchestratorConfig
}

// NewOrchestrator returns an Orchestrator. node and publisher are optional.
func NewOrchestrator(
	creds ports.CredentialRepository,
	messages ports.NodeMessageRepository,
	credentialCodec ports.CredentialCodec,
	cipher ports.SelectiveDisclosureCipher,
	notarizer ports.Notarizer,
	reconciler ports.VerificationReconciler,
	node ports.NodeClient,
	qrStore *QrStoreService,
	publisher pubsub.Publisher,
	m *metrics.Metrics,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		creds:      creds,
		messages:   messages,
		codec:      credentialCodec,
		cipher:     cipher,
		notarizer:  notarizer,
		reconciler: reconciler,
		node:       node,
		qrStore:    qrStore,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
	}
}

// Issue renders, wraps, encrypts and enqueues a credential, then lodges it with the receiver node.
// It returns once the credential is enqueued. Lodging failures are recorded in the history only.
func (o *Orchestrator) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	if req.ShortID == "" {
		return nil, domain.NewDocumentError("issue", fmt.Errorf("short id is required"))
	}
	id := uuid.New()
	subject := domain.SubjectID(o.cfg.SenderCountry, o.cfg.SenderOrgID, req.ShortID)
	ctx = log.With(ctx, "credentialID", id.String(), "subject", subject)

	doc, version, err := o.render(req)
	if err != nil {
		return nil, err
	}
	var jsonDoc pgtype.JSONB
	if err := jsonDoc.Set(doc); err != nil {
		return nil, domain.NewDocumentError("render", err)
	}
	cred := &domain.Credential{
		ID:                 id,
		ShortID:            req.ShortID,
		SubjectID:          subject,
		SchemaVersion:      version,
		Document:           jsonDoc,
		Status:             domain.CredentialNotSent,
		VerificationStatus: domain.VerificationNotStarted,
	}
	if err := o.creds.Save(ctx, cred); err != nil {
		return nil, err
	}
	o.history(ctx, id, StepRender, "credential rendered", nil)

	wrapped, err := o.codec.Wrap(ctx, doc, version)
	if err != nil {
		o.failed(ctx, id, StepWrap, err)
		return nil, err
	}
	var wrappedDoc map[string]any
	if err := json.Unmarshal(wrapped, &wrappedDoc); err != nil {
		o.failed(ctx, id, StepWrap, err)
		return nil, domain.NewTransientError("decode wrapped document", err)
	}
	root, err := codec.ProofRoot(wrappedDoc, version)
	if err != nil {
		o.failed(ctx, id, StepWrap, err)
		return nil, err
	}
	o.history(ctx, id, StepWrap, "credential wrapped", nil)

	key, err := o.cipher.GenerateKey()
	if err != nil {
		o.failed(ctx, id, StepEncrypt, err)
		return nil, err
	}

	result := &domain.IssueResult{CredentialID: id, SubjectID: subject}
	var g errgroup.Group
	g.Go(func() error {
		blobKey, err := o.sideChannels(ctx, id, wrapped, key, hex.EncodeToString(root[:]))
		result.BlobKey = blobKey
		return err
	})
	if req.Receiver != "" && o.node != nil {
		g.Go(func() error {
			result.SenderRef = o.lodge(ctx, id, subject, req.Receiver, wrapped)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.QRCode, result.Link, err = o.qrPayloads(id, key)
	if err != nil {
		return nil, err
	}
	o.metrics.IncCredential("enqueued")
	log.Info(ctx, "credential issued", "blobKey", result.BlobKey, "senderRef", result.SenderRef)
	return result, nil
}

// render returns the canonical credential document with the jurisdiction fields merged in
func (o *Orchestrator) render(req domain.IssueRequest) (map[string]any, domain.SchemaVersion, error) {
	doc := common.CopyMap(req.Document)
	if doc == nil {
		doc = map[string]any{}
	}
	if codec.IsWrapped(doc) {
		return nil, "", domain.NewDocumentError("render", domain.ErrAlreadyWrapped)
	}
	version := req.SchemaVersion
	if version == "" {
		v, err := o.codec.DetectVersion(doc)
		if err != nil {
			return nil, "", err
		}
		version = v
	}
	doc["version"] = version.String()
	doc["id"] = domain.SanitizeID(req.ShortID)
	return doc, version, nil
}

// sideChannels encrypts, enqueues and schedules the verification of a wrapped credential
func (o *Orchestrator) sideChannels(ctx context.Context, id uuid.UUID, wrapped, key []byte, root string) (string, error) {
	enc, err := o.cipher.Encrypt(wrapped, key)
	if err != nil {
		o.failed(ctx, id, StepEncrypt, err)
		return "", err
	}
	if err := o.creds.SaveEncrypted(ctx, id, enc); err != nil {
		o.failed(ctx, id, StepEncrypt, err)
		return "", err
	}
	if o.qrStore != nil {
		if err := o.qrStore.Store(ctx, id, enc, DefaultQRBodyTTL); err != nil {
			log.Warn(ctx, "caching encrypted credential", "err", err, "id", id)
			o.history(ctx, id, StepEncrypt, "encrypted credential not cached, qr reads use the record", err)
		}
	}
	o.history(ctx, id, StepEncrypt, "credential encrypted", nil)

	env, err := o.notarizer.Enqueue(ctx, id.String(), wrapped)
	if err != nil {
		o.failed(ctx, id, StepEnqueue, err)
		return "", err
	}
	if err := o.creds.AttachBlob(ctx, id, env.BlobKey, root); err != nil {
		o.failed(ctx, id, StepEnqueue, err)
		return "", err
	}
	if err := o.creds.UpdateStatus(ctx, id, domain.CredentialPending, ""); err != nil {
		return "", err
	}
	o.history(ctx, id, StepEnqueue, "credential enqueued as "+env.BlobKey, nil)
	if o.publisher != nil {
		event := &pubsub.CredentialEnqueuedEvent{CredentialID: id.String(), BlobKey: env.BlobKey}
		if err := o.publisher.Publish(ctx, pubsub.EventCredentialEnqueued, event); err != nil {
			log.Warn(ctx, "publishing enqueued event", "err", err)
		}
	}

	if err := o.reconciler.Start(ctx, id); err != nil {
		// the credential is enqueued, verification can be started again with a one shot check
		log.Error(ctx, "scheduling verification", "err", err)
		o.history(ctx, id, StepVerify, "verification not scheduled", err)
	} else {
		o.history(ctx, id, StepVerify, "verification scheduled", nil)
	}
	return env.BlobKey, nil
}

// lodge posts the credential and its message to the receiver node and subscribes to updates.
// Failures are logged and recorded, never returned.
func (o *Orchestrator) lodge(ctx context.Context, id uuid.UUID, subject, receiver string, wrapped []byte) string {
	contentHash, err := o.node.PostDocument(ctx, receiver, wrapped)
	if err != nil {
		log.Error(ctx, "posting document to receiver node", "err", err, "receiver", receiver)
		o.history(ctx, id, StepLodge, "document not posted", err)
		return ""
	}
	msg := domain.MessagePayload{
		Sender:    strings.ToUpper(o.cfg.SenderCountry),
		Receiver:  strings.ToUpper(receiver),
		Subject:   subject,
		Obj:       contentHash,
		Predicate: domain.PredicateCoOIssued,
	}
	posted, err := o.node.PostMessage(ctx, msg)
	if err != nil {
		log.Error(ctx, "posting message to receiver node", "err", err, "receiver", receiver)
		o.history(ctx, id, StepLodge, "message not posted", err)
		return ""
	}

	credID := id.String()
	record := &domain.NodeMessage{
		SenderRef:    posted.SenderRef,
		CredentialID: &credID,
		Subject:      subject,
		Status:       domain.NodeMessageSent,
		Body:         *posted,
	}
	if err := o.messages.Save(ctx, record); err != nil {
		log.Error(ctx, "saving node message", "err", err, "senderRef", posted.SenderRef)
	}

	for _, topic := range []string{subject, posted.SenderRef} {
		if topic == "" {
			continue
		}
		if err := o.node.Subscribe(ctx, topic, o.cfg.CallbackURL); err != nil {
			log.Warn(ctx, "subscribing to node updates", "err", err, "topic", topic)
		}
	}
	o.history(ctx, id, StepLodge, "lodged with "+msg.Receiver+" as "+posted.SenderRef, nil)
	return posted.SenderRef
}

// qrPayloads returns the inline qr payload and the verifier link for the credential
func (o *Orchestrator) qrPayloads(id uuid.UUID, key []byte) (string, string, error) {
	payload := domain.QRPayload{
		URI:              o.qrStore.ToURL(o.cfg.ServerURL, id),
		Key:              hex.EncodeToString(key),
		PermittedActions: []string{domain.QRPermittedView},
		Redirect:         o.cfg.VerifierUIURL,
	}
	inline, err := qrlink.NewDeepLink(payload)
	if err != nil {
		return "", "", err
	}
	link, err := qrlink.NewUniversal(o.cfg.VerifierUIURL, payload)
	if err != nil {
		return "", "", err
	}
	return inline, link, nil
}

func (o *Orchestrator) failed(ctx context.Context, id uuid.UUID, step string, cause error) {
	log.Error(ctx, "issuance step failed", "step", step, "err", cause)
	o.metrics.IncCredential("failed")
	if err := o.creds.UpdateStatus(ctx, id, domain.CredentialFailed, cause.Error()); err != nil {
		log.Error(ctx, "updating credential status", "err", err)
	}
	if err := o.creds.UpdateVerification(ctx, id, domain.VerificationError, cause.Error(), 0); err != nil {
		log.Error(ctx, "updating verification status", "err", err)
	}
	o.history(ctx, id, step, step+" failed", cause)
}

func (o *Orchestrator) history(ctx context.Context, id uuid.UUID, step, msg string, err error) {
	if err := o.creds.AppendHistory(ctx, id, domain.NewHistoryEntry(step, msg, err)); err != nil {
		log.Error(ctx, "appending credential history", "err", err)
	}
}
