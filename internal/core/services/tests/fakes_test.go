package services_tests

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/codec"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/pubsub"
)

const (
	pendingBucket  = "pending"
	issuedBucket   = "issued"
	incomingBucket = "incoming"
	storeAddress   = "0x9E8Bb3e7A1bbB1Bd2cC6e3A1b0E3A2D9C8c1E9F4"
)

type credentialRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Credential
}

func newCredentialRepo() *credentialRepo {
	return &credentialRepo{items: map[uuid.UUID]*domain.Credential{}}
}

func (r *credentialRepo) Save(_ context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *credentialRepo) get(id uuid.UUID) (*domain.Credential, error) {
	c, ok := r.items[id]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return c, nil
}

func (r *credentialRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (r *credentialRepo) GetByBlobKey(_ context.Context, blobKey string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.BlobKey == blobKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCredentialNotFound
}

func (r *credentialRepo) List(_ context.Context, filter *ports.CredentialFilter) ([]*domain.Credential, uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Credential
	for _, c := range r.items {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, uint(len(out)), nil
}

func (r *credentialRepo) update(id uuid.UUID, f func(c *domain.Credential)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	f(c)
	return nil
}

func (r *credentialRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.CredentialStatus, reason string) error {
	return r.update(id, func(c *domain.Credential) { c.Status, c.StatusReason = status, reason })
}

func (r *credentialRepo) AttachBlob(_ context.Context, id uuid.UUID, blobKey, proofRoot string) error {
	return r.update(id, func(c *domain.Credential) { c.BlobKey, c.ProofRoot = blobKey, proofRoot })
}

func (r *credentialRepo) MarkAnchored(_ context.Context, id uuid.UUID, receipt domain.AnchorReceipt, proofRoot, cid string) error {
	return r.update(id, func(c *domain.Credential) {
		c.Status, c.TxHash, c.ProofRoot, c.IPFSCID = domain.CredentialAnchored, receipt.TxHash, proofRoot, cid
	})
}

func (r *credentialRepo) UpdateVerification(_ context.Context, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int) error {
	return r.update(id, func(c *domain.Credential) {
		if c.VerificationStatus.CanMoveTo(status, false) {
			c.VerificationStatus, c.VerificationReason, c.VerificationAttempts = status, reason, attempts
		}
	})
}

func (r *credentialRepo) RestartVerification(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(c *domain.Credential) {
		if c.VerificationStatus.CanMoveTo(domain.VerificationPending, true) {
			c.VerificationStatus, c.VerificationReason, c.VerificationAttempts = domain.VerificationPending, "", 0
		}
	})
}

func (r *credentialRepo) SaveEncrypted(_ context.Context, id uuid.UUID, doc *domain.EncryptedDocument) error {
	return r.update(id, func(c *domain.Credential) { c.Encrypted = doc })
}

func (r *credentialRepo) AppendHistory(_ context.Context, id uuid.UUID, entry domain.HistoryEntry) error {
	return r.update(id, func(c *domain.Credential) { c.History = append(c.History, entry) })
}

func (r *credentialRepo) steps(id uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, h := range r.items[id].History {
		out = append(out, h.Step)
	}
	return out
}

type messageRepo struct {
	mu    sync.Mutex
	items map[string]*domain.NodeMessage
}

func newMessageRepo() *messageRepo {
	return &messageRepo{items: map[string]*domain.NodeMessage{}}
}

func (r *messageRepo) Save(_ context.Context, m *domain.NodeMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.items[m.SenderRef] = &cp
	return nil
}

func (r *messageRepo) GetBySenderRef(_ context.Context, senderRef string) (*domain.NodeMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[senderRef]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *messageRepo) UpdateStatus(_ context.Context, senderRef string, entry domain.NodeMessageHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[senderRef]
	if !ok {
		return domain.ErrMessageNotFound
	}
	m.Status = entry.Status
	m.History = append(m.History, entry)
	return nil
}

type incomingRepo struct {
	mu   sync.Mutex
	docs []*domain.IncomingDocument
}

func (r *incomingRepo) Save(_ context.Context, doc *domain.IncomingDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return nil
}

type blobStore struct {
	mu     sync.Mutex
	items  map[string][]byte
	putErr error
}

func newBlobStore() *blobStore {
	return &blobStore{items: map[string][]byte{}}
}

func (b *blobStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.items[bucket+"/"+key]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return data, nil
}

func (b *blobStore) Put(_ context.Context, bucket, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.items[bucket+"/"+key] = data
	return nil
}

func (b *blobStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.items[bucket+"/"+key]
	return ok, nil
}

func (b *blobStore) count(bucket string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k := range b.items {
		if len(k) > len(bucket) && k[:len(bucket)+1] == bucket+"/" {
			n++
		}
	}
	return n
}

type memoryQueue struct {
	mu      sync.Mutex
	seq     int
	pending []domain.QueueMessage
	deleted []string
}

func (q *memoryQueue) Receive(_ context.Context, maxMessages int, _ time.Duration) ([]domain.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := maxMessages
	if n > len(q.pending) {
		n = len(q.pending)
	}
	out := make([]domain.QueueMessage, n)
	copy(out, q.pending[:n])
	for i := range out {
		out[i].ReceiveCount++
	}
	return out, nil
}

func (q *memoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	for i, m := range q.pending {
		if m.ReceiptHandle == receiptHandle {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (q *memoryQueue) Send(_ context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.pending = append(q.pending, domain.QueueMessage{
		ID:            fmt.Sprintf("m-%d", q.seq),
		ReceiptHandle: fmt.Sprintf("r-%d", q.seq),
		Body:          body,
		SentAt:        time.Now(),
	})
	return nil
}

func (q *memoryQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

type fakeLedger struct {
	mu        sync.Mutex
	issued    map[[32]byte]bool
	issueErr  error
	issueCall int
	processed int

	// when set, Issue signals started and blocks until release is closed
	started chan struct{}
	release chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{issued: map[[32]byte]bool{}}
}

func (l *fakeLedger) Issue(_ context.Context, root [32]byte) (*domain.AnchorReceipt, error) {
	if l.release != nil {
		l.started <- struct{}{}
		<-l.release
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issueCall++
	if l.issueErr != nil {
		return nil, l.issueErr
	}
	l.issued[root] = true
	return &domain.AnchorReceipt{TxHash: fmt.Sprintf("0xtx%d", l.issueCall), Status: domain.AnchorSuccess, BlockRef: 1}, nil
}

func (l *fakeLedger) IsIssued(_ context.Context, root [32]byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issued[root], nil
}

func (l *fakeLedger) VerifyAnchorOwner(wrapped map[string]any, version domain.SchemaVersion) error {
	addr, err := codec.AnchorSource(wrapped, version)
	if err != nil {
		return err
	}
	if addr != storeAddress {
		return domain.NewDocumentError(addr, domain.ErrAnchorMismatch)
	}
	return nil
}

func (l *fakeLedger) OnMessageProcessed(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed++
}

func (l *fakeLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issueCall
}

// fakeCodec wraps v2 documents without salting, the merkle root is the sha256 of the data
type fakeCodec struct {
	wrapErr error
}

func (c *fakeCodec) Wrap(_ context.Context, document map[string]any, version domain.SchemaVersion) ([]byte, error) {
	if c.wrapErr != nil {
		return nil, c.wrapErr
	}
	if codec.IsWrapped(document) {
		return nil, domain.NewDocumentError("wrap", domain.ErrAlreadyWrapped)
	}
	data, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return json.Marshal(map[string]any{
		"version":   version.String(),
		"data":      document,
		"signature": map[string]any{"type": "SHA3MerkleProof", "merkleRoot": hex.EncodeToString(sum[:])},
	})
}

func (c *fakeCodec) Unwrap(_ context.Context, wrapped []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(wrapped, &doc); err != nil {
		return nil, domain.NewDocumentError("unwrap", err)
	}
	if !codec.IsWrapped(doc) {
		return nil, domain.NewDocumentError("unwrap", domain.ErrNotWrapped)
	}
	data, _ := doc["data"].(map[string]any)
	return data, nil
}

func (c *fakeCodec) DetectVersion(document map[string]any) (domain.SchemaVersion, error) {
	return codec.DetectVersion(document)
}

type scheduled struct {
	task  string
	delay time.Duration
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduled
	cancelled []string
}

func (s *fakeScheduler) ScheduleRetry(_ context.Context, taskID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduled{task: taskID, delay: delay})
	return nil
}

func (s *fakeScheduler) ClaimDue(context.Context, time.Time, int) ([]string, error) {
	return nil, nil
}

func (s *fakeScheduler) Cancel(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, taskID)
	return nil
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.scheduled))
	for _, sc := range s.scheduled {
		out = append(out, sc.delay)
	}
	return out
}

// scriptedVerifier returns its outcomes in order and repeats the last one
type scriptedVerifier struct {
	mu       sync.Mutex
	outcomes []verification
	calls    int
}

type verification struct {
	status domain.VerificationStatus
	err    error
}

func (v *scriptedVerifier) Verify(context.Context, []byte) (*domain.VerificationOutcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.calls
	if i >= len(v.outcomes) {
		i = len(v.outcomes) - 1
	}
	v.calls++
	o := v.outcomes[i]
	if o.err != nil {
		return nil, o.err
	}
	return &domain.VerificationOutcome{Status: o.status, Reason: string(o.status)}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []pubsub.Event
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type nodeClientMock struct {
	mock.Mock
}

func (m *nodeClientMock) PostMessage(ctx context.Context, msg domain.MessagePayload) (*domain.MessagePayload, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessagePayload), args.Error(1)
}

func (m *nodeClientMock) RetrieveMessage(ctx context.Context, senderRef string) (*domain.MessagePayload, error) {
	args := m.Called(ctx, senderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessagePayload), args.Error(1)
}

func (m *nodeClientMock) PostDocument(ctx context.Context, receiver string, data []byte) (string, error) {
	args := m.Called(ctx, receiver, data)
	return args.String(0), args.Error(1)
}

func (m *nodeClientMock) RetrieveDocument(ctx context.Context, contentHash string) ([]byte, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *nodeClientMock) Subscribe(ctx context.Context, topic, callbackURL string) error {
	return m.Called(ctx, topic, callbackURL).Error(0)
}

func (m *nodeClientMock) Unsubscribe(ctx context.Context, topic, callbackURL string) error {
	return m.Called(ctx, topic, callbackURL).Error(0)
}

// coDocument is a v2 certificate of origin whose issuer anchors in documentStore
func coDocument(documentStore string) map[string]any {
	return map[string]any{
		"version": "https://schema.openattestation.com/2.0/schema.json",
		"issuers": []any{map[string]any{"name": "Department of Trade", "documentStore": documentStore}},
		"certificateOfOrigin": map[string]any{
			"id":            "CO-2024-001",
			"issueDateTime": "2024-03-01T10:00:00Z",
		},
	}
}

func mustHex(t require.TestingT, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
