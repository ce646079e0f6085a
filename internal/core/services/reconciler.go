package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
	"github.com/intergov/notary/internal/pubsub"
)

// ReconcilerConfig is the verification retry schedule
type ReconcilerConfig struct {
	PendingBucket string
	IssuedBucket  string
	ShortDelay    time.Duration
	LongDelay     time.Duration
	ShortAttempts int
	MaxAttempts   int
	PollInterval  time.Duration
	BatchSize     int
}

// Reconciler drives the bounded verification of issued credentials
type Reconciler struct {
	creds     ports.CredentialRepository
	blobs     ports.BlobStore
	verifier  ports.CredentialVerifier
	scheduler ports.Scheduler
	metrics   *metrics.Metrics
	cfg       ReconcilerConfig
	now       func() time.Time
}

// NewReconciler returns a Reconciler
func NewReconciler(
	creds ports.CredentialRepository,
	blobs ports.BlobStore,
	verifier ports.CredentialVerifier,
	scheduler ports.Scheduler,
	m *metrics.Metrics,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Reconciler{
		creds:     creds,
		blobs:     blobs,
		verifier:  verifier,
		scheduler: scheduler,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start moves the credential to pending and schedules its first attempt.
// Credentials whose verification already started are left alone.
func (r *Reconciler) Start(ctx context.Context, id uuid.UUID) error {
	cred, err := r.creds.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cred.VerificationStatus != domain.VerificationNotStarted && cred.VerificationStatus != "" {
		log.Debug(ctx, "verification already started", "id", id, "status", cred.VerificationStatus)
		return nil
	}
	if err := r.creds.UpdateVerification(ctx, id, domain.VerificationPending, "", 0); err != nil {
		return err
	}
	return r.scheduler.ScheduleRetry(ctx, id.String(), r.cfg.ShortDelay)
}

// Delay returns the wait before the attempt following attempt number n
func (r *Reconciler) Delay(n int) time.Duration {
	if n < r.cfg.ShortAttempts {
		return r.cfg.ShortDelay
	}
	return r.cfg.LongDelay
}

// Reverify restarts the verification of a credential whatever its current status
func (r *Reconciler) Reverify(ctx context.Context, id uuid.UUID) error {
	if err := r.creds.RestartVerification(ctx, id); err != nil {
		return err
	}
	if err := r.creds.AppendHistory(ctx, id, domain.NewHistoryEntry(StepVerify, "re-verification requested", nil)); err != nil {
		return err
	}
	return r.scheduler.ScheduleRetry(ctx, id.String(), r.cfg.ShortDelay)
}

// Attempt runs one scheduled verification attempt and reschedules it when it can not conclude
func (r *Reconciler) Attempt(ctx context.Context, taskID string) error {
	id, err := uuid.Parse(taskID)
	if err != nil {
		log.Error(ctx, "dropping verification task with an invalid id", "task", taskID)
		return r.drop(ctx, taskID)
	}
	ctx = log.With(ctx, "credentialID", taskID)
	cred, err := r.creds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			log.Warn(ctx, "dropping verification task of an unknown credential")
			return r.drop(ctx, taskID)
		}
		return r.reschedule(ctx, id, 0, err)
	}
	if cred.VerificationStatus.IsTerminal() {
		return r.drop(ctx, taskID)
	}

	attempts := cred.VerificationAttempts + 1
	outcome, err := r.check(ctx, cred)
	if err == nil && !r.retryable(cred, outcome) {
		return r.finalize(ctx, id, outcome.Status, outcome.Reason, attempts)
	}
	if err == nil {
		err = errors.New(outcome.Reason)
	}
	if attempts >= r.cfg.MaxAttempts {
		log.Error(ctx, "verification attempts exhausted", "attempts", attempts, "err", err)
		return r.finalize(ctx, id, domain.VerificationFailed, "verification attempts exhausted: "+err.Error(), attempts)
	}
	if uerr := r.creds.UpdateVerification(ctx, id, domain.VerificationPending, err.Error(), attempts); uerr != nil {
		log.Warn(ctx, "recording verification attempt", "err", uerr)
	}
	return r.reschedule(ctx, id, attempts, err)
}

// retryable tells whether a concluded check must be repeated. A credential that is not anchored yet
// is expected to fail the issuance aspect.
func (r *Reconciler) retryable(cred *domain.Credential, outcome *domain.VerificationOutcome) bool {
	anchoring := cred.Status == domain.CredentialPending || cred.Status == domain.CredentialNotSent
	return outcome.Status == domain.VerificationInvalid && anchoring
}

// reschedule moves the task to its next due time. When this fails the task lease still expires,
// so the attempt is repeated later.
func (r *Reconciler) reschedule(ctx context.Context, id uuid.UUID, attempts int, cause error) error {
	delay := r.Delay(attempts)
	log.Info(ctx, "verification rescheduled", "attempts", attempts, "delay", delay, "reason", cause)
	return r.scheduler.ScheduleRetry(ctx, id.String(), delay)
}

func (r *Reconciler) drop(ctx context.Context, taskID string) error {
	if err := r.scheduler.Cancel(ctx, taskID); err != nil {
		log.Warn(ctx, "dropping verification task", "err", err, "task", taskID)
		return err
	}
	return nil
}

// CheckNow performs a single attempt. It never touches the scheduled chain: a conclusive result is
// written whatever the current status and the later terminal write wins, an inconclusive one is
// only recorded and left to the chain.
func (r *Reconciler) CheckNow(ctx context.Context, id uuid.UUID) (domain.VerificationStatus, error) {
	cred, err := r.creds.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	outcome, err := r.check(ctx, cred)
	if err != nil {
		return cred.VerificationStatus, err
	}
	if r.retryable(cred, outcome) {
		return cred.VerificationStatus, r.inconclusive(ctx, cred, outcome.Reason)
	}
	if err := r.record(ctx, id, outcome.Status, outcome.Reason, cred.VerificationAttempts); err != nil {
		return cred.VerificationStatus, err
	}
	return outcome.Status, nil
}

// inconclusive keeps the verification open and notes why the check could not conclude
func (r *Reconciler) inconclusive(ctx context.Context, cred *domain.Credential, reason string) error {
	log.Info(ctx, "verification inconclusive", "credentialID", cred.ID, "reason", reason)
	if cred.VerificationStatus == domain.VerificationPending {
		if err := r.creds.UpdateVerification(ctx, cred.ID, domain.VerificationPending, reason, cred.VerificationAttempts); err != nil {
			return err
		}
	}
	return r.creds.AppendHistory(ctx, cred.ID, domain.NewHistoryEntry(StepVerify, "verification inconclusive: "+reason, nil))
}

// check verifies the stored wrapped credential. Transient failures are returned as errors.
func (r *Reconciler) check(ctx context.Context, cred *domain.Credential) (*domain.VerificationOutcome, error) {
	wrapped, err := r.wrapped(ctx, cred)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return &domain.VerificationOutcome{Status: domain.VerificationError, Reason: "no wrapped credential to verify"}, nil
	}
	if err != nil {
		return nil, err
	}
	return r.verifier.Verify(ctx, wrapped)
}

func (r *Reconciler) wrapped(ctx context.Context, cred *domain.Credential) ([]byte, error) {
	if cred.BlobKey == "" {
		return nil, domain.ErrBlobNotFound
	}
	data, err := r.blobs.Get(ctx, r.cfg.IssuedBucket, cred.BlobKey)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return r.blobs.Get(ctx, r.cfg.PendingBucket, cred.BlobKey)
	}
	return data, err
}

// finalize writes a terminal status and ends the scheduled chain
func (r *Reconciler) finalize(ctx context.Context, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int) error {
	if err := r.record(ctx, id, status, reason, attempts); err != nil {
		return err
	}
	if err := r.scheduler.Cancel(ctx, id.String()); err != nil {
		log.Warn(ctx, "cancelling verification task", "err", err)
	}
	return nil
}

func (r *Reconciler) record(ctx context.Context, id uuid.UUID, status domain.VerificationStatus, reason string, attempts int) error {
	r.metrics.IncVerification(string(status))
	log.Info(ctx, "verification finished", "status", status, "reason", reason, "attempts", attempts)
	if err := r.creds.UpdateVerification(ctx, id, status, reason, attempts); err != nil {
		return err
	}
	return r.creds.AppendHistory(ctx, id, domain.NewHistoryEntry(StepVerify, "verification "+string(status), nil))
}

// RunOnce claims the due tasks and attempts them concurrently
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.scheduler.ClaimDue(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := r.Attempt(ctx, id); err != nil {
				log.Error(ctx, "verification attempt", "err", err, "task", id)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(ids), nil
}

// Run drains due tasks until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) {
	log.Info(ctx, "verification reconciler started")
	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			log.Error(ctx, "claiming verification tasks", "err", err)
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info(ctx, "verification reconciler stopped")
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// OnAnchored runs a one shot check of a credential whose anchoring just completed. Only a valid
// result is written, any other outcome is left to the scheduled chain since the checker may not
// see the anchoring block yet.
func (r *Reconciler) OnAnchored(ctx context.Context, id uuid.UUID) error {
	cred, err := r.creds.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cred.VerificationStatus.IsTerminal() {
		return nil
	}
	outcome, err := r.check(ctx, cred)
	if err != nil {
		log.Warn(ctx, "verification after anchoring", "err", err, "credentialID", id)
		return nil
	}
	if outcome.Status != domain.VerificationValid {
		return r.inconclusive(ctx, cred, outcome.Reason)
	}
	return r.record(ctx, id, outcome.Status, outcome.Reason, cred.VerificationAttempts)
}

// HandleAnchored is the pubsub.EventHandler of EventCredentialAnchored
func (r *Reconciler) HandleAnchored(ctx context.Context, msg pubsub.Message) error {
	var ev pubsub.CredentialAnchoredEvent
	if err := ev.Unmarshal(msg); err != nil {
		log.Error(ctx, "decoding anchored event", "err", err)
		return err
	}
	if ev.CredentialID == "" {
		return nil
	}
	id, err := uuid.Parse(ev.CredentialID)
	if err != nil {
		log.Warn(ctx, "anchored event with an invalid credential id", "id", ev.CredentialID)
		return nil
	}
	return r.OnAnchored(ctx, id)
}
