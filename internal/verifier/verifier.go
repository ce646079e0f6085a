package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
	pkghttp "github.com/intergov/notary/pkg/http"
)

const (
	fileField    = "file"
	fileName     = "credential.json"
	minThreshold = 1
)

// ProofChecker posts wrapped credentials to the remote verification service
type ProofChecker struct {
	client   *pkghttp.Client
	endpoint string
	metrics  *metrics.Metrics
}

// NewProofChecker returns a checker for the service at endpoint
func NewProofChecker(client *pkghttp.Client, endpoint string, m *metrics.Metrics) *ProofChecker {
	return &ProofChecker{client: client, endpoint: strings.TrimRight(endpoint, "/"), metrics: m}
}

// Check returns the aspects reported by the service
func (p *ProofChecker) Check(ctx context.Context, wrapped []byte) ([]domain.VerificationFragment, error) {
	if p.endpoint == "" {
		return nil, domain.NewConfigurationError("proof checker", errors.New("verifier endpoint is not configured"))
	}
	defer p.metrics.ObserveRemote("verifier", time.Now())
	resp, err := p.client.PostFile(ctx, p.endpoint, fileField, fileName, wrapped)
	if err != nil {
		var re *pkghttp.ResponseError
		if errors.As(err, &re) && re.IsClientError() {
			return nil, domain.NewDocumentError("proof check", err)
		}
		return nil, domain.NewTransientError("proof check", err)
	}
	var fragments []domain.VerificationFragment
	if err := json.Unmarshal(resp, &fragments); err != nil {
		return nil, domain.NewTransientError("proof check", fmt.Errorf("unexpected verifier response: %s", pkghttp.TruncateBody(resp)))
	}
	return fragments, nil
}

// CredentialVerifier unwraps a credential, has its proof checked and classifies the aspects
type CredentialVerifier struct {
	codec     ports.CredentialCodec
	checker   ports.ProofChecker
	threshold int
}

// New returns a CredentialVerifier. threshold is the minimum number of evaluated aspects of a valid credential.
func New(codec ports.CredentialCodec, checker ports.ProofChecker, threshold int) *CredentialVerifier {
	if threshold < minThreshold {
		threshold = minThreshold
	}
	return &CredentialVerifier{codec: codec, checker: checker, threshold: threshold}
}

// Verify returns the outcome of one verification attempt. Only transient failures are returned as errors,
// content problems are reported through the outcome status.
func (v *CredentialVerifier) Verify(ctx context.Context, wrapped []byte) (*domain.VerificationOutcome, error) {
	if _, err := v.codec.Unwrap(ctx, wrapped); err != nil {
		if domain.IsDocumentError(err) {
			log.Info(ctx, "credential can not be unwrapped", "err", err)
			return &domain.VerificationOutcome{Status: domain.VerificationError, Reason: err.Error()}, nil
		}
		return nil, err
	}

	fragments, err := v.checker.Check(ctx, wrapped)
	if err != nil {
		if domain.IsDocumentError(err) {
			return &domain.VerificationOutcome{Status: domain.VerificationError, Reason: err.Error()}, nil
		}
		return nil, err
	}

	status, reason := domain.ClassifyFragments(fragments, v.threshold)
	log.Debug(ctx, "credential verified", "status", status, "aspects", len(fragments))
	return &domain.VerificationOutcome{Status: status, Reason: reason, Fragments: fragments}, nil
}
