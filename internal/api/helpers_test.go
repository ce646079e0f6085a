package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/health"
	"github.com/intergov/notary/internal/log"
)

const (
	authUser     = "user"
	authPassword = "password"
)

var cfg = config.Configuration{
	ServerURL:     "https://notary.test",
	HTTPBasicAuth: config.HTTPBasicAuth{User: authUser, Password: authPassword},
}

func getHandler(t *testing.T, services Services) http.Handler {
	t.Helper()
	ctx := log.NewContext(context.Background(), log.LevelDebug, log.OutputText, io.Discard)
	return NewServer(&cfg, services, health.New(), nil).Handler(ctx)
}

func do(handler http.Handler, req *http.Request, auth bool) *httptest.ResponseRecorder {
	if auth {
		req.SetBasicAuth(authUser, authPassword)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

type issuerMock struct {
	mock.Mock
}

func (m *issuerMock) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssueResult), args.Error(1)
}

type reconcilerMock struct {
	mock.Mock
}

func (m *reconcilerMock) Start(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *reconcilerMock) CheckNow(ctx context.Context, id uuid.UUID) (domain.VerificationStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.VerificationStatus), args.Error(1)
}

func (m *reconcilerMock) Reverify(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type extractorMock struct {
	mock.Mock
}

func (m *extractorMock) Extract(ctx context.Context, pdf []byte) ([]string, error) {
	args := m.Called(ctx, pdf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type ingestorMock struct {
	mock.Mock
}

func (m *ingestorMock) Ingest(ctx context.Context, pointer domain.IncomingPointer) (*domain.IngestResult, error) {
	args := m.Called(ctx, pointer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func (m *ingestorMock) HandleMessageUpdate(ctx context.Context, senderRef string, status domain.NodeMessageStatus, note string) error {
	return m.Called(ctx, senderRef, status, note).Error(0)
}

// credentialReader only answers the read methods
type credentialReader struct {
	ports.CredentialRepository
	creds map[uuid.UUID]*domain.Credential
}

func (r credentialReader) GetByID(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	c, ok := r.creds[id]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return c, nil
}

func (r credentialReader) List(_ context.Context, filter *ports.CredentialFilter) ([]*domain.Credential, uint, error) {
	out := make([]*domain.Credential, 0, len(r.creds))
	for _, c := range r.creds {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Verification != nil && c.VerificationStatus != *filter.Verification {
			continue
		}
		out = append(out, c)
	}
	return out, uint(len(out)), nil
}
