package verifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/core/domain"
	pkghttp "github.com/intergov/notary/pkg/http"
)

const sixAspects = `[
	{"type": "DOCUMENT_INTEGRITY", "name": "OpenAttestationHash", "status": "VALID", "data": true},
	{"type": "DOCUMENT_STATUS", "name": "OpenAttestationEthereumTokenRegistryStatus", "status": "SKIPPED", "reason": {"code": 4}},
	{"type": "DOCUMENT_STATUS", "name": "OpenAttestationEthereumDocumentStoreStatus", "status": "VALID", "data": {"issuedOnAll": true}},
	{"type": "DOCUMENT_STATUS", "name": "OpenAttestationDidSignedDocumentStatus", "status": "SKIPPED"},
	{"type": "ISSUER_IDENTITY", "name": "OpenAttestationDnsTxtIdentityProof", "status": "SKIPPED"},
	{"type": "ISSUER_IDENTITY", "name": "OpenAttestationDnsDidIdentityProof", "status": "SKIPPED"}
]`

type fakeCodec struct {
	err error
}

func (f fakeCodec) Wrap(context.Context, map[string]any, domain.SchemaVersion) ([]byte, error) {
	return nil, errors.New("not used")
}

func (f fakeCodec) Unwrap(context.Context, []byte) (map[string]any, error) {
	return map[string]any{}, f.err
}

func (f fakeCodec) DetectVersion(map[string]any) (domain.SchemaVersion, error) {
	return domain.SchemaVersionOAV2, nil
}

func checkerServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile(fileField)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		assert.Equal(t, `{"wrapped":true}`, string(b))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyValidWithSkippedAspects(t *testing.T) {
	srv := checkerServer(t, http.StatusOK, sixAspects)
	v := New(fakeCodec{}, NewProofChecker(pkghttp.NewClient(http.Client{}), srv.URL, nil), 2)

	out, err := v.Verify(context.Background(), []byte(`{"wrapped":true}`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationValid, out.Status)
	assert.Len(t, out.Fragments, 6)
}

func TestVerifyClassification(t *testing.T) {
	type testConfig struct {
		name string
		body string
		want domain.VerificationStatus
	}
	for _, tc := range []testConfig{
		{
			name: "one evaluated aspect is an error",
			body: `[{"name": "a", "status": "VALID"}, {"name": "b", "status": "SKIPPED"}]`,
			want: domain.VerificationError,
		},
		{
			name: "any invalid aspect",
			body: `[{"name": "a", "status": "VALID"}, {"name": "b", "status": "VALID"}, {"name": "c", "status": "INVALID"}]`,
			want: domain.VerificationInvalid,
		},
		{
			name: "two valid aspects",
			body: `[{"name": "a", "status": "VALID"}, {"name": "b", "status": "VALID"}]`,
			want: domain.VerificationValid,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := checkerServer(t, http.StatusOK, tc.body)
			v := New(fakeCodec{}, NewProofChecker(pkghttp.NewClient(http.Client{}), srv.URL, nil), 2)
			out, err := v.Verify(context.Background(), []byte(`{"wrapped":true}`))
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Status)
		})
	}
}

func TestVerifyRemoteFailures(t *testing.T) {
	srv := checkerServer(t, http.StatusServiceUnavailable, "busy")
	v := New(fakeCodec{}, NewProofChecker(pkghttp.NewClient(http.Client{}), srv.URL, nil), 2)
	_, err := v.Verify(context.Background(), []byte(`{"wrapped":true}`))
	assert.True(t, domain.IsTransientError(err))

	srv = checkerServer(t, http.StatusBadRequest, "not a document")
	v = New(fakeCodec{}, NewProofChecker(pkghttp.NewClient(http.Client{}), srv.URL, nil), 2)
	out, err := v.Verify(context.Background(), []byte(`{"wrapped":true}`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationError, out.Status)
}

func TestVerifyUnwrapFailure(t *testing.T) {
	v := New(fakeCodec{err: domain.NewDocumentError("unwrap", domain.ErrNotWrapped)}, NewProofChecker(pkghttp.NewClient(http.Client{}), "http://127.0.0.1:1", nil), 2)
	out, err := v.Verify(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationError, out.Status)
	assert.Contains(t, out.Reason, "not wrapped")
}
