package codec

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/core/domain"
	pkghttp "github.com/intergov/notary/pkg/http"
)

const coo = `{
	"$template": {"name": "COO", "type": "EMBEDDED_RENDERER", "url": "https://renderer.example.com"},
	"issuers": [{"name": "Chamber", "documentStore": "0x8Fc57204c35fb9317D91285eF52D6b892EC08cD3", "identityProof": {"type": "DNS-TXT", "location": "example.com"}}],
	"certificateOfOrigin": {"id": "COO-1", "isPreferential": true, "weight": 12.5, "remarks": null},
	"attachments": [{"filename": "invoice.pdf", "type": "application/pdf", "data": "JVBERi0="}]
}`

func salt(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = salt(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = salt(item)
		}
		return out
	case string:
		return uuid.NewString() + ":string:" + t
	case float64:
		return uuid.NewString() + ":number:" + strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return uuid.NewString() + ":boolean:" + strconv.FormatBool(t)
	default:
		return uuid.NewString() + ":null:null"
	}
}

func wrapDocument(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	data := salt(doc)
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	root := hex.EncodeToString(crypto.Keccak256(raw))
	return map[string]any{
		"version": string(domain.SchemaVersionOAV2),
		"data":    data,
		"signature": map[string]any{
			"type":       "SHA3MerkleProof",
			"targetHash": root,
			"proof":      []any{},
			"merkleRoot": root,
		},
	}
}

func newWrapServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req serviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		doc, _ := req.Document.(map[string]any)
		var out any
		switch r.URL.Path {
		case wrapPath:
			out = wrapDocument(t, doc)
		case unwrapPath:
			out = UnsaltData(doc["data"])
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func parse(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	srv := newWrapServer(t)
	defer srv.Close()
	c := New(pkghttp.NewClient(http.Client{}), srv.URL+"/")
	ctx := context.Background()

	doc := parse(t, coo)
	wrapped, err := c.Wrap(ctx, doc, domain.SchemaVersionOAV2)
	require.NoError(t, err)

	unwrapped, err := c.Unwrap(ctx, wrapped)
	require.NoError(t, err)
	assert.Equal(t, doc, unwrapped)

	local, err := New(pkghttp.NewClient(http.Client{}), "").Unwrap(ctx, wrapped)
	require.NoError(t, err)
	assert.Equal(t, doc, local)
}

func TestWrapRejectsWrappedDocument(t *testing.T) {
	c := New(pkghttp.NewClient(http.Client{}), "http://127.0.0.1:1")
	_, err := c.Wrap(context.Background(), wrapDocument(t, parse(t, coo)), domain.SchemaVersionOAV2)
	assert.ErrorIs(t, err, domain.ErrAlreadyWrapped)
	assert.True(t, domain.IsDocumentError(err))
}

func TestUnwrapRejectsPlainDocument(t *testing.T) {
	c := New(pkghttp.NewClient(http.Client{}), "")
	_, err := c.Unwrap(context.Background(), []byte(coo))
	assert.ErrorIs(t, err, domain.ErrNotWrapped)
}

func TestWrapErrorClassification(t *testing.T) {
	type testConfig struct {
		name      string
		status    int
		document  bool
		transient bool
	}
	for _, tc := range []testConfig{
		{name: "bad request", status: http.StatusBadRequest, document: true},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, document: true},
		{name: "server error", status: http.StatusInternalServerError, transient: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, transient: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := New(pkghttp.NewClient(http.Client{}), srv.URL).Wrap(context.Background(), parse(t, coo), domain.SchemaVersionOAV2)
			require.Error(t, err)
			assert.Equal(t, tc.document, domain.IsDocumentError(err))
			assert.Equal(t, tc.transient, domain.IsTransientError(err))
		})
	}
}

func TestWrapWithoutEndpoint(t *testing.T) {
	_, err := New(pkghttp.NewClient(http.Client{}), "").Wrap(context.Background(), parse(t, coo), domain.SchemaVersionOAV2)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestDetectVersion(t *testing.T) {
	v, err := DetectVersion(map[string]any{"version": "open-attestation/2.0"})
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaVersionOAV2, v)

	_, err = DetectVersion(map[string]any{})
	assert.ErrorIs(t, err, domain.ErrMissingVersion)

	_, err = DetectVersion(map[string]any{"version": "https://example.com/4.0"})
	assert.ErrorIs(t, err, domain.ErrUnknownVersion)

	_, err = DetectVersion(map[string]any{"version": 2})
	assert.ErrorIs(t, err, domain.ErrUnknownVersion)
}

func TestProofRootAndAnchorSource(t *testing.T) {
	wrapped := wrapDocument(t, parse(t, coo))

	root, err := ProofRoot(wrapped, domain.SchemaVersionOAV2)
	require.NoError(t, err)
	assert.Equal(t, wrapped["signature"].(map[string]any)["merkleRoot"], hex.EncodeToString(root[:]))

	src, err := AnchorSource(wrapped, domain.SchemaVersionOAV2)
	require.NoError(t, err)
	assert.Equal(t, "0x8Fc57204c35fb9317D91285eF52D6b892EC08cD3", src)

	v3 := map[string]any{
		"credentialSubject":       map[string]any{"id": "x"},
		"openAttestationMetadata": map[string]any{"proof": map[string]any{"type": "OpenAttestationProofMethod", "value": "0xabc"}},
		"proof":                   map[string]any{"merkleRoot": "0x" + hex.EncodeToString(root[:])},
	}
	src, err = AnchorSource(v3, domain.SchemaVersionOAV3)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", src)
	root3, err := ProofRoot(v3, domain.SchemaVersionOAV3)
	require.NoError(t, err)
	assert.Equal(t, root, root3)

	_, err = ProofRoot(map[string]any{}, domain.SchemaVersionOAV2)
	assert.True(t, domain.IsDocumentError(err))
}

func TestUnsaltData(t *testing.T) {
	in := map[string]any{
		"a": "3f1a0c7e-8d2b-4c1e-9f5a-2b6c7d8e9f01:number:42",
		"b": []any{"3f1a0c7e-8d2b-4c1e-9f5a-2b6c7d8e9f01:boolean:false", "plain"},
		"c": "3f1a0c7e-8d2b-4c1e-9f5a-2b6c7d8e9f01:string:with:colons",
		"d": "3f1a0c7e-8d2b-4c1e-9f5a-2b6c7d8e9f01:undefined:undefined",
	}
	out := UnsaltData(in).(map[string]any)
	assert.Equal(t, 42.0, out["a"])
	assert.Equal(t, []any{false, "plain"}, out["b"])
	assert.Equal(t, "with:colons", out["c"])
	assert.Nil(t, out["d"])
	assert.Equal(t, "3f1a0c7e-8d2b-4c1e-9f5a-2b6c7d8e9f01:number:42", in["a"])
}
