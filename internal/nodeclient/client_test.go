package nodeclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/cache"
	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
)

const validHash = "QmRAQfHNnknnz8S936M2yJGhhVNA6wXJ4jTRP3VXtptmmL"

func newTestClient(t *testing.T) *Client {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	cfg := config.Node{
		DocumentAPIURL:     "http://document.node",
		MessageAPIURL:      "http://message.node",
		SubscriptionAPIURL: "http://subscription.node",
		Timeout:            time.Second,
	}
	return New(cfg, NewStaticAuthProvider("Authorization", "Bearer static"), hc, nil)
}

func TestPostMessage(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://message.node/message",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer static", req.Header.Get("Authorization"))
			body, _ := io.ReadAll(req.Body)
			assert.Contains(t, string(body), `"predicate":"`+domain.PredicateCoOIssued+`"`)
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]string{
				"sender":     "AU",
				"receiver":   "SG",
				"subject":    "s-1",
				"obj":        validHash,
				"predicate":  domain.PredicateCoOIssued,
				"sender_ref": "ref-1",
				"status":     "pending",
			})
		})

	out, err := c.PostMessage(context.Background(), domain.MessagePayload{
		Sender: "AU", Receiver: "SG", Subject: "s-1", Obj: validHash, Predicate: domain.PredicateCoOIssued,
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", out.SenderRef)
	assert.Equal(t, "pending", out.Status)
}

func TestRetrieveMessageErrors(t *testing.T) {
	c := newTestClient(t)
	long := strings.Repeat("x", 1000)
	httpmock.RegisterResponder(http.MethodGet, "http://message.node/message/missing",
		httpmock.NewStringResponder(http.StatusNotFound, "not here"))
	httpmock.RegisterResponder(http.MethodGet, "http://message.node/message/broken",
		httpmock.NewStringResponder(http.StatusBadGateway, long))

	_, err := c.RetrieveMessage(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, domain.IsTransientError(err))
	assert.False(t, domain.IsDocumentError(err))
	assert.Contains(t, err.Error(), "not here")

	_, err = c.RetrieveMessage(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, domain.IsTransientError(err))
	assert.Less(t, len(err.Error()), len(long))
}

func TestPostDocument(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://document.node/countries/SG",
		func(req *http.Request) (*http.Response, error) {
			f, _, err := req.FormFile(documentFormField)
			require.NoError(t, err)
			b, _ := io.ReadAll(f)
			assert.Equal(t, `{"a":1}`, string(b))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"multihash": validHash})
		})

	hash, err := c.PostDocument(context.Background(), "SG", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, validHash, hash)
}

func TestPostDocumentInvalidHash(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://document.node/countries/SG",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{"multihash": "not-base58-0OIl"}))

	_, err := c.PostDocument(context.Background(), "SG", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, domain.IsDocumentError(err))
}

func TestRetrieveDocument(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://document.node/"+validHash,
		httpmock.NewStringResponder(http.StatusOK, `{"data":{}}`))

	b, err := c.RetrieveDocument(context.Background(), validHash)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{}}`, string(b))

	_, err = c.RetrieveDocument(context.Background(), "../etc/passwd")
	assert.True(t, domain.IsDocumentError(err))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSubscribe(t *testing.T) {
	c := newTestClient(t)
	var modes []string
	httpmock.RegisterResponder(http.MethodPost, "http://subscription.node/subscriptions",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			assert.Equal(t, "AU.UN.CEFACT", req.PostForm.Get("hub.topic"))
			assert.Equal(t, "http://me/callback", req.PostForm.Get("hub.callback"))
			modes = append(modes, req.PostForm.Get("hub.mode"))
			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})

	require.NoError(t, c.Subscribe(context.Background(), "AU.UN.CEFACT", "http://me/callback"))
	require.NoError(t, c.Unsubscribe(context.Background(), "AU.UN.CEFACT", "http://me/callback"))
	assert.Equal(t, []string{hubModeSubscribe, hubModeUnsubscribe}, modes)
}

func TestValidContentHash(t *testing.T) {
	assert.True(t, ValidContentHash(validHash))
	assert.False(t, ValidContentHash(""))
	assert.False(t, ValidContentHash("QmShort"))
	assert.False(t, ValidContentHash("0OIl"))
}

func TestOIDCAuthProviderCached(t *testing.T) {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	defer httpmock.DeactivateAndReset()

	const issuer = "https://auth.example"
	httpmock.RegisterResponder(http.MethodGet, issuer+"/.well-known/openid-configuration",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/keys",
			"userinfo_endpoint":      issuer + "/userinfo",
		}))
	httpmock.RegisterResponder(http.MethodPost, issuer+"/token",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"access_token": "tok-" + req.PostForm.Get("scope"),
				"token_type":   "bearer",
				"expires_in":   3600,
			})
		})

	cfg := config.Node{
		OIDCIssuer:        issuer,
		ClientID:          "id",
		ClientSecret:      "secret",
		DocumentScope:     "doc",
		MessageScope:      "msg",
		SubscriptionScope: "sub",
	}
	p := NewCachingAuthProvider(NewOIDCAuthProvider(cfg, hc), cache.NewMemoryCache(), 30*time.Second, "")
	ctx := context.Background()

	h, err := p.DocumentAuthHeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-doc", h.Value)
	_, err = p.DocumentAuthHeader(ctx)
	require.NoError(t, err)

	m, err := p.MessageAuthHeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-msg", m.Value)

	calls := httpmock.GetCallCountInfo()
	assert.Equal(t, 2, calls["POST "+issuer+"/token"])
	assert.Equal(t, 1, calls["GET "+issuer+"/.well-known/openid-configuration"])
}

func TestNewAuthProviderUnknownMode(t *testing.T) {
	_, err := NewAuthProvider(config.Node{AuthMode: "kerberos"}, cache.NewMemoryCache(), http.DefaultClient)
	assert.True(t, domain.IsConfigurationError(err))
}
