package nodeclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/intergov/notary/internal/cache"
	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
)

const bearerPrefix = "Bearer "

// StaticAuthProvider returns the same header for every api
type StaticAuthProvider struct {
	header domain.AuthHeader
}

// NewStaticAuthProvider returns a provider for a fixed header
func NewStaticAuthProvider(name, value string) *StaticAuthProvider {
	return &StaticAuthProvider{header: domain.AuthHeader{Name: name, Value: value}}
}

// DocumentAuthHeader returns the fixed header
func (p *StaticAuthProvider) DocumentAuthHeader(context.Context) (domain.AuthHeader, error) {
	return p.header, nil
}

// MessageAuthHeader returns the fixed header
func (p *StaticAuthProvider) MessageAuthHeader(context.Context) (domain.AuthHeader, error) {
	return p.header, nil
}

// SubscriptionAuthHeader returns the fixed header
func (p *StaticAuthProvider) SubscriptionAuthHeader(context.Context) (domain.AuthHeader, error) {
	return p.header, nil
}

// OIDCAuthProvider obtains client credentials tokens from the token endpoint advertised by the issuer.
// Every api has its own scope.
type OIDCAuthProvider struct {
	issuer       string
	clientID     string
	clientSecret string
	scopes       map[string]string
	httpClient   *http.Client

	mu       sync.Mutex
	tokenURL string
}

// Scope names
const (
	scopeDocument     = "document"
	scopeMessage      = "message"
	scopeSubscription = "subscription"
)

// NewOIDCAuthProvider returns a provider for cfg. Discovery happens on the first token request.
func NewOIDCAuthProvider(cfg config.Node, httpClient *http.Client) *OIDCAuthProvider {
	return &OIDCAuthProvider{
		issuer:       cfg.OIDCIssuer,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes: map[string]string{
			scopeDocument:     cfg.DocumentScope,
			scopeMessage:      cfg.MessageScope,
			scopeSubscription: cfg.SubscriptionScope,
		},
		httpClient: httpClient,
	}
}

// DocumentAuthHeader returns a token for the document api
func (p *OIDCAuthProvider) DocumentAuthHeader(ctx context.Context) (domain.AuthHeader, error) {
	return p.token(ctx, scopeDocument)
}

// MessageAuthHeader returns a token for the message api
func (p *OIDCAuthProvider) MessageAuthHeader(ctx context.Context) (domain.AuthHeader, error) {
	return p.token(ctx, scopeMessage)
}

// SubscriptionAuthHeader returns a token for the subscription api
func (p *OIDCAuthProvider) SubscriptionAuthHeader(ctx context.Context) (domain.AuthHeader, error) {
	return p.token(ctx, scopeSubscription)
}

func (p *OIDCAuthProvider) discover(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokenURL != "" {
		return p.tokenURL, nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.httpClient), p.issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	p.tokenURL = provider.Endpoint().TokenURL
	return p.tokenURL, nil
}

func (p *OIDCAuthProvider) token(ctx context.Context, api string) (domain.AuthHeader, error) {
	tokenURL, err := p.discover(ctx)
	if err != nil {
		return domain.AuthHeader{}, err
	}
	cc := clientcredentials.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{p.scopes[api]},
	}
	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient))
	if err != nil {
		return domain.AuthHeader{}, fmt.Errorf("%s token: %w", api, err)
	}
	h := domain.AuthHeader{Name: "Authorization", Value: bearerPrefix + tok.AccessToken}
	if !tok.Expiry.IsZero() {
		h.ExpiresIn = int(time.Until(tok.Expiry).Seconds())
	}
	return h, nil
}

// CachingAuthProvider memoizes the headers of an inner provider until they are about to expire
type CachingAuthProvider struct {
	inner  ports.AuthProvider
	cache  cache.Cache
	margin time.Duration
	prefix string
}

// NewCachingAuthProvider decorates inner. Headers are dropped margin before their expiry and
// headers without expiry are never cached.
func NewCachingAuthProvider(inner ports.AuthProvider, c cache.Cache, margin time.Duration, prefix string) *CachingAuthProvider {
	return &CachingAuthProvider{inner: inner, cache: c, margin: margin, prefix: prefix}
}

// DocumentAuthHeader returns the cached document api header
func (p *CachingAuthProvider) DocumentAuthHeader(ctx context.Context) (domain.AuthHeader, error) {
	return p.get(ctx, scopeDocument, p.inner.DocumentAuthHeader)
}

// MessageAuthHeader returns the cached message api header
func (p *CachingAuthProvider) MessageAuthHeader(ctx context.Context) (domain.AuthHeader, error) {
	return p.get(ctx, scopeMessage, p.inner.MessageAuthHeader)
}

// SubscriptionAuthHeader returns the cached subscription api header
func (p *CachingAuthProvider) SubscriptionAuthHeader(ctx context.Context) (domain.AuthHeader, error) {
	return p.get(ctx, scopeSubscription, p.inner.SubscriptionAuthHeader)
}

func (p *CachingAuthProvider) get(ctx context.Context, api string, fetch func(context.Context) (domain.AuthHeader, error)) (domain.AuthHeader, error) {
	key := p.prefix + "node-auth:" + api
	var h domain.AuthHeader
	if p.cache.Get(ctx, key, &h) {
		return h, nil
	}
	h, err := fetch(ctx)
	if err != nil {
		return h, err
	}
	ttl := time.Duration(h.ExpiresIn)*time.Second - p.margin
	if ttl > 0 {
		if err := p.cache.Set(ctx, key, h, ttl); err != nil {
			log.Warn(ctx, "caching node auth header", "err", err, "api", api)
		}
	}
	return h, nil
}

// NewAuthProvider builds the provider selected by cfg.AuthMode
func NewAuthProvider(cfg config.Node, c cache.Cache, httpClient *http.Client) (ports.AuthProvider, error) {
	switch cfg.AuthMode {
	case config.NodeAuthStatic:
		return NewStaticAuthProvider(cfg.StaticHeader, cfg.StaticValue), nil
	case config.NodeAuthOIDC:
		return NewCachingAuthProvider(NewOIDCAuthProvider(cfg, httpClient), c, cfg.TokenSafetyMargin, ""), nil
	}
	return nil, domain.NewConfigurationError("node auth mode", fmt.Errorf("unknown mode %q", cfg.AuthMode))
}
