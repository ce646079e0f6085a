package nodeclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
	pkghttp "github.com/intergov/notary/pkg/http"
)

const (
	hubModeSubscribe   = "subscribe"
	hubModeUnsubscribe = "unsubscribe"
	documentFormField  = "document"
)

// Client talks to the document, message and subscription apis of a counterpart node
type Client struct {
	document     *resty.Client
	message      *resty.Client
	subscription *resty.Client
	auth         ports.AuthProvider
	metrics      *metrics.Metrics
}

// New returns a node client. httpClient is shared by the three apis.
func New(cfg config.Node, auth ports.AuthProvider, httpClient *http.Client, m *metrics.Metrics) *Client {
	mk := func(base string) *resty.Client {
		return resty.NewWithClient(httpClient).SetBaseURL(base).SetTimeout(cfg.Timeout)
	}
	return &Client{
		document:     mk(cfg.DocumentAPIURL),
		message:      mk(cfg.MessageAPIURL),
		subscription: mk(cfg.SubscriptionAPIURL),
		auth:         auth,
		metrics:      m,
	}
}

type postDocumentResponse struct {
	Multihash string `json:"multihash"`
}

// PostMessage posts msg and returns the message as stored by the node
func (c *Client) PostMessage(ctx context.Context, msg domain.MessagePayload) (*domain.MessagePayload, error) {
	h, err := c.auth.MessageAuthHeader(ctx)
	if err != nil {
		return nil, domain.NewTransientError("message api auth", err)
	}
	var out domain.MessagePayload
	defer c.metrics.ObserveRemote("node", time.Now())
	resp, err := c.message.R().
		SetContext(ctx).
		SetHeader(h.Name, h.Value).
		SetBody(msg).
		SetResult(&out).
		Post("/message")
	if err := check("post message", resp, err); err != nil {
		return nil, err
	}
	log.Debug(ctx, "message posted", "senderRef", out.SenderRef, "subject", msg.Subject)
	return &out, nil
}

// RetrieveMessage returns the node view of the message identified by senderRef
func (c *Client) RetrieveMessage(ctx context.Context, senderRef string) (*domain.MessagePayload, error) {
	h, err := c.auth.MessageAuthHeader(ctx)
	if err != nil {
		return nil, domain.NewTransientError("message api auth", err)
	}
	var out domain.MessagePayload
	defer c.metrics.ObserveRemote("node", time.Now())
	resp, err := c.message.R().
		SetContext(ctx).
		SetHeader(h.Name, h.Value).
		SetPathParam("senderRef", senderRef).
		SetResult(&out).
		Get("/message/{senderRef}")
	if err := checkTransient("retrieve message", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostDocument uploads data for receiver and returns its content hash
func (c *Client) PostDocument(ctx context.Context, receiver string, data []byte) (string, error) {
	h, err := c.auth.DocumentAuthHeader(ctx)
	if err != nil {
		return "", domain.NewTransientError("document api auth", err)
	}
	var out postDocumentResponse
	defer c.metrics.ObserveRemote("node", time.Now())
	resp, err := c.document.R().
		SetContext(ctx).
		SetHeader(h.Name, h.Value).
		SetPathParam("receiver", receiver).
		SetFileReader(documentFormField, "document.json", bytes.NewReader(data)).
		SetResult(&out).
		Post("/countries/{receiver}")
	if err := check("post document", resp, err); err != nil {
		return "", err
	}
	if !ValidContentHash(out.Multihash) {
		return "", domain.NewDocumentError("post document", fmt.Errorf("node returned an invalid content hash %q", out.Multihash))
	}
	return out.Multihash, nil
}

// RetrieveDocument downloads the document stored under contentHash
func (c *Client) RetrieveDocument(ctx context.Context, contentHash string) ([]byte, error) {
	if !ValidContentHash(contentHash) {
		return nil, domain.NewDocumentError("retrieve document", fmt.Errorf("invalid content hash %q", contentHash))
	}
	h, err := c.auth.DocumentAuthHeader(ctx)
	if err != nil {
		return nil, domain.NewTransientError("document api auth", err)
	}
	defer c.metrics.ObserveRemote("node", time.Now())
	resp, err := c.document.R().
		SetContext(ctx).
		SetHeader(h.Name, h.Value).
		SetPathParam("hash", contentHash).
		Get("/{hash}")
	if err := check("retrieve document", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Subscribe registers callbackURL for topic notifications
func (c *Client) Subscribe(ctx context.Context, topic, callbackURL string) error {
	return c.hub(ctx, hubModeSubscribe, topic, callbackURL)
}

// Unsubscribe removes callbackURL from topic notifications
func (c *Client) Unsubscribe(ctx context.Context, topic, callbackURL string) error {
	return c.hub(ctx, hubModeUnsubscribe, topic, callbackURL)
}

func (c *Client) hub(ctx context.Context, mode, topic, callbackURL string) error {
	h, err := c.auth.SubscriptionAuthHeader(ctx)
	if err != nil {
		return domain.NewTransientError("subscription api auth", err)
	}
	defer c.metrics.ObserveRemote("node", time.Now())
	resp, err := c.subscription.R().
		SetContext(ctx).
		SetHeader(h.Name, h.Value).
		SetFormData(map[string]string{
			"hub.callback": callbackURL,
			"hub.topic":    topic,
			"hub.mode":     mode,
		}).
		Post("/subscriptions")
	return check(mode, resp, err)
}

// check maps transport failures and unexpected statuses to the error taxonomy.
// 4xx answers are DocumentErrors, everything else is transient.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return domain.NewTransientError(op, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	}
	respErr := responseError(resp)
	if respErr.IsClientError() {
		return domain.NewDocumentError(op, respErr)
	}
	return domain.NewTransientError(op, respErr)
}

// checkTransient is check for reads whose failures are always retried by the caller
func checkTransient(op string, resp *resty.Response, err error) error {
	err = check(op, resp, err)
	if domain.IsDocumentError(err) {
		return domain.NewTransientError(op, responseError(resp))
	}
	return err
}

func responseError(resp *resty.Response) *pkghttp.ResponseError {
	return &pkghttp.ResponseError{StatusCode: resp.StatusCode(), Body: pkghttp.TruncateBody(resp.Body())}
}
