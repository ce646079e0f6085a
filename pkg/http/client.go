package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/intergov/notary/internal/log"
)

const maxErrorBody = 256

// DefaultHTTPClientWithRetry http client with retry behavior.
var DefaultHTTPClientWithRetry = NewRetryClient(0, 3)

// ResponseError is returned when the remote service answers with a non 2xx status.
// Body is truncated for diagnostics.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("http request failed with status %d, body: %s", e.StatusCode, e.Body)
}

// IsClientError tells whether the remote service rejected the request itself
func (e *ResponseError) IsClientError() bool {
	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}

// TruncateBody limits a response body to a size suitable for error messages
func TruncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// Client represents default http client that can be used to send requests to third party services
type Client struct {
	base http.Client
}

// NewClient returns new instance of custom client
func NewClient(c http.Client) *Client {
	return &Client{
		base: c,
	}
}

// NewRetryClient returns a client that retries connection errors and 5xx responses up to retryMax times.
// A zero timeout means no timeout.
func NewRetryClient(timeout time.Duration, retryMax int) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	return NewClient(http.Client{
		Timeout:   timeout,
		Transport: &retryablehttp.RoundTripper{Client: rc},
	})
}

// Post send posts request to url with additional headers
func (c *Client) Post(ctx context.Context, url string, req []byte) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	request.Header.Add("Content-Type", "application/json")
	addRequestIDToHeader(ctx, request)

	return executeRequest(ctx, c, request)
}

// PostFile sends data as a multipart form file under field
func (c *Client) PostFile(ctx context.Context, url, field, filename string, data []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, err
	}
	request.Header.Add("Content-Type", w.FormDataContentType())
	addRequestIDToHeader(ctx, request)

	return executeRequest(ctx, c, request)
}

// Get send request to url with requestID headers
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	addRequestIDToHeader(ctx, req)

	return executeRequest(ctx, c, req)
}

// addRequestIDToHeader adds headers to request
func addRequestIDToHeader(ctx context.Context, r *http.Request) {
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		r.Header.Add(middleware.RequestIDHeader, requestID)
	}
}

// executeRequest contains common logic of request execution
func executeRequest(ctx context.Context, c *Client, r *http.Request) ([]byte, error) {
	resp, err := c.base.Do(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Error(ctx, "can not close body", "err", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ResponseError{StatusCode: resp.StatusCode, Body: TruncateBody(body)}
	}

	return body, nil
}
