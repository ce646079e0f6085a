package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
	pkghttp "github.com/intergov/notary/pkg/http"
)

const (
	wrapPath   = "/document/wrap"
	unwrapPath = "/document/unwrap"
)

type serviceRequest struct {
	Document any           `json:"document"`
	Params   serviceParams `json:"params"`
}

type serviceParams struct {
	Version string `json:"version"`
}

// Codec wraps and unwraps documents through the remote proof generation service.
// Without an endpoint, unwrap falls back to the local unsalting transform and wrap is unavailable.
type Codec struct {
	client   *pkghttp.Client
	endpoint string
}

// New returns a Codec for the service at endpoint
func New(client *pkghttp.Client, endpoint string) *Codec {
	return &Codec{client: client, endpoint: strings.TrimRight(endpoint, "/")}
}

// Wrap returns the wrapped document exactly as produced by the service
func (c *Codec) Wrap(ctx context.Context, document map[string]any, version domain.SchemaVersion) ([]byte, error) {
	if IsWrapped(document) {
		return nil, domain.NewDocumentError("wrap", domain.ErrAlreadyWrapped)
	}
	if c.endpoint == "" {
		return nil, domain.NewConfigurationError("wrap", errors.New("codec endpoint is not configured"))
	}
	payload, err := json.Marshal(serviceRequest{Document: document, Params: serviceParams{Version: version.String()}})
	if err != nil {
		return nil, domain.NewDocumentError("wrap: encode document", err)
	}
	resp, err := c.client.Post(ctx, c.endpoint+wrapPath, payload)
	if err != nil {
		return nil, classify("wrap", err)
	}
	var wrapped map[string]any
	if err := json.Unmarshal(resp, &wrapped); err != nil || !IsWrapped(wrapped) {
		return nil, domain.NewTransientError("wrap", fmt.Errorf("unexpected wrap service response: %s", pkghttp.TruncateBody(resp)))
	}
	log.Debug(ctx, "document wrapped", "version", version)
	return resp, nil
}

// Unwrap returns the document without proof metadata
func (c *Codec) Unwrap(ctx context.Context, wrapped []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(wrapped, &doc); err != nil {
		return nil, domain.NewDocumentError("unwrap", err)
	}
	if !IsWrapped(doc) {
		return nil, domain.NewDocumentError("unwrap", domain.ErrNotWrapped)
	}
	version, err := c.DetectVersion(doc)
	if err != nil {
		return nil, err
	}
	if c.endpoint == "" {
		return UnwrapLocal(doc, version)
	}

	payload, err := json.Marshal(serviceRequest{Document: doc, Params: serviceParams{Version: version.String()}})
	if err != nil {
		return nil, domain.NewDocumentError("unwrap: encode document", err)
	}
	resp, err := c.client.Post(ctx, c.endpoint+unwrapPath, payload)
	if err != nil {
		return nil, classify("unwrap", err)
	}
	var out map[string]any
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, domain.NewTransientError("unwrap", fmt.Errorf("unexpected unwrap service response: %s", pkghttp.TruncateBody(resp)))
	}
	return out, nil
}

// DetectVersion reads and normalizes the version field
func (c *Codec) DetectVersion(document map[string]any) (domain.SchemaVersion, error) {
	return DetectVersion(document)
}

// DetectVersion reads and normalizes the version field
func DetectVersion(document map[string]any) (domain.SchemaVersion, error) {
	raw, ok := document["version"]
	if !ok || raw == nil {
		return "", domain.NewDocumentError("detect version", domain.ErrMissingVersion)
	}
	v, ok := raw.(string)
	if !ok {
		return "", domain.NewDocumentError("detect version", domain.ErrUnknownVersion)
	}
	return domain.ParseSchemaVersion(UnsaltString(v))
}

// IsWrapped tells whether the document carries both a body and a proof section
func IsWrapped(document map[string]any) bool {
	_, hasData := document["data"]
	_, hasSubject := document["credentialSubject"]
	_, hasSignature := document["signature"]
	_, hasProof := document["proof"]
	return (hasData || hasSubject) && (hasSignature || hasProof)
}

// UnwrapLocal removes the proof metadata without calling the service
func UnwrapLocal(document map[string]any, version domain.SchemaVersion) (map[string]any, error) {
	switch version {
	case domain.SchemaVersionOAV2:
		data, ok := document["data"].(map[string]any)
		if !ok {
			return nil, domain.NewDocumentError("unwrap", domain.ErrNotWrapped)
		}
		out, _ := UnsaltData(data).(map[string]any)
		return out, nil
	case domain.SchemaVersionOAV3:
		out := make(map[string]any, len(document))
		for k, v := range document {
			if k == "proof" {
				continue
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, domain.NewDocumentError(version.String(), domain.ErrUnknownVersion)
}

func classify(op string, err error) error {
	var re *pkghttp.ResponseError
	if errors.As(err, &re) && re.IsClientError() {
		return domain.NewDocumentError(op, err)
	}
	return domain.NewTransientError(op, err)
}
