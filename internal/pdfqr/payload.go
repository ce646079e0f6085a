package pdfqr

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/intergov/notary/internal/core/domain"
)

// PayloadKind is a supported qr payload shape
type PayloadKind int

// Supported payload shapes
const (
	// PayloadInline is the custom scheme followed by an inline JSON object
	PayloadInline PayloadKind = iota + 1
	// PayloadLink is an http(s) link with a document action in its q parameter
	PayloadLink
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadInline:
		return "inline"
	case PayloadLink:
		return "link"
	}
	return "unknown"
}

// ClassifyPayload tells whether text is one of the supported payload shapes
func ClassifyPayload(text string) (PayloadKind, bool) {
	if rest, ok := strings.CutPrefix(text, domain.TradeTrustScheme); ok {
		var obj map[string]any
		if err := json.Unmarshal([]byte(rest), &obj); err != nil || obj == nil {
			return 0, false
		}
		return PayloadInline, true
	}

	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return 0, false
	}
	q := u.Query().Get("q")
	if q == "" {
		return 0, false
	}
	var action domain.QRAction
	if err := json.Unmarshal([]byte(q), &action); err != nil {
		return 0, false
	}
	if action.Type != domain.QRActionDocument || action.Payload.URI == "" {
		return 0, false
	}
	return PayloadLink, true
}
