package qrlink

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/intergov/notary/internal/core/domain"
)

const verifierLink = "%s/?q=%s"

// NewDeepLink creates the inline qr payload: the tradetrust scheme followed by the json payload
func NewDeepLink(payload domain.QRPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return domain.TradeTrustScheme + string(raw), nil
}

// NewUniversal creates a verifier link whose q parameter holds a document action for payload
func NewUniversal(verifierURL string, payload domain.QRPayload) (string, error) {
	action, err := json.Marshal(domain.QRAction{Type: domain.QRActionDocument, Payload: payload})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(verifierLink, strings.TrimRight(verifierURL, "/"), url.QueryEscape(string(action))), nil
}
