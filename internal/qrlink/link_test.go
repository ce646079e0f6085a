package qrlink

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/core/domain"
)

var payload = domain.QRPayload{
	URI:              "https://notary.example.com/v1/qr/1f209581-ab1d-426d-88d9-2b545bdb851d",
	Key:              "00ff",
	PermittedActions: []string{domain.QRPermittedView},
	Redirect:         "https://verify.example.com",
}

func TestNewUniversal(t *testing.T) {
	got, err := NewUniversal("https://verify.example.com/", payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "https://verify.example.com/?q="))

	u, err := url.Parse(got)
	require.NoError(t, err)
	var action domain.QRAction
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("q")), &action))
	assert.Equal(t, domain.QRActionDocument, action.Type)
	assert.Equal(t, payload, action.Payload)
}

func TestDeepLink(t *testing.T) {
	got, err := NewDeepLink(payload)
	require.NoError(t, err)
	expected := `tradetrust://{"uri":"https://notary.example.com/v1/qr/1f209581-ab1d-426d-88d9-2b545bdb851d","key":"00ff","permittedActions":["VIEW"],"redirect":"https://verify.example.com"}`
	assert.Equal(t, expected, got)
}
