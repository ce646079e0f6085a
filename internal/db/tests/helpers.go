package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// JSONBody encodes d as the body of a test request
func JSONBody(t *testing.T, d any) io.Reader {
	t.Helper()
	j, err := json.Marshal(d)
	require.NoError(t, err)
	return bytes.NewReader(j)
}
