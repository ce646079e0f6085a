package pdfqr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func imagesOf(t *testing.T, data []byte) []pageImage {
	t.Helper()
	doc, err := openDocument(data)
	require.NoError(t, err)
	res, err := doc.firstPageResources()
	require.NoError(t, err)
	return New().collect(context.Background(), doc, res, 0, map[int]bool{})
}
