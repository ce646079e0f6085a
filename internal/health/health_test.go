package health

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iRedis "github.com/intergov/notary/internal/redis"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestStatus(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb, err := iRedis.Open(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)

	h := New(iRedis.Pinger{Client: rdb})
	h.Add("verifier", pingFunc(func(context.Context) error { return errors.New("down") }))

	report := h.Report(ctx)
	assert.NotEmpty(t, report.Revision)
	assert.Equal(t, map[string]bool{"redis": true, "verifier": false}, report.Services)

	mr.Close()
	assert.False(t, h.Status(ctx)["redis"])
}
