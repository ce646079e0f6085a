package services_tests

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/cache"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/core/services"
	"github.com/intergov/notary/internal/redis"
)

func TestQRStore(t *testing.T) {
	ctx := context.Background()
	instance := miniredis.RunT(t)
	client, err := redis.Open(ctx, "redis://"+instance.Addr())
	require.NoError(t, err)
	defer func() { assert.NoError(t, client.Close()) }()

	creds := newCredentialRepo()
	s := services.NewQrStoreService(cache.NewRedisCache(client), creds)
	doc := &domain.EncryptedDocument{Type: domain.CipherOpenAttestationType1, Nonce: "bm9uY2U=", Tag: "dGFn", CipherText: "Y3Q="}

	t.Run("cached document", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, s.Store(ctx, id, doc, time.Hour))
		got, err := s.Find(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("expired entry falls back to the credential record", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, creds.Save(ctx, &domain.Credential{ID: id, Encrypted: doc}))
		require.NoError(t, s.Store(ctx, id, doc, time.Second))
		instance.FastForward(2 * time.Second)

		got, err := s.Find(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("unknown credential", func(t *testing.T) {
		_, err := s.Find(ctx, uuid.New())
		assert.ErrorIs(t, err, services.ErrQRCodeLinkNotFound)
	})

	t.Run("credential without encrypted document", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, creds.Save(ctx, &domain.Credential{ID: id}))
		_, err := s.Find(ctx, id)
		assert.ErrorIs(t, err, services.ErrQRCodeLinkNotFound)
	})

	t.Run("url", func(t *testing.T) {
		id := uuid.MustParse("0b1c8a1e-9a0e-4a53-9a8d-3e0f4a1b2c3d")
		assert.Equal(t, "https://notary.example.org/v1/qr/0b1c8a1e-9a0e-4a53-9a8d-3e0f4a1b2c3d", s.ToURL("https://notary.example.org/", id))
	})
}

func TestNotarizer_Enqueue(t *testing.T) {
	ctx := context.Background()
	blobs, queue := newBlobStore(), &memoryQueue{}
	n := services.NewNotarizer(blobs, queue, pendingBucket)

	env, err := n.Enqueue(ctx, "cred-1", []byte(`{"data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, pendingBucket, env.Bucket)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}/cred-1\.json$`, env.BlobKey)

	stored, err := blobs.Get(ctx, pendingBucket, env.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"data":{}}`), stored)

	msg := queue.pending[0]
	envs, err := domain.EnvelopesFromMessage(msg)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, env.BlobKey, envs[0].BlobKey)

	blobs.putErr = assert.AnError
	_, err = n.Enqueue(ctx, "cred-2", []byte(`{}`))
	assert.True(t, domain.IsTransientError(err))
	assert.Len(t, queue.pending, 1)
}
