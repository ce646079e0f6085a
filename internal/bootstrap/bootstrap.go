// Package bootstrap builds the adapters shared by the binaries from a configuration snapshot
package bootstrap

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ethCommon "github.com/ethereum/go-ethereum/common"
	goRedis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/intergov/notary/internal/blobstore"
	"github.com/intergov/notary/internal/cache"
	"github.com/intergov/notary/internal/codec"
	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/core/services"
	"github.com/intergov/notary/internal/gateways"
	"github.com/intergov/notary/internal/health"
	"github.com/intergov/notary/internal/kms"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
	"github.com/intergov/notary/internal/nodeclient"
	"github.com/intergov/notary/internal/redis"
	"github.com/intergov/notary/internal/scheduler"
	"github.com/intergov/notary/internal/verifier"
	"github.com/intergov/notary/pkg/blockchain/eth"
	pkghttp "github.com/intergov/notary/pkg/http"
)

const (
	remoteRetries = 3
	schedulerKey  = "notary:verification:schedule"
)

// Config loads, sanitizes and returns the configuration together with a logging context.
// Configuration errors are fatal.
func Config(ctx context.Context, name string) (*config.Configuration, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "cannot load config", "err", err)
		return nil, ctx, err
	}
	ctx = log.NewContext(ctx, cfg.Log.Level, cfg.Log.Mode, os.Stdout)
	ctx = log.With(ctx, "service", name)
	if err := cfg.Sanitize(); err != nil {
		log.Error(ctx, "invalid configuration", "err", err)
		return nil, ctx, err
	}
	return cfg, ctx, nil
}

// Metrics registers the pipeline collectors on the default registry
func Metrics() (*metrics.Metrics, prometheus.Gatherer) {
	return metrics.New(prometheus.DefaultRegisterer), prometheus.DefaultGatherer
}

// Redis opens the redis client used by the retry scheduler and registers it in the health checker
func Redis(ctx context.Context, cfg *config.Configuration, h *health.Status) (*goRedis.Client, error) {
	rdb, err := redis.Open(ctx, cfg.Cache.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to redis", "err", err, "url", cfg.Cache.URL)
		return nil, err
	}
	h.Add("redis", redis.Pinger{Client: rdb})
	return rdb, nil
}

// Cache returns the configured cache provider
func Cache(ctx context.Context, cfg *config.Configuration) (cache.Cache, error) {
	c, err := cache.NewCacheClient(ctx, cfg.Cache)
	if err != nil {
		log.Error(ctx, "cannot initialize cache", "err", err)
		return nil, err
	}
	return c, nil
}

// AWS loads the shared AWS configuration
func AWS(ctx context.Context, cfg *config.Configuration) (aws.Config, error) {
	awsCfg, err := kms.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		log.Error(ctx, "cannot load aws configuration", "err", err)
		return aws.Config{}, err
	}
	return awsCfg, nil
}

// BlobStore returns the S3 store holding the pending, issued and incoming buckets
func BlobStore(awsCfg aws.Config, cfg *config.Configuration) *blobstore.S3Store {
	return blobstore.NewS3Store(awsCfg, cfg.AWS, cfg.Storage.PathStyle)
}

// Codec returns the wrap/unwrap client. Without an endpoint only local unwrapping is available.
func Codec(cfg *config.Configuration) *codec.Codec {
	return codec.New(pkghttp.NewRetryClient(cfg.Codec.Timeout, remoteRetries), cfg.Codec.Endpoint)
}

// Verifier returns the credential verifier backed by the remote proof checker
func Verifier(cfg *config.Configuration, c ports.CredentialCodec, m *metrics.Metrics) *verifier.CredentialVerifier {
	checker := verifier.NewProofChecker(pkghttp.NewRetryClient(cfg.Verifier.Timeout, remoteRetries), cfg.Verifier.Endpoint, m)
	return verifier.New(c, checker, cfg.Verifier.AspectThreshold)
}

// Reconciler returns the verification reconciler with its redis schedule
func Reconciler(
	cfg *config.Configuration,
	rdb *goRedis.Client,
	creds ports.CredentialRepository,
	blobs ports.BlobStore,
	v ports.CredentialVerifier,
	m *metrics.Metrics,
) *services.Reconciler {
	return services.NewReconciler(creds, blobs, v, scheduler.NewRedisScheduler(rdb, schedulerKey, cfg.Reconciler.Lease), m, services.ReconcilerConfig{
		PendingBucket: cfg.Storage.PendingBucket,
		IssuedBucket:  cfg.Storage.IssuedBucket,
		ShortDelay:    cfg.Reconciler.ShortDelay,
		LongDelay:     cfg.Reconciler.LongDelay,
		ShortAttempts: cfg.Reconciler.ShortAttempts,
		MaxAttempts:   cfg.Reconciler.MaxAttempts,
		PollInterval:  cfg.Reconciler.PollInterval,
		BatchSize:     cfg.Reconciler.BatchSize,
	})
}

// NodeClient returns the counterpart node client, nil when no node is configured
func NodeClient(cfg *config.Configuration, c cache.Cache, m *metrics.Metrics) (ports.NodeClient, error) {
	if cfg.Node.MessageAPIURL == "" && cfg.Node.DocumentAPIURL == "" {
		return nil, nil
	}
	hc := &http.Client{Timeout: cfg.Node.Timeout}
	auth, err := nodeclient.NewAuthProvider(cfg.Node, c, hc)
	if err != nil {
		return nil, err
	}
	return nodeclient.New(cfg.Node, auth, hc, m), nil
}

// Ledger dials the ledger, opens the key store and returns the anchoring gateway
func Ledger(ctx context.Context, cfg *config.Configuration, h *health.Status) (*gateways.LedgerEthGateway, error) {
	client, err := eth.Dial(ctx, cfg.Ledger.URL, &eth.ClientConfig{
		ReceiptTimeout:       cfg.Ledger.ReceiptTimeout,
		DefaultGasLimit:      cfg.Ledger.DefaultGasLimit,
		MinGasPrice:          big.NewInt(cfg.Ledger.MinGasPrice),
		MaxGasPrice:          big.NewInt(cfg.Ledger.MaxGasPrice),
		RPCResponseTimeout:   cfg.Ledger.RPCResponseTimeout,
		WaitReceiptCycleTime: cfg.Ledger.WaitReceiptCycleTime,
	})
	if err != nil {
		log.Error(ctx, "cannot connect to the ledger", "err", err)
		return nil, err
	}
	h.Add("ledger", client)

	keyStore, err := kms.Open(ctx, cfg.KeyStore, cfg.AWS)
	if err != nil {
		log.Error(ctx, "cannot initialize key store", "err", err)
		return nil, err
	}
	return gateways.NewLedgerEthGateway(ctx, client, keyStore, gateways.LedgerConfig{
		Contract:       ethCommon.HexToAddress(cfg.Ledger.ContractAddress),
		SignerKeyID:    cfg.KeyStore.SignerKeyID,
		Strategy:       cfg.Ledger.Fee(),
		ReceiptTimeout: cfg.Ledger.ReceiptTimeout,
		BumpPercent:    cfg.Ledger.GasBumpPercent,
		RefreshEvery:   cfg.Ledger.FeeRefreshEvery,
	})
}

// Serve runs srv until ctx is cancelled and then shuts it down
func Serve(ctx context.Context, srv *http.Server) {
	go func() {
		log.Info(ctx, "http server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "starting http server", "err", err)
		}
	}()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutting down http server", "err", err)
	}
}
