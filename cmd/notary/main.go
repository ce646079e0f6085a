package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/intergov/notary/internal/api"
	"github.com/intergov/notary/internal/blobstore"
	"github.com/intergov/notary/internal/bootstrap"
	"github.com/intergov/notary/internal/buildinfo"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/core/services"
	"github.com/intergov/notary/internal/db"
	"github.com/intergov/notary/internal/health"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/pubsub"
	"github.com/intergov/notary/internal/queue"
	"github.com/intergov/notary/internal/repositories"
)

var build = buildinfo.Revision()

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, ctx, err := bootstrap.Config(ctx, "notary")
	if err != nil {
		return err
	}
	if err := cfg.SanitizeWorker(); err != nil {
		log.Error(ctx, "invalid worker configuration", "err", err)
		return err
	}
	log.Info(ctx, "starting issuance worker", "revision", build)

	storage, err := db.NewStorage(ctx, cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", "err", err)
		return err
	}
	defer func() { _ = storage.Close() }()

	serverHealth := health.New(storage.Pgx)
	m, gatherer := bootstrap.Metrics()

	ps, err := pubsub.NewPubSub(ctx, cfg.Cache)
	if err != nil {
		log.Error(ctx, "cannot initialize pubsub", "err", err)
		return err
	}
	defer func() { _ = ps.Close() }()

	awsCfg, err := bootstrap.AWS(ctx, cfg)
	if err != nil {
		return err
	}
	ledger, err := bootstrap.Ledger(ctx, cfg, serverHealth)
	if err != nil {
		log.Error(ctx, "cannot initialize ledger gateway", "err", err)
		return err
	}

	var mirror ports.ContentMirror
	if cfg.IPFS.URL != "" {
		mirror = blobstore.NewIPFSMirror(cfg.IPFS.URL)
	}

	worker := services.NewIssuanceWorker(
		queue.NewSQSQueue(awsCfg, cfg.AWS, cfg.Queue.URL, cfg.Queue.WaitTime),
		bootstrap.BlobStore(awsCfg, cfg),
		bootstrap.Codec(cfg),
		ledger,
		repositories.NewCredential(storage),
		mirror,
		ps,
		m,
		services.IssuanceWorkerConfig{
			PendingBucket: cfg.Storage.PendingBucket,
			IssuedBucket:  cfg.Storage.IssuedBucket,
			BatchSize:     cfg.Queue.BatchSize,
			Visibility:    cfg.Queue.VisibilityTimeout,
			PollInterval:  cfg.Queue.PollInterval,
		},
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bootstrap.Serve(ctx, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.StatusPort),
			Handler:           api.StatusHandler(ctx, serverHealth, gatherer),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}()

	worker.Run(ctx)
	wg.Wait()
	log.Info(ctx, "Shutting down")
	return nil
}
