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
	"github.com/intergov/notary/internal/bootstrap"
	"github.com/intergov/notary/internal/buildinfo"
	"github.com/intergov/notary/internal/db"
	"github.com/intergov/notary/internal/health"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/pubsub"
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
	cfg, ctx, err := bootstrap.Config(ctx, "reconciler")
	if err != nil {
		return err
	}
	log.Info(ctx, "starting verification reconciler", "revision", build)

	storage, err := db.NewStorage(ctx, cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", "err", err)
		return err
	}
	defer func() { _ = storage.Close() }()

	serverHealth := health.New(storage.Pgx)
	m, gatherer := bootstrap.Metrics()

	rdb, err := bootstrap.Redis(ctx, cfg, serverHealth)
	if err != nil {
		return err
	}
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
	credentialCodec := bootstrap.Codec(cfg)
	reconciler := bootstrap.Reconciler(
		cfg,
		rdb,
		repositories.NewCredential(storage),
		bootstrap.BlobStore(awsCfg, cfg),
		bootstrap.Verifier(cfg, credentialCodec, m),
		m,
	)

	ps.Subscribe(ctx, pubsub.EventCredentialAnchored, reconciler.HandleAnchored)

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

	reconciler.Run(ctx)
	wg.Wait()
	log.Info(ctx, "Shutting down")
	return nil
}
