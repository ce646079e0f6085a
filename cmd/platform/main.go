package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/intergov/notary/internal/agreements"
	"github.com/intergov/notary/internal/api"
	"github.com/intergov/notary/internal/bootstrap"
	"github.com/intergov/notary/internal/buildinfo"
	"github.com/intergov/notary/internal/cipher"
	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/core/services"
	"github.com/intergov/notary/internal/db"
	"github.com/intergov/notary/internal/health"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/pdfqr"
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
	cfg, ctx, err := bootstrap.Config(ctx, "platform")
	if err != nil {
		return err
	}
	log.Info(ctx, "starting notary api", "revision", build)

	storage, err := db.NewStorage(ctx, cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", "err", err)
		return err
	}
	defer func() { _ = storage.Close() }()
	sqlxConn, err := db.NewSqlx(ctx, cfg.Database.URL)
	if err != nil {
		log.Error(ctx, "cannot connect to database", "err", err)
		return err
	}
	defer func() { _ = sqlxConn.Close() }()

	serverHealth := health.New(storage.Pgx)
	m, gatherer := bootstrap.Metrics()

	rdb, err := bootstrap.Redis(ctx, cfg, serverHealth)
	if err != nil {
		return err
	}
	cachex, err := bootstrap.Cache(ctx, cfg)
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
	blobs := bootstrap.BlobStore(awsCfg, cfg)
	notarizationQueue := queue.NewSQSQueue(awsCfg, cfg.AWS, cfg.Queue.URL, cfg.Queue.WaitTime)

	disclosure, err := cipher.New(cfg.Issuance.CipherType)
	if err != nil {
		log.Error(ctx, "invalid cipher", "err", err)
		return err
	}
	catalogue, err := agreements.Load(cfg.Ingestion.AgreementsFile)
	if err != nil {
		log.Error(ctx, "cannot load trade agreements", "err", err)
		return err
	}

	credentialRepo := repositories.NewCredential(storage)
	messageRepo := repositories.NewNodeMessage(sqlxConn)
	incomingRepo := repositories.NewIncomingDocument(storage)

	credentialCodec := bootstrap.Codec(cfg)
	reconciler := bootstrap.Reconciler(cfg, rdb, credentialRepo, blobs, bootstrap.Verifier(cfg, credentialCodec, m), m)
	node, err := bootstrap.NodeClient(cfg, cachex, m)
	if err != nil {
		log.Error(ctx, "cannot initialize node client", "err", err)
		return err
	}

	qrStore := services.NewQrStoreService(cachex, credentialRepo)
	orchestrator := services.NewOrchestrator(
		credentialRepo,
		messageRepo,
		credentialCodec,
		disclosure,
		services.NewNotarizer(blobs, notarizationQueue, cfg.Storage.PendingBucket),
		reconciler,
		node,
		qrStore,
		ps,
		m,
		services.OrchestratorConfig{
			SenderCountry: cfg.Issuance.SenderCountry,
			SenderOrgID:   cfg.Issuance.SenderOrgID,
			ServerURL:     cfg.ServerURL,
			VerifierUIURL: cfg.Issuance.VerifierUIURL,
			CallbackURL:   cfg.Node.CallbackURL,
		},
	)

	svc := api.Services{
		Issuer:      orchestrator,
		Credentials: credentialRepo,
		Reconciler:  reconciler,
		QrStore:     qrStore,
		Extractor:   pdfqr.New(),
	}
	if node != nil {
		svc.Ingestor = services.NewIngestion(node, blobs, credentialCodec, incomingRepo, messageRepo, catalogue, m, services.IngestionConfig{
			IncomingBucket: cfg.Storage.IncomingBucket,
			MaxAttempts:    cfg.Ingestion.MaxAttempts,
			BackoffStep:    cfg.Ingestion.BackoffStep,
			EscalateAfter:  cfg.Ingestion.EscalateAfter,
		})
		topics := subscribe(ctx, cfg, node)
		defer unsubscribe(ctx, cfg, node, topics)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           api.NewServer(cfg, svc, serverHealth, gatherer).Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	bootstrap.Serve(ctx, server)
	log.Info(ctx, "Shutting down")
	return nil
}

// subscribe registers the callbacks for documents addressed to this jurisdiction and for
// status changes of the messages it sent. Failures are logged, the api keeps serving.
func subscribe(ctx context.Context, cfg *config.Configuration, node ports.NodeClient) map[string]string {
	if cfg.Node.CallbackURL == "" {
		log.Warn(ctx, "no callback url configured, counterpart notifications are disabled")
		return nil
	}
	base := strings.TrimRight(cfg.Node.CallbackURL, "/")
	jurisdiction := strings.ToUpper(cfg.Issuance.SenderCountry)
	topics := map[string]string{
		"jurisdiction." + jurisdiction:             base + "/v1/callbacks/documents",
		"jurisdiction." + jurisdiction + ".status": base + "/v1/callbacks/messages",
	}
	for topic, callback := range topics {
		if err := node.Subscribe(ctx, topic, callback); err != nil {
			log.Error(ctx, "cannot subscribe to counterpart topic", "err", err, "topic", topic)
			continue
		}
		log.Info(ctx, "subscribed", "topic", topic, "callback", callback)
	}
	return topics
}

func unsubscribe(ctx context.Context, cfg *config.Configuration, node ports.NodeClient, topics map[string]string) {
	shutdownCtx, cancel := context.WithTimeout(log.CopyFromContext(ctx, context.Background()), cfg.Node.Timeout)
	defer cancel()
	for topic, callback := range topics {
		if err := node.Unsubscribe(shutdownCtx, topic, callback); err != nil {
			log.Warn(ctx, "cannot unsubscribe from counterpart topic", "err", err, "topic", topic)
		}
	}
}
