package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/ports"
	"github.com/intergov/notary/internal/health"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/metrics"
)

const maxPDFSize = 20 << 20

// Services are the use cases exposed through the API. A nil service disables its routes.
type Services struct {
	Issuer      ports.IssuanceOrchestrator
	Credentials ports.CredentialRepository
	Reconciler  ports.VerificationReconciler
	QrStore     ports.QrStoreService
	Extractor   ports.QRExtractor
	Ingestor    ports.Ingestor
}

// Server serves the notary API
type Server struct {
	cfg      *config.Configuration
	services Services
	health   *health.Status
	gatherer prometheus.Gatherer
}

// NewServer returns a Server. health and gatherer can be nil.
func NewServer(cfg *config.Configuration, services Services, health *health.Status, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cfg:      cfg,
		services: services,
		health:   health,
		gatherer: gatherer,
	}
}

// Handler returns the router with every route and middleware registered
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := chi.NewRouter()
	mux.Use(
		chiMiddleware.RequestID,
		log.ChiMiddleware(ctx),
		chiMiddleware.Recoverer,
		cors.AllowAll().Handler,
		chiMiddleware.NoCache,
	)
	RegisterStatus(mux, s.health, s.gatherer)

	mux.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(BasicAuthMiddleware(s.cfg.HTTPBasicAuth.User, s.cfg.HTTPBasicAuth.Password))
			if s.services.Issuer != nil {
				r.Post("/credentials", s.IssueCredential)
			}
			if s.services.Credentials != nil {
				r.Get("/credentials", s.ListCredentials)
				r.Get("/credentials/{id}", s.GetCredential)
			}
			if s.services.Reconciler != nil {
				r.Post("/credentials/{id}/verify", s.VerifyCredential)
				r.Post("/credentials/{id}/reverify", s.ReverifyCredential)
			}
			if s.services.Extractor != nil {
				r.Post("/pdf/qr", s.ExtractQR)
			}
		})
		if s.services.QrStore != nil {
			r.Get("/qr/{id}", s.GetQrFromStore)
		}
		if s.services.Ingestor != nil {
			r.Get("/callbacks/messages", SubscriptionChallenge)
			r.Post("/callbacks/messages", s.MessageCallback)
			r.Get("/callbacks/documents", SubscriptionChallenge)
			r.Post("/callbacks/documents", s.DocumentCallback)
		}
	})
	return mux
}

// RegisterStatus adds the status and metrics endpoints to mux
func RegisterStatus(mux chi.Router, h *health.Status, g prometheus.Gatherer) {
	mux.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			writeJSON(w, http.StatusOK, map[string]any{"services": map[string]bool{}})
			return
		}
		writeJSON(w, http.StatusOK, h.Report(r.Context()))
	})
	if g != nil {
		mux.Method(http.MethodGet, "/metrics", metrics.Handler(g))
	}
}

// StatusHandler is the router served by the background binaries
func StatusHandler(ctx context.Context, h *health.Status, g prometheus.Gatherer) http.Handler {
	mux := chi.NewRouter()
	mux.Use(chiMiddleware.RequestID, log.ChiMiddleware(ctx), chiMiddleware.Recoverer)
	RegisterStatus(mux, h, g)
	return mux
}
