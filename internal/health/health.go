package health

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/intergov/notary/internal/buildinfo"
	iRedis "github.com/intergov/notary/internal/redis"
	"github.com/intergov/notary/pkg/blockchain/eth"
)

const (
	redis  = "redis"
	valkey = "valkey"
	db     = "db"
	ledger = "ledger"
)

// Status struct
type Status struct {
	mu      sync.RWMutex
	pingers map[string]Ping
}

// Ping interface
type Ping interface {
	Ping(ctx context.Context) error
}

// Report is the payload served by the status endpoint
type Report struct {
	Revision string          `json:"revision"`
	Services map[string]bool `json:"services"`
}

// New returns a Health instance. Known clients are named after their backend.
func New(pingers ...Ping) *Status {
	m := make(map[string]Ping)

	for _, p := range pingers {
		switch t := p.(type) {
		case *pgxpool.Pool:
			m[db] = t
		case iRedis.Pinger:
			m[redis] = t
		case iRedis.ValKeyPinger:
			m[valkey] = t
		case *eth.Client:
			m[ledger] = t
		}
	}

	return &Status{pingers: m}
}

// Add registers a named dependency
func (h *Status) Add(name string, p Ping) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pingers[name] = p
}

// Status returns whether every registered dependency answers its ping
func (h *Status) Status(ctx context.Context) map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := make(map[string]bool)

	for key, val := range h.pingers {
		m[key] = true
		if err := val.Ping(ctx); err != nil {
			m[key] = false
		}
	}

	return m
}

// Report returns the build revision and the dependency status
func (h *Status) Report(ctx context.Context) Report {
	return Report{Revision: buildinfo.Revision(), Services: h.Status(ctx)}
}
