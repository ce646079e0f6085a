package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the notarization pipeline.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Issuance requests by result: issued, failed
	Credentials *prometheus.CounterVec

	// Anchoring transactions by outcome: success, failure, timeout, already_issued
	AnchorTransactions *prometheus.CounterVec

	// Gas price used for the next anchoring transaction, in wei
	GasPrice prometheus.Gauge

	// Queue messages by worker outcome
	QueueMessages *prometheus.CounterVec

	// Verification attempts by resulting status
	Verifications *prometheus.CounterVec

	// Incoming documents by ingestion status
	IncomingDocuments *prometheus.CounterVec

	// Remote call latency by service: codec, verifier, node
	RemoteLatency *prometheus.HistogramVec
}

// New registers the pipeline collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Credentials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notary_credentials_total",
			Help: "Issuance requests by result",
		}, []string{"result"}),

		AnchorTransactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notary_anchor_transactions_total",
			Help: "Anchoring transactions by outcome",
		}, []string{"outcome"}),

		GasPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "notary_gas_price_wei",
			Help: "Gas price of the next anchoring transaction",
		}),

		QueueMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notary_queue_messages_total",
			Help: "Notarization queue messages by worker outcome",
		}, []string{"outcome"}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notary_verifications_total",
			Help: "Verification attempts by resulting status",
		}, []string{"status"}),

		IncomingDocuments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notary_incoming_documents_total",
			Help: "Incoming documents by ingestion status",
		}, []string{"status"}),

		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notary_remote_call_duration_seconds",
			Help:    "Duration of calls to remote services",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
	}
}

// Handler serves the collectors gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// IncCredential records an issuance result
func (m *Metrics) IncCredential(result string) {
	if m != nil {
		m.Credentials.WithLabelValues(result).Inc()
	}
}

// IncAnchor records an anchoring outcome
func (m *Metrics) IncAnchor(outcome string) {
	if m != nil {
		m.AnchorTransactions.WithLabelValues(outcome).Inc()
	}
}

// SetGasPrice publishes the current gas price
func (m *Metrics) SetGasPrice(price *big.Int) {
	if m != nil && price != nil {
		f, _ := new(big.Float).SetInt(price).Float64()
		m.GasPrice.Set(f)
	}
}

// IncQueueMessage records a worker outcome
func (m *Metrics) IncQueueMessage(outcome string) {
	if m != nil {
		m.QueueMessages.WithLabelValues(outcome).Inc()
	}
}

// IncVerification records a verification status
func (m *Metrics) IncVerification(status string) {
	if m != nil {
		m.Verifications.WithLabelValues(status).Inc()
	}
}

// IncIncomingDocument records an ingestion status
func (m *Metrics) IncIncomingDocument(status string) {
	if m != nil {
		m.IncomingDocuments.WithLabelValues(status).Inc()
	}
}

// ObserveRemote records the latency of a remote call started at start
func (m *Metrics) ObserveRemote(service string, start time.Time) {
	if m != nil {
		m.RemoteLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}
}
