package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
)

const envPrefix = "NOTARY_"

// Cache providers
const (
	CacheProviderRedis  = "redis"
	CacheProviderValKey = "valkey"
	CacheProviderMemory = "memory"
)

// Key store providers
const (
	KeyStoreLocal             = "local"
	KeyStoreVault             = "vault"
	KeyStoreAWSSecretsManager = "aws-sm"
	KeyStoreAWSKMS            = "aws-kms"
)

// Node auth modes
const (
	NodeAuthStatic = "static"
	NodeAuthOIDC   = "oidc"
)

// Configuration holds the project configuration
type Configuration struct {
	ServerURL     string        `env:"SERVER_URL" envDefault:"http://localhost:3001"`
	ServerPort    int           `env:"SERVER_PORT" envDefault:"3001"`
	StatusPort    int           `env:"STATUS_PORT" envDefault:"3005"`
	Database      Database      `envPrefix:"DATABASE_"`
	Cache         Cache         `envPrefix:"CACHE_"`
	Log           Log           `envPrefix:"LOG_"`
	HTTPBasicAuth HTTPBasicAuth `envPrefix:"HTTP_BASIC_AUTH_"`
	Ledger        Ledger        `envPrefix:"LEDGER_"`
	KeyStore      KeyStore      `envPrefix:"KEY_STORE_"`
	AWS           AWS           `envPrefix:"AWS_"`
	Queue         Queue         `envPrefix:"QUEUE_"`
	Storage       Storage       `envPrefix:"STORAGE_"`
	IPFS          IPFS          `envPrefix:"IPFS_"`
	Codec         Codec         `envPrefix:"CODEC_"`
	Verifier      Verifier      `envPrefix:"VERIFIER_"`
	Node          Node          `envPrefix:"NODE_"`
	Issuance      Issuance      `envPrefix:"ISSUANCE_"`
	Reconciler    Reconciler    `envPrefix:"RECONCILER_"`
	Ingestion     Ingestion     `envPrefix:"INGESTION_"`
}

// Database has the database configuration
// URL: The database connection string
type Database struct {
	URL string `env:"URL"`
}

// Cache configuration. Provider can be redis, valkey or memory
type Cache struct {
	Provider string `env:"PROVIDER" envDefault:"redis"`
	URL      string `env:"URL" envDefault:"redis://@localhost:6379/1"`
}

// Log holds runtime configurations
//
// Level: The minimum log level to show on logs. Values can be
//
//	-4: Debug
//	 0: Info
//	 4: Warning
//	 8: Error
//
// Mode: Log mode is the format of the log. 1: JSON, 2: Text
type Log struct {
	Level int `env:"LEVEL" envDefault:"0"`
	Mode  int `env:"MODE" envDefault:"1"`
}

// HTTPBasicAuth protects the API endpoints
type HTTPBasicAuth struct {
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
}

// Ledger configures the anchoring contract and the way transactions are priced
type Ledger struct {
	URL                  string             `env:"URL"`
	ContractAddress      string             `env:"CONTRACT_ADDRESS"`
	FeeStrategy          string             `env:"FEE_STRATEGY" envDefault:"fast"`
	fee                  domain.FeeStrategy
	GasBumpPercent       int                `env:"GAS_BUMP_PERCENT" envDefault:"10"`
	FeeRefreshEvery      int                `env:"FEE_REFRESH_EVERY" envDefault:"10"`
	DefaultGasLimit      uint64             `env:"DEFAULT_GAS_LIMIT" envDefault:"200000"`
	ReceiptTimeout       time.Duration      `env:"RECEIPT_TIMEOUT" envDefault:"120s"`
	RPCResponseTimeout   time.Duration      `env:"RPC_RESPONSE_TIMEOUT" envDefault:"10s"`
	WaitReceiptCycleTime time.Duration      `env:"WAIT_RECEIPT_CYCLE_TIME" envDefault:"2s"`
	MinGasPrice          int64              `env:"MIN_GAS_PRICE" envDefault:"0"`
	MaxGasPrice          int64              `env:"MAX_GAS_PRICE" envDefault:"0"`
}

// Fee returns the fee strategy parsed by Sanitize
func (l Ledger) Fee() domain.FeeStrategy {
	return l.fee
}

// KeyStore selects where the ledger signer key lives
type KeyStore struct {
	Provider      string `env:"PROVIDER" envDefault:"local"`
	SignerKeyID   string `env:"SIGNER_KEY_ID" envDefault:"signer"`
	PrivateKey    string `env:"PRIVATE_KEY"`
	VaultAddress  string `env:"VAULT_ADDRESS"`
	VaultToken    string `env:"VAULT_TOKEN"`
	VaultKVMount  string `env:"VAULT_KV_MOUNT" envDefault:"kv"`
	VaultKeyField string `env:"VAULT_KEY_FIELD" envDefault:"private_key"`
}

// AWS credentials shared by the blob store, the queue and the key providers.
// Region "local" points every client to Endpoint.
type AWS struct {
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Endpoint  string `env:"ENDPOINT" envDefault:"http://localhost:4566"`
}

// Queue configuration for the notarization queue
type Queue struct {
	URL               string        `env:"URL"`
	BatchSize         int           `env:"BATCH_SIZE" envDefault:"10"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"60s"`
	WaitTime          time.Duration `env:"WAIT_TIME" envDefault:"10s"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

// Storage buckets
type Storage struct {
	PendingBucket  string `env:"PENDING_BUCKET" envDefault:"notary-pending"`
	IssuedBucket   string `env:"ISSUED_BUCKET" envDefault:"notary-issued"`
	IncomingBucket string `env:"INCOMING_BUCKET" envDefault:"notary-incoming"`
	PathStyle      bool   `env:"PATH_STYLE" envDefault:"false"`
}

// IPFS mirror of issued artifacts. Disabled when URL is empty.
type IPFS struct {
	URL string `env:"URL"`
}

// Codec is the remote wrap/unwrap service
type Codec struct {
	Endpoint string        `env:"ENDPOINT"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"20s"`
}

// Verifier is the remote proof checker
type Verifier struct {
	Endpoint        string        `env:"ENDPOINT"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"30s"`
	AspectThreshold int           `env:"ASPECT_THRESHOLD" envDefault:"2"`
}

// Node is the counterpart jurisdiction node
type Node struct {
	DocumentAPIURL     string        `env:"DOCUMENT_API_URL"`
	MessageAPIURL      string        `env:"MESSAGE_API_URL"`
	SubscriptionAPIURL string        `env:"SUBSCRIPTION_API_URL"`
	CallbackURL        string        `env:"CALLBACK_URL"`
	Timeout            time.Duration `env:"TIMEOUT" envDefault:"15s"`
	AuthMode           string        `env:"AUTH_MODE" envDefault:"static"`
	StaticHeader       string        `env:"STATIC_HEADER" envDefault:"Authorization"`
	StaticValue        string        `env:"STATIC_VALUE"`
	OIDCIssuer         string        `env:"OIDC_ISSUER"`
	ClientID           string        `env:"CLIENT_ID"`
	ClientSecret       string        `env:"CLIENT_SECRET"`
	DocumentScope      string        `env:"DOCUMENT_SCOPE" envDefault:"https://document-api/"`
	MessageScope       string        `env:"MESSAGE_SCOPE" envDefault:"https://message-api/"`
	SubscriptionScope  string        `env:"SUBSCRIPTION_SCOPE" envDefault:"https://subscription-api/"`
	TokenSafetyMargin  time.Duration `env:"TOKEN_SAFETY_MARGIN" envDefault:"30s"`
}

// Issuance holds the producer side settings
type Issuance struct {
	SenderCountry string `env:"SENDER_COUNTRY" envDefault:"AU"`
	SenderOrgID   string `env:"SENDER_ORG_ID"`
	VerifierUIURL string `env:"VERIFIER_UI_URL" envDefault:"https://dev.tradetrust.io/"`
	CipherType    string `env:"CIPHER_TYPE" envDefault:"OPEN-ATTESTATION-TYPE-1"`
}

// Reconciler holds the verification retry schedule
type Reconciler struct {
	ShortDelay    time.Duration `env:"SHORT_DELAY" envDefault:"30s"`
	LongDelay     time.Duration `env:"LONG_DELAY" envDefault:"120s"`
	ShortAttempts int           `env:"SHORT_ATTEMPTS" envDefault:"10"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"80"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"20"`
	Lease         time.Duration `env:"LEASE" envDefault:"5m"`
}

// Ingestion holds incoming document settings
type Ingestion struct {
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"20"`
	BackoffStep    time.Duration `env:"BACKOFF_STEP" envDefault:"5s"`
	EscalateAfter  int           `env:"ESCALATE_AFTER" envDefault:"10"`
	AgreementsFile string        `env:"AGREEMENTS_FILE"`
}

// Sanitize perform some basic checks and sanitizations in the configuration.
// Returns a ConfigurationError if the config is not acceptable.
func (c *Configuration) Sanitize() error {
	sURL, err := validateURL(c.ServerURL)
	if err != nil {
		return domain.NewConfigurationError(fmt.Sprintf("serverUrl is not a valid URL <%s>", c.ServerURL), err)
	}
	c.ServerURL = sURL

	fee, err := domain.ParseFeeStrategy(c.Ledger.FeeStrategy)
	if err != nil {
		return err
	}
	c.Ledger.fee = fee

	if c.Ledger.ContractAddress != "" && !ethCommon.IsHexAddress(c.Ledger.ContractAddress) {
		return domain.NewConfigurationError("ledger contract address", fmt.Errorf("not an address: %q", c.Ledger.ContractAddress))
	}
	if c.Ledger.GasBumpPercent < 10 {
		c.Ledger.GasBumpPercent = 10
	}
	if c.Ledger.FeeRefreshEvery <= 0 {
		return domain.NewConfigurationError("ledger fee refresh cadence", errors.New("must be positive"))
	}

	for name, endpoint := range map[string]*string{
		"codec endpoint":    &c.Codec.Endpoint,
		"verifier endpoint": &c.Verifier.Endpoint,
		"verifier ui url":   &c.Issuance.VerifierUIURL,
	} {
		if *endpoint == "" {
			continue
		}
		u, err := validateURL(*endpoint)
		if err != nil {
			return domain.NewConfigurationError(name, err)
		}
		*endpoint = u
	}

	if c.Queue.BatchSize < 1 || c.Queue.BatchSize > 10 {
		return domain.NewConfigurationError("queue batch size", fmt.Errorf("must be between 1 and 10, got %d", c.Queue.BatchSize))
	}
	if c.Verifier.AspectThreshold < 1 {
		return domain.NewConfigurationError("verifier aspect threshold", errors.New("must be at least 1"))
	}
	if c.Reconciler.MaxAttempts < 1 {
		return domain.NewConfigurationError("reconciler max attempts", errors.New("must be at least 1"))
	}
	switch c.Node.AuthMode {
	case NodeAuthStatic, NodeAuthOIDC:
	default:
		return domain.NewConfigurationError("node auth mode", fmt.Errorf("unknown mode %q", c.Node.AuthMode))
	}
	return nil
}

// SanitizeWorker checks the settings the issuance worker cannot start without
func (c *Configuration) SanitizeWorker() error {
	if c.Ledger.URL == "" {
		return domain.NewConfigurationError("ledger url", errors.New("required"))
	}
	if c.Ledger.ContractAddress == "" {
		return domain.NewConfigurationError("ledger contract address", errors.New("required"))
	}
	if c.Queue.URL == "" {
		return domain.NewConfigurationError("queue url", errors.New("required"))
	}
	return nil
}

// Reload re-reads the environment into c. Components built from the previous snapshot keep it
// until they are rebuilt.
func (c *Configuration) Reload() error {
	fresh, err := Load()
	if err != nil {
		return err
	}
	if err := fresh.Sanitize(); err != nil {
		return err
	}
	*c = *fresh
	return nil
}

func validateURL(raw string) (string, error) {
	sURL, err := url.ParseRequestURI(raw)
	if err != nil {
		return raw, err
	}
	if sURL.Scheme == "" || sURL.Host == "" {
		return raw, errors.New("must be an absolute URL")
	}
	return strings.TrimRight(sURL.String(), "/"), nil
}

// Load reads the optional dotenv files and parses the environment.
// With no files, ./.env is loaded if present.
func Load(files ...string) (*Configuration, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewConfigurationError("dotenv", err)
	}
	cfg := &Configuration{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, domain.NewConfigurationError("environment", err)
	}
	if cfg.Log.Level < log.LevelDebug || cfg.Log.Level > log.LevelErr {
		cfg.Log.Level = log.LevelInfo
	}
	return cfg, nil
}
