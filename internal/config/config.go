// Package config loads launcher configuration from the environment, an
// optional .env file and an optional YAML program table overlay.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the complete launcher configuration.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Solana   SolanaConfig
	Jito     JitoConfig
	Pipeline PipelineConfig
	Pinning  PinningConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Auth     AuthConfig

	// ProgramsFile points at the YAML program table overlay.
	ProgramsFile string `env:"LAUNCHER_PROGRAMS_FILE"`
	Programs     *ProgramsConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `env:"LAUNCHER_LISTEN_ADDR,default=:8080"`
	RequestTimeout  time.Duration `env:"LAUNCHER_REQUEST_TIMEOUT,default=120s"`
	ShutdownTimeout time.Duration `env:"LAUNCHER_SHUTDOWN_TIMEOUT,default=30s"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS,default=2"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=5"`
	ReconcileSpec   string        `env:"LAUNCHER_RECONCILE_SCHEDULE,default=@every 1m"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// SolanaConfig configures ledger access.
type SolanaConfig struct {
	RPCURL       string        `env:"SOLANA_RPC_URL"`
	WSURL        string        `env:"SOLANA_WS_URL"`
	Commitment   string        `env:"SOLANA_COMMITMENT,default=confirmed"`
	Timeout      time.Duration `env:"SOLANA_RPC_TIMEOUT,default=30s"`
	PollInterval time.Duration `env:"SOLANA_POLL_INTERVAL,default=2s"`

	// MaxConfirmPolls of zero derives the cap from the poll interval.
	MaxConfirmPolls int `env:"SOLANA_MAX_CONFIRM_POLLS,default=0"`
}

// JitoConfig configures the block engine relay. An empty URL disables the
// bundle path.
type JitoConfig struct {
	BlockEngineURL string        `env:"JITO_BLOCK_ENGINE_URL"`
	AuthUUID       string        `env:"JITO_AUTH_UUID"`
	TipLamports    uint64        `env:"JITO_TIP_LAMPORTS,default=1000000"`
	Timeout        time.Duration `env:"JITO_TIMEOUT,default=15s"`
}

// PipelineConfig bounds the submission retry loops.
type PipelineConfig struct {
	BundleAttempts    int           `env:"PIPELINE_BUNDLE_ATTEMPTS,default=3"`
	BundleBackoffBase time.Duration `env:"PIPELINE_BUNDLE_BACKOFF,default=1s"`
	BundleBackoffMax  time.Duration `env:"PIPELINE_BUNDLE_BACKOFF_MAX,default=5s"`
	ConfirmAttempts   int           `env:"PIPELINE_CONFIRM_ATTEMPTS,default=5"`
	ConfirmInterval   time.Duration `env:"PIPELINE_CONFIRM_INTERVAL,default=10s"`
	DirectAttempts    int           `env:"PIPELINE_DIRECT_ATTEMPTS,default=3"`
	AllocateAttempts  int           `env:"PIPELINE_ALLOCATE_ATTEMPTS,default=20"`
}

// PinningConfig selects and configures the metadata pinning backend.
type PinningConfig struct {
	Backend string `env:"PINNING_BACKEND,default=pinata"`

	PinataJWT     string `env:"PINATA_JWT"`
	PinataAPIURL  string `env:"PINATA_API_URL,default=https://api.pinata.cloud"`
	PinataGateway string `env:"PINATA_GATEWAY,default=gateway.pinata.cloud"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET,default=token-metadata"`
	S3UseSSL    bool   `env:"S3_USE_SSL,default=true"`
	S3Gateway   string `env:"S3_GATEWAY"`

	Timeout time.Duration `env:"PINNING_TIMEOUT,default=60s"`
}

// CacheConfig configures the metadata URI cache. An empty Redis URL selects
// the in-process cache.
type CacheConfig struct {
	RedisURL  string `env:"REDIS_URL"`
	KeyPrefix string `env:"CACHE_KEY_PREFIX,default=launcher:metadata:"`
}

// DatabaseConfig configures persistence. An empty URL disables it.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE,default=true"`
}

// AuthConfig configures bearer authentication. An empty secret disables it.
type AuthConfig struct {
	JWTSecret string `env:"LAUNCHER_JWT_SECRET"`
	JWTIssuer string `env:"LAUNCHER_JWT_ISSUER"`
}

// Load reads envFile (when present), decodes the environment and applies the
// program table overlay. The result is validated.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	programs := DefaultProgramsConfig()
	if cfg.ProgramsFile != "" {
		loaded, err := LoadProgramsConfigFromPath(cfg.ProgramsFile)
		if err != nil {
			return nil, err
		}
		programs = loaded
	}
	cfg.Programs = programs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Solana.RPCURL == "" {
		add("SOLANA_RPC_URL is required")
	} else if !isURL(c.Solana.RPCURL, "http", "https") {
		add("SOLANA_RPC_URL must be an http(s) URL")
	}
	if c.Solana.WSURL != "" && !isURL(c.Solana.WSURL, "ws", "wss") {
		add("SOLANA_WS_URL must be a ws(s) URL")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		add("SOLANA_COMMITMENT must be processed, confirmed or finalized")
	}
	if c.Jito.BlockEngineURL != "" && !isURL(c.Jito.BlockEngineURL, "http", "https") {
		add("JITO_BLOCK_ENGINE_URL must be an http(s) URL")
	}
	if c.Jito.BlockEngineURL != "" && c.Jito.TipLamports == 0 {
		add("JITO_TIP_LAMPORTS must be positive when the relay is enabled")
	}

	switch c.Pinning.Backend {
	case "pinata":
		if c.Pinning.PinataJWT == "" {
			add("PINATA_JWT is required for the pinata backend")
		}
	case "s3":
		if c.Pinning.S3Endpoint == "" {
			add("S3_ENDPOINT is required for the s3 backend")
		}
		if c.Pinning.S3Bucket == "" {
			add("S3_BUCKET is required for the s3 backend")
		}
		if c.Pinning.S3Gateway == "" {
			add("S3_GATEWAY is required for the s3 backend")
		}
	default:
		add("PINNING_BACKEND must be pinata or s3")
	}

	p := c.Pipeline
	if p.BundleAttempts < 1 || p.ConfirmAttempts < 1 || p.DirectAttempts < 1 || p.AllocateAttempts < 1 {
		add("pipeline attempt bounds must be at least 1")
	}
	if c.Server.RequestTimeout <= 0 {
		add("LAUNCHER_REQUEST_TIMEOUT must be positive")
	}
	if c.Server.RateLimitRPS < 0 {
		add("RATE_LIMIT_RPS must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// AllowedOriginList splits ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func isURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
