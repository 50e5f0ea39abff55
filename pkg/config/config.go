package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes every environment variable consumed by the service.
const EnvPrefix = "SCRAPCO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Vendor       VendorConfig
	Dispatch     DispatchConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SCRAPCO_APP_ENV" required:"true"`
	Port         string `envconfig:"SCRAPCO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SCRAPCO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SCRAPCO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SCRAPCO_DB_DSN"`
	Driver string `envconfig:"SCRAPCO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCRAPCO_DB_HOST"`
	LegacyPort     int    `envconfig:"SCRAPCO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCRAPCO_DB_USER"`
	LegacyPassword string `envconfig:"SCRAPCO_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCRAPCO_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCRAPCO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SCRAPCO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCRAPCO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCRAPCO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCRAPCO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCRAPCO_REDIS_URL"`
	Address      string        `envconfig:"SCRAPCO_REDIS_ADDR"`
	Password     string        `envconfig:"SCRAPCO_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCRAPCO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCRAPCO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCRAPCO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCRAPCO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCRAPCO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCRAPCO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SCRAPCO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SCRAPCO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SCRAPCO_JWT_EXPIRATION_MINUTES" default:"60"`
}

// VendorConfig covers both directions of vendor traffic: inbound callback
// verification and outbound offer delivery.
type VendorConfig struct {
	WebhookSecret  string        `envconfig:"SCRAPCO_VENDOR_WEBHOOK_SECRET" required:"true"`
	OutboundBearer string        `envconfig:"SCRAPCO_VENDOR_OUTBOUND_BEARER"`
	OfferTimeout   time.Duration `envconfig:"SCRAPCO_VENDOR_OFFER_TIMEOUT" default:"10s"`
}

// OutboundBearerToken returns the configured bearer, treating the literal
// placeholder shipped in sample env files as unset.
func (v VendorConfig) OutboundBearerToken() string {
	token := strings.TrimSpace(v.OutboundBearer)
	if token == "" || token == "change_me" {
		return ""
	}
	return token
}

type DispatchConfig struct {
	OfferTTL      time.Duration `envconfig:"SCRAPCO_DISPATCH_OFFER_TTL" default:"2m"`
	TimerSlack    time.Duration `envconfig:"SCRAPCO_DISPATCH_TIMER_SLACK" default:"1s"`
	SweepInterval time.Duration `envconfig:"SCRAPCO_DISPATCH_SWEEP_INTERVAL" default:"10s"`
	SweepBatch    int           `envconfig:"SCRAPCO_DISPATCH_SWEEP_BATCH" default:"50"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SCRAPCO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"SCRAPCO_DB_HOST": db.LegacyHost,
		"SCRAPCO_DB_USER": db.LegacyUser,
		"SCRAPCO_DB_NAME": db.LegacyName,
	}
	for _, env := range []string{"SCRAPCO_DB_HOST", "SCRAPCO_DB_USER", "SCRAPCO_DB_NAME"} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either SCRAPCO_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
