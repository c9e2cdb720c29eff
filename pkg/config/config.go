package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Mpesa         MpesaConfig
	Notifications NotificationsConfig
	FeatureFlags  FeatureFlagsConfig
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
	Env          string `envconfig:"UF_APP_ENV" required:"true"`
	Port         string `envconfig:"UF_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"UF_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"UF_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"UF_DB_DSN"`
	Driver string `envconfig:"UF_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"UF_DB_HOST"`
	LegacyPort     int    `envconfig:"UF_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"UF_DB_USER"`
	LegacyPassword string `envconfig:"UF_DB_PASSWORD"`
	LegacyName     string `envconfig:"UF_DB_NAME"`
	LegacySSLMode  string `envconfig:"UF_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"UF_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"UF_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"UF_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"UF_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"UF_REDIS_URL" required:"true"`
	Address      string        `envconfig:"UF_REDIS_ADDR"`
	Password     string        `envconfig:"UF_REDIS_PASSWORD"`
	DB           int           `envconfig:"UF_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"UF_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"UF_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"UF_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"UF_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"UF_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"UF_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"UF_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"UF_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MpesaConfig carries the Daraja credentials and callback trust settings.
type MpesaConfig struct {
	ConsumerKey    string `envconfig:"UF_MPESA_CONSUMER_KEY" required:"true"`
	ConsumerSecret string `envconfig:"UF_MPESA_CONSUMER_SECRET" required:"true"`
	Passkey        string `envconfig:"UF_MPESA_PASSKEY" required:"true"`
	PaybillNumber  string `envconfig:"UF_MPESA_PAYBILL_NUMBER" required:"true"`
	TillNumber     string `envconfig:"UF_MPESA_TILL_NUMBER"`
	Production     bool   `envconfig:"UF_MPESA_PRODUCTION" default:"false"`
	CallbackURL    string `envconfig:"UF_MPESA_CALLBACK_URL" required:"true"`

	// TokenTTL is deliberately shorter than the provider's 3600s token expiry
	// so a cached credential is never used at the edge of its lifetime.
	TokenTTL     time.Duration `envconfig:"UF_MPESA_TOKEN_TTL" default:"3500s"`
	TokenTimeout time.Duration `envconfig:"UF_MPESA_TOKEN_TIMEOUT" default:"15s"`
	HTTPTimeout  time.Duration `envconfig:"UF_MPESA_HTTP_TIMEOUT" default:"20s"`

	// AllowedIPs is Safaricom's published callback origin list.
	AllowedIPs []string `envconfig:"UF_MPESA_ALLOWED_IPS" default:"196.201.214.200,196.201.214.206,196.201.213.114,196.201.214.207,196.201.214.208,196.201.213.44,196.201.212.127,196.201.212.138"`
}

// BaseURL returns the Daraja host for the configured environment.
func (m MpesaConfig) BaseURL() string {
	if m.Production {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

type NotificationsConfig struct {
	OperatorEmail string `envconfig:"UF_NOTIFICATIONS_OPERATOR_EMAIL"`
	OperatorChat  string `envconfig:"UF_NOTIFICATIONS_OPERATOR_CHAT"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"UF_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
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
