package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultEnvironment   = "local"
	defaultOIDCJWKSURL   = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer    = "https://accounts.google.com"
	defaultOrderTopic    = "order-events"
	defaultRedisPoolSize = 20
	defaultRedisMinIdle  = 2
	defaultRedisTimeout  = 3 * time.Second
	defaultZoneCacheTTL  = 10 * time.Minute

	defaultCurrency             = "NPR"
	defaultVATBasisPoints       = 1300
	defaultRemoteMultiplierBps  = 15000
	defaultFreeWeightGrams      = 5000
	defaultSurchargePerKg       = 5000
	defaultReturnPolicyDays     = 7
	defaultPaymentHoldWindow    = 30 * time.Minute
	defaultGatewayTimeout       = 20 * time.Second
	defaultFonepayRemark        = "JaraEcommerce"
	defaultSMTPPort             = 587
	defaultSMTPTLSPolicy        = "mandatory"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyStoreKind = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	PubSub      PubSubConfig
	PSP         PSPConfig
	SMTP        SMTPConfig
	Pricing     PricingConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked makes token verification consult Firebase for revoked sessions.
	CheckRevoked bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig configures the shared Redis client used for caching and idempotency.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ZoneCacheTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// PubSubConfig names the topics order events are published to.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// PSPConfig collects payment gateway settings.
type PSPConfig struct {
	Timeout time.Duration
	Stripe  StripeConfig
	Fonepay FonepayConfig
}

// StripeConfig holds card gateway credentials.
type StripeConfig struct {
	APIKey string
}

// Enabled reports whether card payments can be offered.
func (c StripeConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// FonepayConfig holds wallet gateway credentials and endpoints.
type FonepayConfig struct {
	MerchantCode string
	SecretKey    string
	RequestURL   string
	VerifyURL    string
	ReturnURL    string
	Remark       string
}

// Enabled reports whether wallet payments can be offered.
func (c FonepayConfig) Enabled() bool {
	return strings.TrimSpace(c.MerchantCode) != "" && strings.TrimSpace(c.RequestURL) != ""
}

// SMTPConfig configures outbound mail delivery.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	TLSPolicy string
}

// Enabled reports whether an SMTP relay was configured.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// PricingConfig parameterises tax, shipping surcharges and order holds.
type PricingConfig struct {
	Currency                string
	VATBasisPoints          int64
	RemoteMultiplierBps     int64
	FreeWeightGrams         int64
	SurchargePerKg          int64
	DefaultReturnPolicyDays int
	PaymentHoldWindow       time.Duration
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL         string
	Audience        string
	Issuers         []string
	ServiceAccounts []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
	Store  string
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    boolWithDefault(lookup, "API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:         stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:     stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:           intWithDefault(lookup, "API_REDIS_DB", 0),
			PoolSize:     intWithDefault(lookup, "API_REDIS_POOL_SIZE", defaultRedisPoolSize),
			MinIdleConns: intWithDefault(lookup, "API_REDIS_MIN_IDLE_CONNS", defaultRedisMinIdle),
			DialTimeout:  durationWithDefault(lookup, "API_REDIS_DIAL_TIMEOUT", defaultRedisTimeout),
			ZoneCacheTTL: durationWithDefault(lookup, "API_REDIS_ZONE_CACHE_TTL", defaultZoneCacheTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderTopic),
		},
		PSP: PSPConfig{
			Timeout: durationWithDefault(lookup, "API_PSP_TIMEOUT", defaultGatewayTimeout),
			Stripe: StripeConfig{
				APIKey: stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			},
			Fonepay: FonepayConfig{
				MerchantCode: stringWithDefault(lookup, "API_PSP_FONEPAY_MERCHANT_CODE", ""),
				SecretKey:    stringWithDefault(lookup, "API_PSP_FONEPAY_SECRET_KEY", ""),
				RequestURL:   stringWithDefault(lookup, "API_PSP_FONEPAY_REQUEST_URL", ""),
				VerifyURL:    stringWithDefault(lookup, "API_PSP_FONEPAY_VERIFY_URL", ""),
				ReturnURL:    stringWithDefault(lookup, "API_PSP_FONEPAY_RETURN_URL", ""),
				Remark:       stringWithDefault(lookup, "API_PSP_FONEPAY_REMARK", defaultFonepayRemark),
			},
		},
		SMTP: SMTPConfig{
			Host:      stringWithDefault(lookup, "API_SMTP_HOST", ""),
			Port:      intWithDefault(lookup, "API_SMTP_PORT", defaultSMTPPort),
			Username:  stringWithDefault(lookup, "API_SMTP_USERNAME", ""),
			Password:  stringWithDefault(lookup, "API_SMTP_PASSWORD", ""),
			From:      stringWithDefault(lookup, "API_SMTP_FROM", ""),
			FromName:  stringWithDefault(lookup, "API_SMTP_FROM_NAME", "Jara"),
			TLSPolicy: strings.ToLower(stringWithDefault(lookup, "API_SMTP_TLS_POLICY", defaultSMTPTLSPolicy)),
		},
		Pricing: PricingConfig{
			Currency:                strings.ToUpper(stringWithDefault(lookup, "API_PRICING_CURRENCY", defaultCurrency)),
			VATBasisPoints:          int64(intWithDefault(lookup, "API_PRICING_VAT_BPS", defaultVATBasisPoints)),
			RemoteMultiplierBps:     int64(intWithDefault(lookup, "API_PRICING_REMOTE_MULTIPLIER_BPS", defaultRemoteMultiplierBps)),
			FreeWeightGrams:         int64(intWithDefault(lookup, "API_PRICING_FREE_WEIGHT_GRAMS", defaultFreeWeightGrams)),
			SurchargePerKg:          int64(intWithDefault(lookup, "API_PRICING_SURCHARGE_PER_KG", defaultSurchargePerKg)),
			DefaultReturnPolicyDays: intWithDefault(lookup, "API_PRICING_RETURN_POLICY_DAYS", defaultReturnPolicyDays),
			PaymentHoldWindow:       durationWithDefault(lookup, "API_PRICING_PAYMENT_HOLD_WINDOW", defaultPaymentHoldWindow),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:         stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:         csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
				ServiceAccounts: csvWithDefault(lookup, "API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			Store:  strings.ToLower(stringWithDefault(lookup, "API_IDEMPOTENCY_STORE", defaultIdempotencyStoreKind)),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.Stripe.APIKey", &cfg.PSP.Stripe.APIKey},
		{"PSP.Fonepay.SecretKey", &cfg.PSP.Fonepay.SecretKey},
		{"SMTP.Password", &cfg.SMTP.Password},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if len(cfg.Pricing.Currency) != 3 {
		invalid = append(invalid, "Pricing.Currency")
	}
	if cfg.Pricing.VATBasisPoints < 0 {
		invalid = append(invalid, "Pricing.VATBasisPoints")
	}
	if cfg.Pricing.RemoteMultiplierBps < 10000 {
		invalid = append(invalid, "Pricing.RemoteMultiplierBps")
	}
	if cfg.Pricing.FreeWeightGrams < 0 {
		invalid = append(invalid, "Pricing.FreeWeightGrams")
	}
	if cfg.Pricing.SurchargePerKg < 0 {
		invalid = append(invalid, "Pricing.SurchargePerKg")
	}
	if cfg.Pricing.DefaultReturnPolicyDays < 0 {
		invalid = append(invalid, "Pricing.DefaultReturnPolicyDays")
	}
	if cfg.Pricing.PaymentHoldWindow <= 0 {
		invalid = append(invalid, "Pricing.PaymentHoldWindow")
	}
	if cfg.PSP.Timeout <= 0 {
		invalid = append(invalid, "PSP.Timeout")
	}
	if cfg.SMTP.Enabled() {
		if cfg.SMTP.Port <= 0 {
			invalid = append(invalid, "SMTP.Port")
		}
		if strings.TrimSpace(cfg.SMTP.From) == "" {
			invalid = append(invalid, "SMTP.From")
		}
		switch cfg.SMTP.TLSPolicy {
		case "mandatory", "opportunistic", "none":
		default:
			invalid = append(invalid, "SMTP.TLSPolicy")
		}
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	switch cfg.Idempotency.Store {
	case "memory":
	case "redis":
		if !cfg.Redis.Enabled() {
			invalid = append(invalid, "Redis.Addr")
		}
	default:
		invalid = append(invalid, "Idempotency.Store")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
