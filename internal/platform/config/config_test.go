package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "jara-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "jara-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "jara-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderTopic {
		t.Errorf("unexpected order topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Pricing.Currency != "NPR" {
		t.Errorf("expected NPR currency, got %s", cfg.Pricing.Currency)
	}
	if cfg.Pricing.VATBasisPoints != 1300 {
		t.Errorf("expected 13%% vat, got %d bps", cfg.Pricing.VATBasisPoints)
	}
	if cfg.Pricing.RemoteMultiplierBps != 15000 {
		t.Errorf("expected remote multiplier 1.5, got %d bps", cfg.Pricing.RemoteMultiplierBps)
	}
	if cfg.Pricing.FreeWeightGrams != 5000 || cfg.Pricing.SurchargePerKg != 5000 {
		t.Errorf("unexpected weight surcharge defaults %+v", cfg.Pricing)
	}
	if cfg.Pricing.DefaultReturnPolicyDays != 7 {
		t.Errorf("expected 7 day return policy, got %d", cfg.Pricing.DefaultReturnPolicyDays)
	}
	if cfg.Pricing.PaymentHoldWindow != 30*time.Minute {
		t.Errorf("unexpected hold window %s", cfg.Pricing.PaymentHoldWindow)
	}
	if cfg.PSP.Stripe.Enabled() || cfg.PSP.Fonepay.Enabled() {
		t.Errorf("expected gateways disabled without credentials")
	}
	if cfg.SMTP.Enabled() {
		t.Errorf("expected smtp disabled without host")
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis disabled without addr")
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultOIDCIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.Store != "memory" {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_WRITE_TIMEOUT":           "25s",
		"API_FIREBASE_PROJECT_ID":            "jara-prod",
		"API_FIREBASE_CHECK_REVOKED":         "true",
		"API_FIRESTORE_PROJECT_ID":           "jara-fire",
		"API_REDIS_ADDR":                     "10.0.0.3:6379",
		"API_REDIS_PASSWORD":                 "sm://redis/password",
		"API_REDIS_ZONE_CACHE_TTL":           "1m",
		"API_PSP_TIMEOUT":                    "5s",
		"API_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"API_PSP_FONEPAY_MERCHANT_CODE":      "NBQM",
		"API_PSP_FONEPAY_SECRET_KEY":         "secret://fonepay/secret",
		"API_PSP_FONEPAY_REQUEST_URL":        "https://fonepay.example.com/request",
		"API_SMTP_HOST":                      "smtp.example.com",
		"API_SMTP_PORT":                      "465",
		"API_SMTP_FROM":                      "orders@jara.example.com",
		"API_SMTP_PASSWORD":                  "secret://smtp/password",
		"API_PRICING_VAT_BPS":                "1000",
		"API_PRICING_PAYMENT_HOLD_WINDOW":    "45m",
		"API_SECURITY_OIDC_AUDIENCE":         "https://api.jara.example.com",
		"API_SECURITY_OIDC_ISSUERS":          "https://accounts.google.com, accounts.google.com",
		"API_SECURITY_OIDC_SERVICE_ACCOUNTS": "scheduler@jara.iam.gserviceaccount.com",
		"API_IDEMPOTENCY_STORE":              "redis",
		"API_IDEMPOTENCY_TTL":                "48h",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "sk_test_123",
		"secret://fonepay/secret": "fonepay-secret",
		"secret://smtp/password":  "smtp-pass",
		"secret://redis/password": "redis-pass",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("PSP.Stripe.APIKey", "SMTP.Password"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "jara-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Redis.Password != "redis-pass" || cfg.Redis.ZoneCacheTTL != time.Minute {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.PSP.Stripe.APIKey != "sk_test_123" || !cfg.PSP.Stripe.Enabled() {
		t.Errorf("expected resolved stripe key, got %q", cfg.PSP.Stripe.APIKey)
	}
	if cfg.PSP.Fonepay.SecretKey != "fonepay-secret" || !cfg.PSP.Fonepay.Enabled() {
		t.Errorf("unexpected fonepay config %+v", cfg.PSP.Fonepay)
	}
	if cfg.PSP.Timeout != 5*time.Second {
		t.Errorf("unexpected gateway timeout %s", cfg.PSP.Timeout)
	}
	if cfg.SMTP.Port != 465 || cfg.SMTP.Password != "smtp-pass" {
		t.Errorf("unexpected smtp config %+v", cfg.SMTP)
	}
	if cfg.Pricing.VATBasisPoints != 1000 || cfg.Pricing.PaymentHoldWindow != 45*time.Minute {
		t.Errorf("unexpected pricing config %+v", cfg.Pricing)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if !cfg.Firebase.CheckRevoked {
		t.Errorf("expected revocation checks enabled")
	}
	if len(cfg.Security.OIDC.ServiceAccounts) != 1 || cfg.Security.OIDC.ServiceAccounts[0] != "scheduler@jara.iam.gserviceaccount.com" {
		t.Errorf("unexpected service accounts %v", cfg.Security.OIDC.ServiceAccounts)
	}
	if cfg.Idempotency.Store != "redis" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=\"jara-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "jara-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{
			name:  "missing project",
			env:   map[string]string{},
			field: "Firebase.ProjectID",
		},
		{
			name: "redis idempotency without redis",
			env: map[string]string{
				"API_FIREBASE_PROJECT_ID": "jara-dev",
				"API_IDEMPOTENCY_STORE":   "redis",
			},
			field: "Redis.Addr",
		},
		{
			name: "remote multiplier below one",
			env: map[string]string{
				"API_FIREBASE_PROJECT_ID":           "jara-dev",
				"API_PRICING_REMOTE_MULTIPLIER_BPS": "5000",
			},
			field: "Pricing.RemoteMultiplierBps",
		},
		{
			name: "smtp without sender",
			env: map[string]string{
				"API_FIREBASE_PROJECT_ID": "jara-dev",
				"API_SMTP_HOST":           "smtp.example.com",
			},
			field: "SMTP.From",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "jara-dev",
		"API_PSP_STRIPE_API_KEY":  "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "jara-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.Fonepay.SecretKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "PSP.Fonepay.SecretKey" {
		t.Fatalf("unexpected missing names %v", got)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] == "PSP.Fonepay.SecretKey" {
		t.Fatalf("expected redacted names, got %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		if _, ok := rec.(*MissingSecretsError); !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
	}()

	Load(context.Background(),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "jara-dev"}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("SMTP.Password"),
		WithPanicOnMissingSecrets(),
	)
}
