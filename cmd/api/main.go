package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jara-commerce/api/internal/di"
	"github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/handlers"
	"github.com/jara-commerce/api/internal/payments"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/platform/cache"
	"github.com/jara-commerce/api/internal/platform/config"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/platform/idempotency"
	"github.com/jara-commerce/api/internal/platform/jobs"
	"github.com/jara-commerce/api/internal/platform/mailer"
	"github.com/jara-commerce/api/internal/platform/observability"
	"github.com/jara-commerce/api/internal/platform/secrets"
	"github.com/jara-commerce/api/internal/repositories"
	firestoreRepo "github.com/jara-commerce/api/internal/repositories/firestore"
	"github.com/jara-commerce/api/internal/repositories/rediscache"
	"github.com/jara-commerce/api/internal/services"
)

const (
	promoValidateLimit  = 30
	promoValidateWindow = time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var providerOpts []pfirestore.ProviderOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	healthRepo, err := newHealthRepository(firestoreClient, redisClient, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	registryOpts := []firestoreRepo.RegistryOption{firestoreRepo.WithHealthRepository(healthRepo)}
	if redisClient != nil {
		zoneCacheLogger := observability.EventLogger(logger.Named("zone_cache"))
		registryOpts = append(registryOpts, firestoreRepo.WithShippingZoneCache(func(next repositories.ShippingZoneRepository) repositories.ShippingZoneRepository {
			cached, err := rediscache.NewShippingZoneCache(next, redisClient,
				rediscache.WithTTL(cfg.Redis.ZoneCacheTTL),
				rediscache.WithLogger(zoneCacheLogger),
			)
			if err != nil {
				logger.Warn("shipping zone cache disabled", zap.Error(err))
				return next
			}
			return cached
		}))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	dispatcher, err := newPaymentDispatcher(logger.Named("payments"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment dispatcher", zap.Error(err))
	}

	infra := di.Infrastructure{
		Dispatcher: dispatcher,
		Build:      buildInfo,
		Logger:     logger,
		Clock:      time.Now,
	}

	if cfg.SMTP.Enabled() {
		smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			logger.Fatal("failed to initialise smtp mailer", zap.Error(err))
		}
		infra.Notifier = smtpMailer
	} else {
		logger.Info("smtp not configured; order confirmation mail disabled")
	}

	var eventTopic *pubsub.Topic
	if project := strings.TrimSpace(cfg.PubSub.ProjectID); project != "" && strings.TrimSpace(cfg.PubSub.OrderEventsTopic) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, project)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventTopic = pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		eventTopic.EnableMessageOrdering = true
		publisher, err := jobs.NewPubSubOrderEventPublisher(eventTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		infra.Events = publisher
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	svc := container.Services

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	idempotencyMiddleware, err := buildIdempotencyMiddleware(logger.Named("idempotency"), cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}

	var promoLimiter handlers.RateLimiter
	if redisClient != nil {
		promoLimiter = handlers.NewRedisRateLimiter(redisClient, "ratelimit:promo", promoValidateLimit, promoValidateWindow)
	} else {
		promoLimiter = handlers.NewMemoryRateLimiter(promoValidateLimit, promoValidateWindow, time.Now)
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders,
		handlers.WithOrderReturns(svc.Returns),
		handlers.WithOrderIdempotency(idempotencyMiddleware),
	)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments,
		handlers.WithPaymentIdempotency(idempotencyMiddleware),
	)
	promotionHandlers := handlers.NewPromotionHandlers(authenticator, svc.Promotions,
		handlers.WithPromotionRateLimiter(promoLimiter),
	)
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Catalog)
	shippingHandlers := handlers.NewShippingHandlers(authenticator, svc.Shipping, svc.Zones)
	returnHandlers := handlers.NewAdminReturnHandlers(authenticator, svc.Returns)
	jobHandlers := handlers.NewInternalJobHandlers(svc.Orders)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithPromotionRoutes(promotionHandlers.Routes),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithAdminRoutes(productHandlers.AdminRoutes, promotionHandlers.AdminRoutes, shippingHandlers.AdminRoutes, returnHandlers.AdminRoutes),
		handlers.WithInternalRoutes(jobHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("jara api listening", zap.Strings("paymentMethods", methodNames(dispatcher.Methods())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if eventTopic != nil {
		eventTopic.Stop()
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newPaymentDispatcher(logger *zap.Logger, cfg config.Config) (*payments.Dispatcher, error) {
	gatewayLogger := payments.GatewayLogger(observability.EventLogger(logger))
	gateways := []payments.Gateway{payments.CODGateway{}}

	if cfg.PSP.Stripe.Enabled() {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeConfig{
			APIKey:   cfg.PSP.Stripe.APIKey,
			Currency: cfg.Pricing.Currency,
			Logger:   gatewayLogger,
		})
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, stripeGateway)
	} else {
		logger.Info("stripe not configured; card payments disabled")
	}

	if cfg.PSP.Fonepay.Enabled() {
		fonepayGateway, err := payments.NewFonepayGateway(payments.FonepayConfig{
			MerchantCode: cfg.PSP.Fonepay.MerchantCode,
			SecretKey:    cfg.PSP.Fonepay.SecretKey,
			RequestURL:   cfg.PSP.Fonepay.RequestURL,
			VerifyURL:    cfg.PSP.Fonepay.VerifyURL,
			ReturnURL:    cfg.PSP.Fonepay.ReturnURL,
			Remark:       cfg.PSP.Fonepay.Remark,
			HTTPClient:   &http.Client{Timeout: cfg.PSP.Timeout},
			Logger:       gatewayLogger,
		})
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, fonepayGateway)
	} else {
		logger.Info("fonepay not configured; wallet payments disabled")
	}

	return payments.NewDispatcher(gateways,
		payments.WithTimeout(cfg.PSP.Timeout),
		payments.WithLogger(gatewayLogger),
	)
}

func buildIdempotencyMiddleware(logger *zap.Logger, cfg config.Config, client *redis.Client) (func(http.Handler) http.Handler, error) {
	var store idempotency.Store
	switch cfg.Idempotency.Store {
	case "redis":
		if client == nil {
			return nil, errors.New("idempotency: redis store selected but redis is not configured")
		}
		redisStore, err := idempotency.NewRedisStore(client)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		store = idempotency.NewMemoryStore()
	}
	return idempotency.Middleware(store,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger)),
	), nil
}

func newHealthRepository(client *firestore.Client, redisClient *redis.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Critical: true,
			Timeout:  1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check:   cache.Pinger{Client: redisClient}.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	opts := []auth.OIDCOption{
		auth.WithOIDCLogger(adapter),
		auth.WithOIDCServiceAccounts(cfg.Security.OIDC.ServiceAccounts...),
	}
	if recorder, err := auth.NewOTelMetrics(nil); err != nil {
		logger.Warn("auth: verification metrics disabled", zap.Error(err))
	} else {
		opts = append(opts, auth.WithOIDCMetrics(recorder))
	}
	validator := auth.NewOIDCValidator(jwks, opts...)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func methodNames(methods []domain.PaymentMethod) []string {
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		names = append(names, string(m))
	}
	return names
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS"), strings.ToLower)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve for the gateways and relays configured in env.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	has := func(key string) bool { return strings.TrimSpace(env[key]) != "" }

	if has("API_PSP_STRIPE_API_KEY") {
		required = append(required, "PSP.Stripe.APIKey")
	}
	if has("API_PSP_FONEPAY_MERCHANT_CODE") {
		required = append(required, "PSP.Fonepay.SecretKey")
	}
	if has("API_SMTP_HOST") && has("API_SMTP_USERNAME") {
		required = append(required, "SMTP.Password")
	}
	return uniqueStrings(required)
}

// parseKeyValueList parses "k1=v1,k2=v2". normalizeKey, when set, is applied to every key.
func parseKeyValueList(raw string, normalizeKey func(string) string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if normalizeKey != nil {
			key = normalizeKey(key)
		}
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
