package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pawpal/api/internal/clients/directory"
	"github.com/pawpal/api/internal/di"
	"github.com/pawpal/api/internal/handlers"
	"github.com/pawpal/api/internal/platform/auth"
	"github.com/pawpal/api/internal/platform/config"
	pfirestore "github.com/pawpal/api/internal/platform/firestore"
	"github.com/pawpal/api/internal/platform/idempotency"
	"github.com/pawpal/api/internal/platform/jobs"
	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/platform/observability"
	"github.com/pawpal/api/internal/platform/secrets"
	"github.com/pawpal/api/internal/repositories"
	firestoreRepo "github.com/pawpal/api/internal/repositories/firestore"
	mongoRepo "github.com/pawpal/api/internal/repositories/mongodb"
	"github.com/pawpal/api/internal/services"
)

const webhookCallerHeader = "X-Signature-Caller"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

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
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	shutdownTelemetry, err := observability.SetupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("failed to initialise telemetry", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var redisClient redis.UniversalClient
	if addr := strings.TrimSpace(cfg.Idempotency.RedisAddr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Idempotency.RedisPassword,
			DB:       cfg.Idempotency.RedisDB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	checks := dependencyChecks(fetcher, redisClient)
	registry, err := newRegistry(ctx, cfg, checks)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	directoryClient, err := directory.NewClient(cfg.Directory)
	if err != nil {
		logger.Fatal("failed to initialise directory client", zap.Error(err))
	}

	notifier, closeNotifier, err := jobs.NewNotifier(ctx, cfg.Notifications, logger.Named("notifier"))
	if err != nil {
		logger.Fatal("failed to initialise notifier", zap.String("driver", cfg.Notifications.Driver), zap.Error(err))
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Warn("notifier close error", zap.Error(err))
		}
	}()

	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithLogger(logger),
		di.WithDirectory(directoryClient),
		di.WithNotifier(notifier),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	idempotencyMiddleware, err := buildIdempotencyMiddleware(logger.Named("idempotency"), cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	hmacMiddleware, err := buildHMACMiddleware(logger.Named("auth"), cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise webhook verification", zap.Error(err))
	}

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	opts := []handlers.Option{
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.AccessLog(logger, projectID),
			observability.Recover(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthSystemService(container.Services.System),
			handlers.WithHealthBuildInfo(buildInfo),
		)),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Services.Orders).Routes),
		handlers.WithBookingRoutes(handlers.NewBookingHandlers(container.Services.Bookings).Routes),
		handlers.WithPromotionRoutes(handlers.NewPromotionHandlers(container.Services.Promotions).Routes),
		handlers.WithWebhookRoutes(handlers.NewPaymentWebhookHandlers(container.Services.Orders).Routes),
		handlers.WithAPIMiddlewares(
			auth.Gateway(),
			handlers.RateLimitMiddleware(handlers.RateLimitConfig{
				AnonymousPerMinute:     cfg.RateLimits.DefaultPerMinute,
				AuthenticatedPerMinute: cfg.RateLimits.AuthenticatedPerMinute,
			}),
		),
		handlers.WithWriteMiddlewares(idempotencyMiddleware),
		handlers.WithWebhookMiddlewares(
			handlers.RateLimitMiddleware(handlers.RateLimitConfig{AnonymousPerMinute: cfg.RateLimits.WebhookBurst}),
			hmacMiddleware,
		),
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pawpal api listening",
			zap.String("store", cfg.Store.Driver),
			zap.String("notify", cfg.Notifications.Driver),
			zap.String("version", buildInfo.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func newRegistry(ctx context.Context, cfg config.Config, checks []repositories.DependencyCheck) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		provider, err := pmongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		reg, err := mongoRepo.NewRegistry(ctx, provider, checks...)
		if err != nil {
			_ = provider.Close(context.Background())
			return nil, err
		}
		return reg, nil
	default:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, err
		}
		reg, err := firestoreRepo.NewRegistry(provider, checks...)
		if err != nil {
			_ = provider.Close(context.Background())
			return nil, err
		}
		return reg, nil
	}
}

func dependencyChecks(fetcher *secrets.Fetcher, redisClient redis.UniversalClient) []repositories.DependencyCheck {
	var checks []repositories.DependencyCheck
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrSecretNotFound) {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

func buildIdempotencyMiddleware(logger *zap.Logger, cfg config.Config, redisClient redis.UniversalClient) (func(http.Handler) http.Handler, error) {
	var store idempotency.Store = idempotency.NewMemoryStore()
	if redisClient != nil {
		redisStore, err := idempotency.NewRedisStore(redisClient, cfg.Idempotency.KeyPrefix)
		if err != nil {
			return nil, err
		}
		store = redisStore
	} else {
		logger.Warn("idempotency: redis not configured; using in-memory store")
	}
	return idempotency.Middleware(store,
		idempotency.WithOptionalKey(),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger),
	), nil
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, redisClient redis.UniversalClient) (func(http.Handler) http.Handler, error) {
	callers := make(auth.StaticSecrets)
	for key, value := range cfg.Security.HMAC.Secrets {
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		callers[name] = value
	}
	if len(callers) == 0 {
		logger.Warn("auth: no webhook secrets configured; payment callbacks will be rejected")
	}

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	if redisClient != nil {
		redisNonces, err := auth.NewRedisNonceStore(redisClient, "pawpal:nonce:")
		if err != nil {
			return nil, err
		}
		nonces = redisNonces
	}

	validator := auth.NewHMACValidator(callers, nonces,
		auth.WithHMACLogger(logger),
		auth.WithHMACMetrics(observability.VerificationMetrics()),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMACResolver(auth.CallerFromHeader(webhookCallerHeader, callers)), nil
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
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallbackPath),
	}
	if credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve before the server starts.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_STORE_DRIVER"]), config.StoreMongo) {
		required = append(required, "Mongo.URI")
	}
	for _, name := range parseHMACSecretKeys(env["API_SECURITY_HMAC_SECRETS"]) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", name))
	}
	return required
}

func parseHMACSecretKeys(raw string) []string {
	var keys []string
	for _, pair := range strings.Split(raw, ",") {
		key, _, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
