package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/creditgate/billing/internal/adapters/database"
	"github.com/creditgate/billing/internal/adapters/postgres"
	"github.com/creditgate/billing/internal/adapters/stripe"
	"github.com/creditgate/billing/internal/config"
	"github.com/creditgate/billing/internal/domain/ports"
	billinghandler "github.com/creditgate/billing/internal/handlers/billing"
	accountService "github.com/creditgate/billing/internal/services/account"
	auditService "github.com/creditgate/billing/internal/services/audit"
	ledgerService "github.com/creditgate/billing/internal/services/ledger"
	purchaseService "github.com/creditgate/billing/internal/services/purchase"
	webhookService "github.com/creditgate/billing/internal/services/webhook"
	pkgmw "github.com/creditgate/billing/pkg/middleware"
	"github.com/creditgate/billing/pkg/observability"
	"github.com/creditgate/billing/pkg/resilience"
	"github.com/creditgate/billing/pkg/security"
	"github.com/creditgate/billing/pkg/shutdown"
)

const startupConnectAttempts = 10

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
		zap.String("payment_provider", cfg.Stripe.Provider))

	ctx := context.Background()

	// Secrets load once at startup; reconfiguration requires restart
	secretManager := initSecretManager(ctx, &cfg.Secrets, logger)
	if err := resolveStripeSecrets(ctx, &cfg.Stripe, secretManager, logger); err != nil {
		logger.Fatal("Failed to resolve payment provider secrets", zap.Error(err))
	}

	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	// Primary pool: all locking transactions and every read that feeds a
	// mutation decision
	writeDB := connectDatabase(ctx, cfg.Database.URL, &cfg.Database, logger)
	shutdownMgr.RegisterNoErr("database", writeDB.Close)
	writeDB.StartPoolMonitoring(ctx, 30*time.Second)

	// Optional replica pool for authorization-decision reads. When no
	// replica is configured both roles share the primary.
	readDB := writeDB
	if cfg.Database.ReadURL != cfg.Database.URL {
		readDB = connectDatabase(ctx, cfg.Database.ReadURL, &cfg.Database, logger)
		shutdownMgr.RegisterNoErr("database-replica", readDB.Close)
		logger.Info("Read replica pool established")
	}

	deps := initDependencies(writeDB, readDB, cfg, logger)
	deps.audit.Start()
	shutdownMgr.Register("audit-recorder", deps.audit.Shutdown)

	rateLimiter := pkgmw.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	shutdownMgr.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	health := observability.NewHealthChecker(writeDB.GetDB())

	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), health, logger)
	shutdownMgr.RegisterHTTPServer("metrics-server", metricsServer)
	logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))

	router := billinghandler.NewRouter(billinghandler.RouterDeps{
		Handler:        deps.handler,
		Health:         health,
		RateLimiter:    rateLimiter,
		APIKeys:        cfg.Auth.APIKeys,
		CORS:           cfg.CORS,
		RequestTimeout: cfg.Server.LedgerTimeout + 5*time.Second,
		Development:    cfg.Logger.Development,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	shutdownMgr.RegisterHTTPServer("http-server", httpServer)

	go func() {
		logger.Info("HTTP server listening",
			zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	shutdownMgr.WaitForShutdown()
}

// Dependencies holds the wired service graph
type Dependencies struct {
	handler *billinghandler.Handler
	audit   *auditService.Service
}

// initDependencies wires repositories, services, and handlers. Everything
// hangs off the write adapter; the read pool only serves authorization
// reads inside the ledger.
func initDependencies(writeDB, readDB *database.PostgreSQLAdapter, cfg *config.Config, logger *zap.Logger) *Dependencies {
	portsLogger := security.NewZapLogger(logger)

	accountRepo := postgres.NewAccountRepository(writeDB)
	chargeRepo := postgres.NewChargeRepository(writeDB)
	creditRepo := postgres.NewCreditRepository(writeDB)
	productRepo := postgres.NewProductRepository(writeDB)
	paymentRepo := postgres.NewPaymentRepository(writeDB)
	checkRepo := postgres.NewCheckRepository(writeDB)

	audit := auditService.NewService(checkRepo, portsLogger, auditService.Config{})

	ledger := ledgerService.NewService(
		writeDB,
		accountRepo,
		chargeRepo,
		creditRepo,
		productRepo,
		audit,
		portsLogger,
		ledgerService.Config{
			Products:              cfg.Products,
			DefaultCurrency:       cfg.Billing.DefaultCurrency,
			DefaultPlanName:       cfg.Billing.DefaultPlanName,
			FreeUsesPerAccount:    cfg.Billing.FreeUsesPerAccount,
			PaidUsesPerPurchase:   cfg.Billing.PaidUsesPerPurchase,
			PricePerPurchaseMinor: cfg.Billing.PricePerPurchaseMinor,
		},
	)
	if readDB != writeDB {
		ledger = ledger.WithReadPool(readDB.GetDB())
	}

	accounts := accountService.NewService(accountRepo, portsLogger, accountService.Defaults{
		Currency:           cfg.Billing.DefaultCurrency,
		PlanName:           cfg.Billing.DefaultPlanName,
		FreeUsesPerAccount: cfg.Billing.FreeUsesPerAccount,
	})

	gateways := ports.NewGatewayRegistry()
	gateways.Register(stripe.NewGateway(&stripe.Config{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, logger))

	purchases := purchaseService.NewService(accounts, paymentRepo, gateways, portsLogger, purchaseService.Config{
		Provider:              cfg.Stripe.Provider,
		PublishableKey:        cfg.Stripe.PublishableKey,
		Currency:              cfg.Billing.DefaultCurrency,
		PricePerPurchaseMinor: cfg.Billing.PricePerPurchaseMinor,
		PaidUsesPerPurchase:   cfg.Billing.PaidUsesPerPurchase,
	})

	webhooks := webhookService.NewService(gateways, ledger, paymentRepo, creditRepo, accountRepo, portsLogger, webhookService.Config{
		DefaultCurrency:       cfg.Billing.DefaultCurrency,
		PaidUsesPerPurchase:   cfg.Billing.PaidUsesPerPurchase,
		PricePerPurchaseMinor: cfg.Billing.PricePerPurchaseMinor,
	})

	handler := billinghandler.NewHandler(ledger, accounts, purchases, webhooks, cfg.Stripe.Provider, logger)

	return &Dependencies{
		handler: handler,
		audit:   audit,
	}
}

// connectDatabase establishes a pool, retrying with exponential backoff so
// the service survives the database coming up after it
func connectDatabase(ctx context.Context, url string, dbCfg *config.DatabaseConfig, logger *zap.Logger) *database.PostgreSQLAdapter {
	pgCfg := database.DefaultPostgreSQLConfig(url)
	pgCfg.MaxConns = dbCfg.MaxConns
	pgCfg.MinConns = dbCfg.MinConns

	backoff := resilience.StartupBackoff()
	var lastErr error
	for attempt := 0; attempt < startupConnectAttempts; attempt++ {
		adapter, err := database.NewPostgreSQLAdapter(ctx, pgCfg, logger)
		if err == nil {
			return adapter
		}
		lastErr = err
		delay := backoff.NextDelay(attempt)
		logger.Warn("Database connect failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Fatal("Startup cancelled while connecting to database", zap.Error(ctx.Err()))
		}
	}
	logger.Fatal("Failed to connect to database", zap.Error(lastErr))
	return nil
}

// initLogger builds the zap logger from config
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	return logger
}
