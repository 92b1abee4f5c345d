package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/viaduct-io/viaduct/gateway/internal/alerting"
	"github.com/viaduct-io/viaduct/gateway/internal/api"
	"github.com/viaduct-io/viaduct/gateway/internal/auth"
	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/metrics"
	"github.com/viaduct-io/viaduct/gateway/internal/pendingaction"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
	"github.com/viaduct-io/viaduct/gateway/internal/router"
	"github.com/viaduct-io/viaduct/gateway/internal/tunnel"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr          string
	dbDriver          string
	dbDSN             string
	secretKey         string
	logLevel          string
	dataDir           string
	syncAPIKey        string
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	livenessInterval  time.Duration
	actionSweep       time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "viaduct-gateway",
		Short: "Viaduct Gateway — cloud-side tunnel endpoint and synchronous API",
		Long: `Viaduct Gateway accepts a single long-lived tunnel connection per
on-premises Agent, multiplexes server-initiated requests over it, and
exposes a synchronous HTTP API the chatbot platform drives queries,
API calls, and employee lookups through.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("VIADUCT_HTTP_ADDR", ":8080"), "HTTP listen address (tunnel, admin console, synchronous API, metrics)")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("VIADUCT_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("VIADUCT_DB_DSN", "./viaduct.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("VIADUCT_SECRET_KEY", ""), "Master secret key for encrypting credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("VIADUCT_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("VIADUCT_DATA_DIR", "./data"), "Directory for Gateway data (RSA keys, etc.)")
	root.PersistentFlags().StringVar(&cfg.syncAPIKey, "sync-api-key", envOrDefault("VIADUCT_SYNC_API_KEY", ""), "Shared key the chatbot platform presents on the synchronous API (required)")
	root.PersistentFlags().DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", envDurationOrDefault("VIADUCT_HEARTBEAT_INTERVAL", 15*time.Second), "Expected Agent heartbeat cadence")
	root.PersistentFlags().DurationVar(&cfg.staleAfter, "stale-after", envDurationOrDefault("VIADUCT_STALE_AFTER", 45*time.Second), "A session with no heartbeat for this long is considered stale")
	root.PersistentFlags().DurationVar(&cfg.livenessInterval, "liveness-sweep-interval", envDurationOrDefault("VIADUCT_LIVENESS_SWEEP_INTERVAL", 15*time.Second), "How often the Liveness Monitor sweeps for stale sessions")
	root.PersistentFlags().DurationVar(&cfg.actionSweep, "action-sweep-interval", envDurationOrDefault("VIADUCT_ACTION_SWEEP_INTERVAL", 30*time.Second), "How often the pending-action Expirer sweeps for TTL'd actions")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("viaduct-gateway %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or VIADUCT_SECRET_KEY")
	}
	if cfg.syncAPIKey == "" {
		return fmt.Errorf("synchronous API key is required — set --sync-api-key or VIADUCT_SYNC_API_KEY")
	}

	logger.Info("starting viaduct gateway",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	databaseRepo := repository.NewDatabaseRepository(gormDB)
	adminUserRepo := repository.NewAdminUserRepository(gormDB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(gormDB)
	settingRepo := repository.NewSettingRepository(gormDB)
	alertLogRepo := repository.NewAlertLogRepository(gormDB)

	// --- 4. Auth ---
	jwtManager, err := buildJWTManager(cfg.dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}
	authenticator, err := buildAuthenticator(cfg.dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway token authenticator: %w", err)
	}
	localAuth := auth.NewLocalAuthProvider(adminUserRepo, refreshTokenRepo, jwtManager)

	// --- 5. Metrics ---
	collectors := metrics.NewCollectors()

	// --- 6. Alerting ---
	alertSvc := alerting.NewService(alerting.Config{
		LogRepo:  alertLogRepo,
		Settings: settingRepo,
		Logger:   logger,
	})

	// --- 7. Tunnel: registry, liveness monitor, endpoint ---
	registry := tunnel.NewRegistry(collectors, logger)

	liveness, err := tunnel.NewLivenessMonitor(registry, alertSvc, cfg.staleAfter, cfg.livenessInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to create liveness monitor: %w", err)
	}
	if err := liveness.Start(); err != nil {
		return fmt.Errorf("failed to start liveness monitor: %w", err)
	}
	defer func() {
		if err := liveness.Stop(); err != nil {
			logger.Warn("liveness monitor shutdown error", zap.Error(err))
		}
	}()

	queryTimeout := 30 * time.Second
	tunnelEndpoint := tunnel.NewEndpoint(registry, authenticator, collectors, alertSvc, cfg.heartbeatInterval, queryTimeout, logger)

	// --- 8. Query Router ---
	directExec := router.NewDirectExecutor(logger)
	defer directExec.Close()

	queryRouter := router.New(databaseRepo, registry, directExec, cfg.staleAfter, collectors, alertSvc, logger)

	// --- 9. Pending actions ---
	actionStore := pendingaction.NewStore()
	actionExpirer, err := pendingaction.NewExpirer(actionStore, cfg.actionSweep, logger)
	if err != nil {
		return fmt.Errorf("failed to create pending action expirer: %w", err)
	}
	if err := actionExpirer.Start(); err != nil {
		return fmt.Errorf("failed to start pending action expirer: %w", err)
	}
	defer func() {
		if err := actionExpirer.Stop(); err != nil {
			logger.Warn("pending action expirer shutdown error", zap.Error(err))
		}
	}()

	// --- 10. HTTP handlers and router ---
	adminHandler := api.NewAdminHandler(localAuth, authenticator, databaseRepo)
	syncAPIHandler := api.NewSyncAPIHandler(queryRouter, registry, databaseRepo, cfg.staleAfter, logger)
	pendingActionHandler := api.NewPendingActionHandler(actionStore)

	httpRouter := api.NewRouter(api.RouterConfig{
		JWTManager:     jwtManager,
		AdminHandler:   adminHandler,
		SyncAPI:        syncAPIHandler,
		PendingActions: pendingActionHandler,
		SyncAPIKey:     cfg.syncAPIKey,
		TunnelEndpoint: tunnelEndpoint,
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down viaduct gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("viaduct gateway stopped")
	return nil
}

// buildJWTManager loads RSA keys from the data directory if available, or
// generates ephemeral in-memory keys for development. These keys sign the
// admin console's short-lived access tokens.
func buildJWTManager(dataDir string, logger *zap.Logger) (*auth.JWTManager, error) {
	privPath := filepath.Join(dataDir, "jwt_private.pem")
	pubPath := filepath.Join(dataDir, "jwt_public.pem")

	if _, err := os.Stat(privPath); err == nil {
		logger.Info("loading JWT keys from disk", zap.String("private", privPath))
		return auth.NewJWTManagerFromFiles(privPath, pubPath, "viaduct-gateway")
	}

	logger.Warn("JWT key files not found — using ephemeral in-memory keys (admin sessions will be invalidated on restart)",
		zap.String("expected_private", privPath),
	)
	return auth.NewJWTManagerGenerated("viaduct-gateway")
}

// gatewayTokenKeyBits matches the admin console's JWT key size (auth.rsaKeyBits).
const gatewayTokenKeyBits = 2048

// buildAuthenticator loads (or generates) the RSA key pair that signs and
// validates Agent gateway_tokens. Kept in its own PEM pair, distinct from
// the admin console's JWT keys, so rotating one never invalidates the other.
func buildAuthenticator(dataDir string, logger *zap.Logger) (*auth.Authenticator, error) {
	privPath := filepath.Join(dataDir, "gateway_token_private.pem")
	pubPath := filepath.Join(dataDir, "gateway_token_public.pem")

	if _, err := os.Stat(privPath); err == nil {
		logger.Info("loading gateway token keys from disk", zap.String("private", privPath))
		return loadAuthenticatorFromFiles(privPath, pubPath)
	}

	logger.Warn("gateway token key files not found — using ephemeral in-memory keys (existing Agent tokens will be invalidated on restart)",
		zap.String("expected_private", privPath),
	)
	privateKey, err := rsa.GenerateKey(rand.Reader, gatewayTokenKeyBits)
	if err != nil {
		return nil, fmt.Errorf("gateway: generating gateway token RSA key pair: %w", err)
	}
	return auth.NewAuthenticator(privateKey, &privateKey.PublicKey, "viaduct-gateway"), nil
}

func loadAuthenticatorFromFiles(privPath, pubPath string) (*auth.Authenticator, error) {
	privBytes, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading gateway token private key: %w", err)
	}
	pubBytes, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading gateway token public key: %w", err)
	}

	privBlock, _ := pem.Decode(privBytes)
	if privBlock == nil {
		return nil, fmt.Errorf("gateway: failed to decode gateway token private key PEM")
	}
	privateKey, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
	if err != nil {
		rsaKey, legacyErr := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
		if legacyErr != nil {
			return nil, fmt.Errorf("gateway: parsing gateway token private key: %w", err)
		}
		return buildAuthenticatorFromKeys(rsaKey, pubBytes)
	}
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("gateway: gateway token private key is not an RSA key")
	}
	return buildAuthenticatorFromKeys(rsaKey, pubBytes)
}

func buildAuthenticatorFromKeys(privateKey *rsa.PrivateKey, pubBytes []byte) (*auth.Authenticator, error) {
	pubBlock, _ := pem.Decode(pubBytes)
	if pubBlock == nil {
		return nil, fmt.Errorf("gateway: failed to decode gateway token public key PEM")
	}
	pubInterface, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("gateway: parsing gateway token public key: %w", err)
	}
	publicKey, ok := pubInterface.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("gateway: gateway token public key is not an RSA key")
	}
	return auth.NewAuthenticator(privateKey, publicKey, "viaduct-gateway"), nil
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
