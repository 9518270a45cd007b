package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"github.com/sirupsen/logrus"

	"bookero/internal/caching"
	"bookero/internal/config"
	"bookero/internal/handlers"
	"bookero/internal/jobs"
	"bookero/internal/jobs/background"
	"bookero/internal/middleware"
	"bookero/internal/repositories"
	"bookero/internal/services"
	"bookero/pkg/database"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logrus.Fatal("DATABASE_URL environment variable is required")
	}
	pool, err := database.NewPool(databaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		logrus.Warn("using generated JWT secret, sessions will not survive restarts")
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// Invoicing provider configuration
	providerConfigPath := os.Getenv("PROVIDER_CONFIG")
	if providerConfigPath == "" {
		providerConfigPath = "provider.toml"
	}
	providerCfg, err := config.LoadProviderConfig(providerConfigPath)
	if err != nil {
		logrus.Fatalf("Failed to load provider config: %v", err)
	}

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Create repositories
	credRepo := repositories.NewCredentialRepo(pool)
	otpRepo := repositories.NewOTPRepo(pool)
	invoiceRepo := repositories.NewInvoiceRepo(pool)

	// Create services
	providerClient := services.NewProviderClient(&providerCfg.Provider, providerCfg.Timeout())
	tokenSvc := services.NewTokenService(credRepo, providerClient, cacheSvc, providerCfg.Provider.Name, providerCfg.RefreshAhead())
	otpSvc := services.NewOTPService(otpRepo, cacheSvc)
	exportSvc := services.NewInvoiceExportService(invoiceRepo, tokenSvc, providerClient)

	// Background task queue
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword, DB: redisDB}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	asynqServer := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 5})
	asynqMux := asynq.NewServeMux()
	worker := jobs.NewWorker(exportSvc, jobs.LogMailer{})
	worker.Register(asynqMux)
	go func() {
		if err := asynqServer.Run(asynqMux); err != nil {
			logrus.Fatalf("Failed to run task worker: %v", err)
		}
	}()

	// Periodic maintenance jobs
	scheduler, err := background.NewJobScheduler(tokenSvc, otpSvc, credRepo, providerCfg.Provider.Name, providerCfg.RefreshAhead())
	if err != nil {
		logrus.Fatalf("Failed to create job scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create handlers
	integrationHandlers := handlers.NewIntegrationHandlers(tokenSvc, providerClient, cacheSvc,
		providerCfg.Provider.Name, providerCfg.Provider.RedirectURI)
	otpHandlers := handlers.NewOTPHandlers(otpSvc, asynqClient)
	invoiceHandlers := handlers.NewInvoiceHandlers(invoiceRepo, asynqClient)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	// API routes
	v1 := e.Group("/v1")

	// OTP routes (no JWT; they bootstrap verification)
	v1.POST("/auth/otp/request", otpHandlers.RequestOTP)
	v1.POST("/auth/otp/verify", otpHandlers.VerifyOTP)

	// Provider callback is hit by the provider redirect, not by our users
	v1.GET("/integrations/:provider/callback", integrationHandlers.Callback)

	// Protected routes (require JWT with tenant claims)
	jwtConfig := echojwt.Config{
		SigningKey: []byte(jwtSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(middleware.JWTCustomClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(401, "Invalid token")
		},
	}
	protected := v1.Group("")
	protected.Use(echojwt.WithConfig(jwtConfig))
	protected.Use(middleware.ResolveTenantContext())

	protected.GET("/integrations/:provider/connect", integrationHandlers.Connect)
	protected.GET("/integrations/:provider/status", integrationHandlers.Status)
	protected.DELETE("/integrations/:provider", integrationHandlers.Disconnect)

	protected.POST("/invoices/:id/export", invoiceHandlers.ExportInvoice)
	protected.POST("/invoices/export-pending", invoiceHandlers.ExportPending)
	protected.GET("/invoices/pending-export", invoiceHandlers.ListPendingExports)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logrus.Fatalf("Invalid port %s: %v", portStr, err)
	}

	logrus.Infof("bookero integrations service v%s starting on port %d", version, port)
	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
