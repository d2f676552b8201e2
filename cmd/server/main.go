package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gin-gonic/gin"

	"github.com/lensseoyhshi/crypto-trading/internal/accounts"
	"github.com/lensseoyhshi/crypto-trading/internal/auth"
	"github.com/lensseoyhshi/crypto-trading/internal/config"
	"github.com/lensseoyhshi/crypto-trading/internal/database"
	"github.com/lensseoyhshi/crypto-trading/internal/trading"
	"github.com/lensseoyhshi/crypto-trading/internal/webhook"
	"github.com/lensseoyhshi/crypto-trading/pkg/crypto"
	"github.com/lensseoyhshi/crypto-trading/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading gateway with graceful shutdown
// support. It wires the credential store, the venue adapters and the
// signal-intake endpoints.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RateLimit())

	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if cfg.APIKey != "" && cfg.APISecret != "" {
		authService.RegisterAPICredentials(cfg.APIKey, cfg.APISecret)
	} else {
		zlog.Warn().Msg("API_KEY/API_SECRET not set; management API tokens cannot be issued")
	}

	accountsService := accounts.NewService(db, encryptor, cfg.ExchangeTimeout)
	accountsHandlers := accounts.NewGinHandlers(accountsService)

	tradingService := trading.NewService(db, accountsService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	// Background reconciler keeps non-terminal orders converging with venue
	// state even when nobody polls the refresh endpoint.
	reconciler := trading.NewReconciler(tradingService, time.Minute)
	reconcilerCtx, reconcilerCancel := context.WithCancel(context.Background())
	defer reconcilerCancel()
	go reconciler.Start(reconcilerCtx)

	verifier := webhook.NewVerifier(cfg.WebhookSecret, cfg.VerifyWebhooks)
	if !cfg.VerifyWebhooks {
		zlog.Warn().Msg("webhook signature verification is DISABLED")
	}
	webhookHandlers := webhook.NewGinHandlers(verifier, tradingService)

	setupRoutes(router, cfg.JWTSecret, authHandlers, accountsHandlers, tradingHandlers, webhookHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zlog.Info().Str("port", cfg.Port).Msg("trading gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding venue round-trips 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
//   - Auth routes: public, exchange operator credentials for a JWT
//   - Account and trading routes: protected by JWT authentication
//   - Webhook routes: protected by HMAC signature over the raw body
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	accountsHandlers *accounts.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	webhookHandlers *webhook.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		accountsGroup := v1.Group("/accounts")
		accountsGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			accountsGroup.POST("", accountsHandlers.CreateAccountHandler())
			accountsGroup.GET("", accountsHandlers.ListAccountsHandler())
			accountsGroup.GET("/:account_id", accountsHandlers.GetAccountHandler())
			accountsGroup.PUT("/:account_id", accountsHandlers.UpdateAccountHandler())
			accountsGroup.DELETE("/:account_id", accountsHandlers.DeleteAccountHandler())
			accountsGroup.GET("/:account_id/info", accountsHandlers.AccountInfoHandler())
			accountsGroup.POST("/:account_id/test", accountsHandlers.TestConnectionHandler())
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", tradingHandlers.CreateOrderHandler())
			orders.GET("", tradingHandlers.ListOrdersHandler())
			orders.GET("/:order_id", tradingHandlers.GetOrderHandler())
			orders.POST("/:order_id/refresh", tradingHandlers.RefreshOrderHandler())
			orders.DELETE("/:order_id", tradingHandlers.CancelOrderHandler())
		}

		positions := v1.Group("/positions")
		positions.Use(middleware.JWTAuth(jwtSecret))
		{
			positions.GET("", tradingHandlers.ListPositionsHandler())
			positions.POST("/close", tradingHandlers.ClosePositionHandler())
			positions.POST("/sync", tradingHandlers.SyncPositionsHandler())
		}

		market := v1.Group("/market")
		market.Use(middleware.JWTAuth(jwtSecret))
		{
			market.GET("/ticker", tradingHandlers.TickerHandler())
			market.GET("/klines", tradingHandlers.KlinesHandler())
		}
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.GET("/test", webhookHandlers.TestHandler())
		webhooks.POST("/trade", webhookHandlers.TradeHandler())
		webhooks.POST("/open-position", webhookHandlers.OpenPositionHandler())
		webhooks.POST("/close-position", webhookHandlers.ClosePositionHandler())
	}
}
