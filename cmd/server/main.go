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

	"github.com/lelangid/lelang-api/internal/auction"
	"github.com/lelangid/lelang-api/internal/auth"
	"github.com/lelangid/lelang-api/internal/bidding"
	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/winner"
	"github.com/lelangid/lelang-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the auction API server with graceful shutdown
// support. It wires the services, rebuilds the close schedule from storage,
// and registers all API routes.
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// One keyed lock shared by every component that mutates auction state
	locks := database.NewKeyedLock()

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(middleware.JWTSecret())
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterCredentials(auth.TestBidderKey, auth.TestBidderSecret, auth.RolePembeli)
	authService.RegisterCredentials(auth.TestAdminKey, auth.TestAdminSecret, auth.RoleAdmin)

	auctionService := auction.NewService(db, locks)
	scheduler := auction.NewCloseScheduler(auctionService, auctionService.GetDB())
	auctionService.AttachScheduler(scheduler)
	auctionHandlers := auction.NewGinHandlers(auctionService, scheduler)

	biddingService := bidding.NewService(db, locks)
	biddingHandlers := bidding.NewGinHandlers(biddingService)

	winnerService := winner.NewService(db, locks, scheduler)
	winnerHandlers := winner.NewGinHandlers(winnerService)

	// Timers do not survive a restart; rebuild them from open auctions
	if err := scheduler.Rehydrate(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to rehydrate close scheduler")
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, auctionHandlers, biddingHandlers, winnerHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Disarm pending close timers; cancellation persists nothing
	scheduler.Stop()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Catalog routes: Public read access to auctions and their bids
// - Bidder routes: Protected by JWT authentication
// - Internal routes: Administrative surface, protected by JWT plus admin role
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	biddingHandlers *bidding.GinHandlers,
	winnerHandlers *winner.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Public catalog routes
		auctions := v1.Group("/auctions")
		{
			auctions.GET("", auctionHandlers.ListAuctionsHandler())
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.GET("/:auction_id/bids", biddingHandlers.ListBidsHandler())
		}

		// Bidder routes
		bidder := v1.Group("")
		bidder.Use(middleware.JWTAuth())
		{
			bidder.POST("/auctions/:auction_id/bids", biddingHandlers.SubmitBidHandler())
			bidder.GET("/auctions/:auction_id/bids/mine", biddingHandlers.MyLastBidHandler())
			bidder.GET("/bids/history", biddingHandlers.HistoryHandler())
		}

		// Internal routes (administrative surface)
		internal := v1.Group("/internal")
		internal.Use(middleware.JWTAuth(), middleware.RequireRole(auth.RoleAdmin))
		{
			internal.POST("/auctions", auctionHandlers.CreateAuctionHandler())
			internal.PUT("/auctions/:auction_id", auctionHandlers.UpdateAuctionHandler())
			internal.POST("/auctions/:auction_id/close", auctionHandlers.CloseAuctionHandler())
			internal.POST("/close-expired", auctionHandlers.SweepExpiredHandler())
			internal.POST("/bids/:bid_id/winner", winnerHandlers.DeclareWinnerHandler())
			internal.GET("/scheduler", auctionHandlers.SchedulerInfoHandler())
		}
	}
}
