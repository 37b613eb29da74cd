package main // Entry point package

import (
	"context"
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/entradaslive/ticketing-core/internal/cart"
	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/config"
	"github.com/entradaslive/ticketing-core/internal/database"
	"github.com/entradaslive/ticketing-core/internal/discount"
	"github.com/entradaslive/ticketing-core/internal/handler"
	"github.com/entradaslive/ticketing-core/internal/holdstore"
	"github.com/entradaslive/ticketing-core/internal/queue"
	"github.com/entradaslive/ticketing-core/internal/repository"
	"github.com/entradaslive/ticketing-core/internal/router"
	queuepublisher "github.com/entradaslive/ticketing-core/internal/service"
	"github.com/entradaslive/ticketing-core/internal/timer"
)

func main() {
	// Load .env when present so local development does not need the
	// variables exported; real deployments set them in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	cfg := config.Load() // Load environment config
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	clk := clock.Real{}

	// Redis backs the hold store and the claim rate limiter.  When it
	// is unreachable the in-memory store takes over, which is correct
	// for a single instance and good enough to keep selling.
	rdb := config.NewRedisClient()
	var holds holdstore.Store
	if rdb != nil {
		holds = holdstore.NewRedisStore(rdb, clk)
		log.Println("hold store: redis")
	} else {
		holds = holdstore.NewMemoryStore(clk)
		log.Println("hold store: in-memory (redis unavailable)")
	}

	sessions := repository.NewSessionRepo(db)
	seats := repository.NewSeatRepo(db)
	discounts := repository.NewDiscountRepo(db)

	engine := discount.NewEngine(discounts, clk)
	pub := queuepublisher.New()
	carts := cart.NewController(holds, seats, sessions, engine, pub, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sweep expired carts so abandoned holds return to the pool even
	// when no request touches them.
	go timer.NewSweeper(carts, clk, cfg.SweepInterval).Run(ctx)

	// Consume sale events into the sales log.
	go func() {
		if err := queue.StartSalesConsumer(); err != nil {
			log.Printf("sales consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterStore(e, handler.NewBrowseHandler(sessions, seats, holds, clk), handler.NewCartHandler(carts), cfg, rlCfg, rdb)
	router.RegisterBackoffice(e, handler.NewBackofficeHandler(sessions, seats, discounts, clk))

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
