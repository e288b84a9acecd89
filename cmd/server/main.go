package main // gate service entry point

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/tempora/schedgate/internal/config"
	"github.com/tempora/schedgate/internal/database"
	"github.com/tempora/schedgate/internal/handler"
	"github.com/tempora/schedgate/internal/queue"
	"github.com/tempora/schedgate/internal/repository"
	"github.com/tempora/schedgate/internal/router"
	"github.com/tempora/schedgate/internal/scheduler"
)

func main() {
	// Load .env for local development; in deployed environments the
	// variables come from the process environment and the file is absent.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: when unavailable the response cache and rate
	// limiter disable themselves.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; response cache and rate limiting disabled")
	}

	gateRepo := repository.NewGateRepo(db)
	clientRepo := repository.NewAPIClientRepo(db)

	gates := handler.NewGateHandler(gateRepo, cfg.GateTTL)
	auth := handler.NewAuthHandler(clientRepo, cfg.JWTSecret, cfg.TokenTTLMin, cfg.BcryptCost)

	sweep := scheduler.New("gate-expiry-sweep", cfg.SweepInterval, scheduler.NewExpirySweep(gateRepo))
	if err := sweep.Start(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	ops := handler.NewOpsHandler(map[string]*scheduler.Job{"gate-expiry-sweep": sweep})

	// Background consumer appends resolved-gate lines to logs/gates.log;
	// it reconnects on broker failure and never takes the server down.
	go func() {
		if err := queue.StartGateConsumer(); err != nil {
			log.Printf("gate consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, auth)
	router.RegisterGates(e, gates, cfg.JWTSecret, rdb)
	router.RegisterOps(e, ops, auth, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
