package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"runstake/internal/auth"
	"runstake/internal/config"
	"runstake/internal/contest"
	"runstake/internal/handlers"
	"runstake/internal/ledger"
	"runstake/internal/service"
	"runstake/internal/storage"
	"runstake/internal/strava"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize SQLite database
	log.Printf("Initializing database at: %s", cfg.DatabasePath)
	if err := storage.InitDB(cfg.DatabasePath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer storage.CloseDB()

	registry := contest.NewRegistry()
	stravaClient := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret)

	var relay service.Ledger
	if cfg.LedgerURL != "" {
		relay = ledger.NewClient(cfg.LedgerURL)
	} else {
		log.Println("LEDGER_URL not set, settlements will be recorded locally only")
	}

	settlement := service.NewSettlementService(stravaClient, relay)

	api := handlers.NewAPI(registry, stravaClient, cfg.JWTSecret, cfg.StravaRedirectURI)

	// Telegram channel broadcasts are optional
	if cfg.TelegramBotToken != "" {
		notifications, err := service.NewNotificationService(cfg.TelegramBotToken, cfg.ChannelID)
		if err != nil {
			log.Printf("Failed to create notification service: %v", err)
		} else {
			settlement.SetNotificationService(notifications)
			api.Notifications = notifications
		}
	}

	// Start settlement worker for ended contests
	worker, err := service.NewSettlementWorker(cfg.SettlementCron, settlement)
	if err != nil {
		log.Fatalf("Failed to create settlement worker: %v", err)
	}
	worker.Start()
	defer worker.Stop()

	// Set up HTTP server with auth middleware
	mux := http.NewServeMux()

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/ping", api.HandlePing)
	apiMux.HandleFunc("/auth/url", api.HandleAuthURL)
	apiMux.HandleFunc("/auth/callback", api.HandleAuthCallback)
	apiMux.HandleFunc("/auth/athlete", api.HandleAthlete)
	apiMux.HandleFunc("/contests", api.HandleContests)
	apiMux.HandleFunc("/contests/join", api.HandleJoin)
	apiMux.HandleFunc("/contests/verify-run", api.HandleVerifyRun)
	apiMux.HandleFunc("/contests/completion", api.HandleCheckCompletion)

	mux.Handle("/api/", auth.Middleware(cfg.JWTSecret, http.StripPrefix("/api", apiMux)))

	// Static file serving (web directory)
	mux.Handle("/", http.FileServer(http.Dir("./web")))

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Server starting on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
}
