package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/autoclass/attendd/internal/attend"
	"github.com/autoclass/attendd/internal/config"
	"github.com/autoclass/attendd/internal/console"
	"github.com/autoclass/attendd/internal/db"
	"github.com/autoclass/attendd/internal/history"
	httphandler "github.com/autoclass/attendd/internal/http"
	"github.com/autoclass/attendd/internal/http/handlers"
	"github.com/autoclass/attendd/internal/poll"
	"github.com/autoclass/attendd/internal/portal"
	"github.com/autoclass/attendd/internal/registry"
	"github.com/autoclass/attendd/internal/sso"
	"github.com/autoclass/attendd/internal/store"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sign-in history is optional: only recorded when a database is configured.
	recorder := history.NewNopRecorder()
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		if err := runMigrations(database); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		recorder = history.NewSQLRecorder(database)
		log.Printf("Sign-in history enabled (%s)", db.RedactDSN(cfg.DatabaseURL))
	}

	ssoClient := sso.NewClient(cfg.SSOBaseURL, cfg.SSOServiceURL, cfg.HTTPTimeout)
	portalClient := portal.NewClient(cfg.PortalBaseURL, cfg.SignBaseURL, cfg.HTTPTimeout)
	svc := attend.NewService(ssoClient, portalClient, recorder, cfg.SessionTTL, cfg.DateOverride)

	reg := registry.New()
	accountStore := store.NewAccountStore(cfg.AccountsFile)
	loaded, err := accountStore.Load(reg)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	log.Printf("Loaded %d account(s) from %s", loaded, cfg.AccountsFile)
	if loaded == 0 {
		log.Printf("No accounts registered yet; type 'add' to register one")
	}

	poller := poll.New(svc, reg, cfg.PollInterval)
	if err := poller.Start(ctx); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}
	log.Printf("Checking for open courses every %s", cfg.PollInterval)

	adminHandler := handlers.NewAdminHandler(reg, accountStore, svc, poller)
	router := httphandler.NewRouter(adminHandler)

	srv := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Admin API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Admin API failed to start: %v", err)
		}
	}()

	// The console shares the registry and poller with the timer loop; an
	// "exit" command or closed stdin shuts the process down.
	con := console.New(reg, accountStore, svc, poller, os.Stdout)
	go func() {
		con.Run(ctx, os.Stdin)
		cancel()
	}()
	log.Printf("Type 'help' for available commands, or Ctrl+C to quit")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	poller.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Admin API forced to shutdown: %v", err)
	}

	log.Println("Bye")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}
	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
