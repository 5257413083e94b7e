package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobportal/auth"
	"jobportal/config"
	"jobportal/database"
	"jobportal/experiments"
	"jobportal/handlers"
	"jobportal/logger"
	"jobportal/notify"
	"jobportal/storage"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file (JSON or YAML)")
	mintSubject := flag.String("mint-token", "", "Print an internal API token for the given subject (worker or admin) and exit")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.SaveConfig(config.Default(), *configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		return
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *mintSubject != "" {
		if err := mintToken(cfg, *mintSubject); err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		return
	}

	if err := logger.Init(logger.Options{Level: cfg.Server.LogLevel, JSON: cfg.Server.LogJSON}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg); err != nil {
		logger.Fatal("%v", err)
	}
}

func run(cfg *config.Config) error {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	layout := storage.NewOsLayout(cfg.Storage.UploadRoot)
	if err := layout.Fs().MkdirAll(layout.Root(), 0o755); err != nil {
		return fmt.Errorf("create upload root: %w", err)
	}

	dispatcher, err := notify.NewFromConfig(cfg.Notify)
	if err != nil {
		return fmt.Errorf("configure notifications: %w", err)
	}

	srv, expSvc := newServer(cfg, db, layout, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retentionDone := handlers.StartRetentionService(ctx, cfg.Retention, expSvc)

	httpServer := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server on %s", cfg.Server.Port)
	logger.Info("Database: %s", cfg.Database.Path)
	logger.Info("Uploads: %s", cfg.Storage.UploadRoot)
	logger.Info("Log level: %s", logger.GetLogLevel())

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not start server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown: %v", err)
	}
	stop()
	<-retentionDone
	dispatcher.Wait()
	return nil
}

// newServer builds the services and the HTTP layer on top of db and layout.
func newServer(cfg *config.Config, db *database.DB, layout *storage.Layout, notifier notify.Notifier) (*handlers.Server, *experiments.Service) {
	authSvc := auth.NewService(db, notifier, auth.Options{
		TokenTTL:  time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		PublicURL: cfg.Server.PublicURL,
	})
	expSvc := experiments.NewService(db, layout, notifier, experiments.Options{
		Limits: experiments.Limits{
			MaxFilesPerUser: cfg.Storage.MaxFilesPerUser,
			MaxFileSize:     cfg.Storage.MaxFileSize,
		},
	})
	return handlers.NewServer(cfg, db, authSvc, expSvc), expSvc
}

func mintToken(cfg *config.Config, subject string) error {
	ttl := time.Duration(cfg.Internal.TokenTTLHours) * time.Hour
	tok, err := auth.MintInternalToken(cfg.Internal.SharedSecret, subject, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
