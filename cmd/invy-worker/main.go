package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/config"
	"github.com/vipul43/invy-worker/internal/currency"
	"github.com/vipul43/invy-worker/internal/database"
	"github.com/vipul43/invy-worker/internal/drive"
	"github.com/vipul43/invy-worker/internal/extraction"
	"github.com/vipul43/invy-worker/internal/gmail"
	"github.com/vipul43/invy-worker/internal/history"
	"github.com/vipul43/invy-worker/internal/notify"
	"github.com/vipul43/invy-worker/internal/repository"
	"github.com/vipul43/invy-worker/internal/service"
	"github.com/vipul43/invy-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.SetupLogger()

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	log.Info("Database connected successfully")

	// Run migrations
	log.Info("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Info("Migrations completed successfully")

	// Initialize repositories
	ownerRepo := repository.NewOwnerRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	historyStore, err := history.New(cfg, db)
	if err != nil {
		return err
	}
	log.Infof("Using %s history store", cfg.HistoryBackend)

	// Initialize external clients
	gmailClient := gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.GoogleTokenURL)
	extractionClient := extraction.NewClient(cfg.WebhookURL, time.Duration(cfg.WebhookTimeout)*time.Second)
	rateClient := currency.NewClient(currency.DefaultAPIURL)
	notifier := notify.NewNotifier(cfg.SendGridAPIKey, cfg.NotifyFromEmail, cfg.FrontendURL)

	var storage service.FileStorage
	if cfg.DriveUploadEnabled {
		storage = drive.NewClient()
	}

	// Initialize services
	tokenManager := service.NewTokenManager(gmailClient, accountRepo)
	scanner := service.NewMailScanner(gmailClient, historyStore, cfg.LookbackWindow(), cfg.ScanMaxResults)
	processor := service.NewAttachmentProcessor(gmailClient, storage, extractionClient, service.NewInvoiceUpserter(invoiceRepo))

	// Initialize watcher
	w := watcher.New(cfg, ownerRepo, accountRepo, tokenManager, scanner, processor, historyStore, notifier, rateClient)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Info("Shutdown signal received")
		cancel()

		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Watcher error: %v", err)
		}

		// Let in-flight sweeps finish their current writes
		if !w.Wait(time.Duration(cfg.ShutdownTimeout) * time.Second) {
			log.Warn("Shutdown timeout exceeded, abandoning running sweeps")
		}

		if closer, ok := historyStore.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Warnf("Failed to close history store: %v", err)
			}
		}

		log.Info("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
