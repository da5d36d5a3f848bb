// Command connect-account finishes the OAuth connect flow for one owner's mailbox.
//
// Run it without -code to print the consent URL, then again with the code Google
// redirected back with.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/config"
	"github.com/vipul43/invy-worker/internal/database"
	"github.com/vipul43/invy-worker/internal/drive"
	"github.com/vipul43/invy-worker/internal/gmail"
	"github.com/vipul43/invy-worker/internal/repository"
	"github.com/vipul43/invy-worker/internal/service"
)

func main() {
	ownerID := flag.String("owner", "", "owner id the mailbox belongs to")
	code := flag.String("code", "", "authorization code from the OAuth redirect")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if err := run(*ownerID, *code, *timeout); err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
}

func run(ownerID, code string, timeout time.Duration) error {
	if ownerID == "" {
		return fmt.Errorf("-owner is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.SetupLogger()

	gmailClient := gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.GoogleTokenURL)

	if code == "" {
		fmt.Println("Open this URL, grant access, then rerun with -code:")
		fmt.Println(gmailClient.AuthCodeURL(ownerID))
		return nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		return err
	}

	var storage service.FileStorage
	if cfg.DriveUploadEnabled {
		storage = drive.NewClient()
	}

	connector := service.NewAccountConnector(
		repository.NewOwnerRepository(db),
		repository.NewAccountRepository(db),
		gmailClient,
		gmailClient,
		storage,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	account, err := connector.Connect(ctx, ownerID, code)
	if err != nil {
		return err
	}

	fmt.Printf("Connected %s for owner %s\n", account.MailboxAddress, account.OwnerID)
	return nil
}
