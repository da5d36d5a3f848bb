// Package notify tells owners when a connected mailbox needs to be reconnected.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/models"
)

// DefaultCooldown is how long an account stays quiet after one notice
const DefaultCooldown = 24 * time.Hour

type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// Notifier emails owners about mailboxes whose credentials can no longer be refreshed
type Notifier struct {
	sender      sender
	fromEmail   string
	frontendURL string
	cooldown    time.Duration
	sent        *dedupCache
}

// NewNotifier returns a notifier that only logs when apiKey is empty
func NewNotifier(apiKey, fromEmail, frontendURL string) *Notifier {
	n := &Notifier{
		fromEmail:   fromEmail,
		frontendURL: frontendURL,
		cooldown:    DefaultCooldown,
		sent:        newDedupCache(),
	}
	if apiKey != "" {
		n.sender = sendgrid.NewSendClient(apiKey)
	}
	return n
}

// NotifyCredentialFailure sends at most one reconnect notice per account per cooldown
func (n *Notifier) NotifyCredentialFailure(ctx context.Context, owner models.Owner, account models.Account) error {
	logger := log.WithFields(log.Fields{
		"owner":   owner.ID,
		"account": account.ID,
		"mailbox": account.MailboxAddress,
	})

	if !n.sent.claim(account.ID, n.cooldown) {
		logger.Debug("Reconnect notice already sent recently, skipping")
		return nil
	}

	if n.sender == nil || owner.Email == "" {
		logger.Warn("Mailbox needs to be reconnected (no notification channel)")
		return nil
	}

	if err := ctx.Err(); err != nil {
		n.sent.release(account.ID)
		return err
	}

	from := mail.NewEmail("Invy", n.fromEmail)
	to := mail.NewEmail(owner.Name, owner.Email)
	subject := "Action needed: reconnect " + account.MailboxAddress

	plain := fmt.Sprintf(`Hi %s,

We could not refresh access to your mailbox %s, so new invoices are not being collected from it.

Reconnect it here: %s/accounts

Time: %s`, displayName(owner), account.MailboxAddress, n.frontendURL, time.Now().UTC().Format(time.RFC3339))

	message := mail.NewSingleEmail(from, subject, to, plain, plainToHTML(plain))

	response, err := n.sender.Send(message)
	if err != nil {
		n.sent.release(account.ID)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		n.sent.release(account.ID)
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	logger.Info("Reconnect notice sent")
	return nil
}

func displayName(owner models.Owner) string {
	if owner.Name != "" {
		return owner.Name
	}
	return owner.Email
}

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\n\n", "</p><p>",
	"\n", "<br>",
)

func plainToHTML(s string) string {
	return "<p>" + htmlReplacer.Replace(s) + "</p>"
}
