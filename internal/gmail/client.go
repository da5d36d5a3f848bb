package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/vipul43/invy-worker/internal/breaker"
	"github.com/vipul43/invy-worker/internal/service"
)

const (
	defaultSubject = "(No subject)"
	defaultSender  = "(No sender)"
)

type Client struct {
	oauthConfig *oauth2.Config
	cb          *breaker.Group
	opts        []option.ClientOption
}

func NewClient(clientID, clientSecret, redirectURL, tokenURL string) *Client {
	return &Client{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{
				gmail.GmailReadonlyScope,
				drive.DriveFileScope,
			},
		},
		cb: breaker.NewGroup("gmail-api"),
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	// Create OAuth2 token
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	opts := append([]option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}, c.opts...)
	gmailService, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return gmailService, nil
}

// ListMessageIDs fetches only message IDs matching the query (lightweight, fast)
func (c *Client) ListMessageIDs(ctx context.Context, accessToken string, query string, maxResults int) ([]string, error) {
	gmailService, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var listResp *gmail.ListMessagesResponse
	err = c.cb.Execute(ctx, "ListMessages", func() error {
		var apiErr error
		listResp, apiErr = gmailService.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	log.Debugf("Gmail API returned %d message IDs", len(listResp.Messages))

	messageIDs := make([]string, 0, len(listResp.Messages))
	for _, msg := range listResp.Messages {
		messageIDs = append(messageIDs, msg.Id)
	}
	return messageIDs, nil
}

// FetchMessage fetches a single message by its Gmail message ID
func (c *Client) FetchMessage(ctx context.Context, accessToken string, messageID string) (*service.MailMessage, error) {
	gmailService, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var fullMsg *gmail.Message
	err = c.cb.Execute(ctx, "GetMessage", func() error {
		var apiErr error
		fullMsg, apiErr = gmailService.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return parseMessage(fullMsg), nil
}

// GetAttachment downloads and decodes one attachment body
func (c *Client) GetAttachment(ctx context.Context, accessToken string, messageID string, attachmentID string) ([]byte, error) {
	gmailService, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var body *gmail.MessagePartBody
	err = c.cb.Execute(ctx, "GetAttachment", func() error {
		var apiErr error
		body, apiErr = gmailService.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return decodeBody(body.Data)
}

// GetProfile returns the mailbox address the token belongs to
func (c *Client) GetProfile(ctx context.Context, accessToken string) (string, error) {
	gmailService, err := c.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	var profile *gmail.Profile
	err = c.cb.Execute(ctx, "GetProfile", func() error {
		var apiErr error
		profile, apiErr = gmailService.Users.GetProfile("me").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// parseMessage keeps the envelope headers and every named attachment, however deeply nested
func parseMessage(msg *gmail.Message) *service.MailMessage {
	mailMsg := &service.MailMessage{
		ID:      msg.Id,
		Subject: defaultSubject,
		From:    defaultSender,
	}

	// Parse internal date (milliseconds since epoch)
	if msg.InternalDate > 0 {
		mailMsg.InternalDate = time.UnixMilli(msg.InternalDate)
	}

	if msg.Payload == nil {
		return mailMsg
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			if v := strings.TrimSpace(header.Value); v != "" {
				mailMsg.Subject = v
			}
		case "from":
			if v := strings.TrimSpace(header.Value); v != "" {
				mailMsg.From = v
			}
		case "date":
			parsedDate, err := parseEmailDate(header.Value)
			if err != nil {
				log.WithField("message_id", msg.Id).Warnf("Failed to parse date '%s': %v", header.Value, err)
			} else {
				mailMsg.Date = parsedDate
			}
		}
	}

	collectAttachments(msg.Payload, &mailMsg.Attachments)
	return mailMsg
}

// collectAttachments recursively extracts attachment info from parts
func collectAttachments(part *gmail.MessagePart, attachments *[]service.AttachmentRef) {
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		*attachments = append(*attachments, service.AttachmentRef{
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			Size:         part.Body.Size,
		})
	}

	for _, child := range part.Parts {
		if child != nil {
			collectAttachments(child, attachments)
		}
	}
}

// decodeBody decodes Gmail's URL-safe base64, padded or not
func decodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	decoded, rawErr := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if rawErr != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return decoded, nil
}

// parseEmailDate parses various email date formats
func parseEmailDate(dateStr string) (time.Time, error) {
	// Common email date formats
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC3339,
	}

	dateStr = strings.TrimSpace(dateStr)

	// Gmail sometimes appends the zone name, e.g. "(UTC)"
	if idx := strings.Index(dateStr, " ("); idx != -1 {
		dateStr = dateStr[:idx]
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
