// Package extraction forwards invoice candidates to the external extraction
// webhook and interprets its yes/no verdict.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrTransport covers connection failures, timeouts and non-2xx answers
	ErrTransport = errors.New("extraction transport failure")
	// ErrMalformedResponse is a 2xx answer the verdict could not be read from
	ErrMalformedResponse = errors.New("malformed extraction response")
)

const (
	outputYes = "yes"
	outputNo  = "no"
)

type Client struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(webhookURL string, timeout time.Duration) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Request is one attachment plus its envelope
type Request struct {
	Sender              string
	Subject             string
	Date                time.Time
	MessageID           string
	AttachmentName      string
	AttachmentSize      int64
	AttachmentMimeType  string
	AttachmentData      []byte
	StorageLink         string
	OwnerMailboxAddress string
}

type payload struct {
	Sender              string  `json:"sender"`
	Subject             string  `json:"subject"`
	Date                string  `json:"date"`
	MessageID           string  `json:"message_id"`
	AttachmentName      string  `json:"attachment_name"`
	AttachmentSize      int64   `json:"attachment_size"`
	AttachmentMimeType  string  `json:"attachment_mime_type"`
	AttachmentData      string  `json:"attachment_data"`
	StorageLink         *string `json:"storage_link,omitempty"`
	OwnerMailboxAddress string  `json:"owner_mailbox_address"`
	Timestamp           string  `json:"timestamp"`
}

// Verdict is the service's answer. Result is set only when Accepted.
type Verdict struct {
	Accepted bool
	Result   *Result
}

// Result is the structured invoice the service extracted
type Result struct {
	InvoiceNumber string
	CompanyName   string
	Status        string
	TotalAmount   float64
	Currency      string
	Category      string
	Link          string
}

type response struct {
	Output             string `json:"output"`
	InvoiceNumber      string `json:"invoice_number"`
	CompanyName        string `json:"company_name"`
	Status             string `json:"status"`
	TotalInvoiceAmount amount `json:"total_invoice_amount"`
	Currency           string `json:"currency"`
	Category           string `json:"category"`
	Link               string `json:"link"`
}

// amount accepts a JSON number, a numeric string or null
type amount float64

func (a *amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(data), err)
	}
	*a = amount(v)
	return nil
}

// Extract sends one attachment to the webhook and waits for the verdict.
// Errors wrap ErrTransport or ErrMalformedResponse; a rejection is not an error.
func (c *Client) Extract(ctx context.Context, req Request) (*Verdict, error) {
	if c.webhookURL == "" {
		return nil, fmt.Errorf("%w: webhook URL not configured", ErrTransport)
	}

	body := payload{
		Sender:              req.Sender,
		Subject:             req.Subject,
		MessageID:           req.MessageID,
		AttachmentName:      req.AttachmentName,
		AttachmentSize:      req.AttachmentSize,
		AttachmentMimeType:  req.AttachmentMimeType,
		AttachmentData:      base64.StdEncoding.EncodeToString(req.AttachmentData),
		OwnerMailboxAddress: req.OwnerMailboxAddress,
		Timestamp:           c.now().UTC().Format(time.RFC3339),
	}
	if !req.Date.IsZero() {
		body.Date = req.Date.Format(time.RFC3339)
	}
	if req.StorageLink != "" {
		body.StorageLink = &req.StorageLink
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: webhook error (status %d): %s", ErrTransport, resp.StatusCode, truncate(string(respBody), 200))
	}

	return parseVerdict(respBody)
}

// parseVerdict reads a single object or a one-element array
func parseVerdict(body []byte) (*Verdict, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var r response
	if trimmed[0] == '[' {
		var items []response
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if len(items) != 1 {
			return nil, fmt.Errorf("%w: expected one verdict, got %d", ErrMalformedResponse, len(items))
		}
		r = items[0]
	} else if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch strings.ToLower(strings.TrimSpace(r.Output)) {
	case outputNo:
		return &Verdict{Accepted: false}, nil
	case outputYes:
		if strings.TrimSpace(r.InvoiceNumber) == "" {
			return nil, fmt.Errorf("%w: accepted without invoice_number", ErrMalformedResponse)
		}
		return &Verdict{
			Accepted: true,
			Result: &Result{
				InvoiceNumber: strings.TrimSpace(r.InvoiceNumber),
				CompanyName:   strings.TrimSpace(r.CompanyName),
				Status:        strings.ToLower(strings.TrimSpace(r.Status)),
				TotalAmount:   float64(r.TotalInvoiceAmount),
				Currency:      strings.ToUpper(strings.TrimSpace(r.Currency)),
				Category:      strings.TrimSpace(r.Category),
				Link:          strings.TrimSpace(r.Link),
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown output %q", ErrMalformedResponse, r.Output)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
