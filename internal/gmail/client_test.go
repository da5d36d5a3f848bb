package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestParseEmailDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "RFC1123Z",
			input: "Mon, 02 Jan 2026 15:04:05 +0530",
			want:  time.Date(2026, 1, 2, 15, 4, 5, 0, time.FixedZone("", 19800)),
		},
		{
			name:  "single digit day with zone comment",
			input: "Tue, 3 Feb 2026 08:00:00 +0000 (UTC)",
			want:  time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "no weekday",
			input: "3 Feb 2026 08:00:00 -0700",
			want:  time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC),
		},
		{
			name:    "garbage",
			input:   "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEmailDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "msg-1",
		InternalDate: 1767225600000,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Acme Billing <billing@acme.test>"},
				{Name: "Date", Value: "not a date"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "aGk="}},
				{
					MimeType: "multipart/mixed",
					Parts: []*gmail.MessagePart{
						{
							Filename: "Invoice-42.PDF",
							MimeType: "application/pdf",
							Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 2048},
						},
						{
							Filename: "logo.png",
							MimeType: "image/png",
							Body:     &gmail.MessagePartBody{AttachmentId: "att-2", Size: 100},
						},
					},
				},
			},
		},
	}

	got := parseMessage(msg)

	assert.Equal(t, "msg-1", got.ID)
	assert.Equal(t, defaultSubject, got.Subject)
	assert.Equal(t, "Acme Billing <billing@acme.test>", got.From)
	assert.True(t, got.Date.IsZero())
	assert.Equal(t, time.UnixMilli(1767225600000), got.SentAt())
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "att-1", got.Attachments[0].AttachmentID)
	assert.Equal(t, int64(2048), got.Attachments[0].Size)

	pdfs := got.PDFAttachments()
	require.Len(t, pdfs, 1)
	assert.Equal(t, "Invoice-42.PDF", pdfs[0].Filename)
}

func TestDecodeBody(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 'p', 'd', 'f'}

	padded, err := decodeBody(base64.URLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, padded)

	unpadded, err := decodeBody(base64.RawURLEncoding.EncodeToString(raw[:5]))
	require.NoError(t, err)
	assert.Equal(t, raw[:5], unpadded)

	_, err = decodeBody("***")
	assert.Error(t, err)
}

func TestClient_RefreshAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewClient("client-id", "secret", "http://localhost/callback", server.URL)

	result, err := client.RefreshAccessToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", result.AccessToken)
	assert.Equal(t, "old-refresh", result.RefreshToken)
	assert.True(t, result.ExpiresAt.After(time.Now().Add(50*time.Minute)))
}

func TestClient_RefreshAccessToken_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	client := NewClient("client-id", "secret", "", server.URL)

	_, err := client.RefreshAccessToken(context.Background(), "revoked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to refresh token")
}

func TestClient_FetchMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/msg-7"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg-7",
			"internalDate": "1767225600000",
			"payload": {
				"headers": [{"name": "Subject", "value": "March invoice"}],
				"parts": [{"filename": "march.pdf", "mimeType": "application/pdf", "body": {"attachmentId": "a1", "size": 10}}]
			}
		}`))
	}))
	defer server.Close()

	client := NewClient("id", "secret", "", server.URL)
	client.opts = []option.ClientOption{option.WithEndpoint(server.URL + "/")}

	msg, err := client.FetchMessage(context.Background(), "access", "msg-7")
	require.NoError(t, err)
	assert.Equal(t, "March invoice", msg.Subject)
	assert.Equal(t, defaultSender, msg.From)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "a1", msg.Attachments[0].AttachmentID)
}
