package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipul43/invy-worker/internal/models"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*mail.SGMailV3
	status   int
	err      error
}

func (f *fakeSender) Send(email *mail.SGMailV3) (*rest.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, email)
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = 202
	}
	return &rest.Response{StatusCode: status}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

var (
	testOwner   = models.Owner{ID: "owner-1", Email: "owner@example.com", Name: "Priya"}
	testAccount = models.Account{ID: "acc-1", OwnerID: "owner-1", MailboxAddress: "bills@example.com"}
)

func TestNotifier_SendsOncePerCooldown(t *testing.T) {
	fake := &fakeSender{}
	n := NewNotifier("", "noreply@invy.test", "https://app.invy.test")
	n.sender = fake

	for i := 0; i < 3; i++ {
		require.NoError(t, n.NotifyCredentialFailure(context.Background(), testOwner, testAccount))
	}
	assert.Equal(t, 1, fake.count())

	msg := fake.messages[0]
	assert.Equal(t, "Action needed: reconnect bills@example.com", msg.Subject)
	require.Len(t, msg.Personalizations, 1)
	assert.Equal(t, "owner@example.com", msg.Personalizations[0].To[0].Address)
}

func TestNotifier_CooldownExpiry(t *testing.T) {
	fake := &fakeSender{}
	n := NewNotifier("", "noreply@invy.test", "https://app.invy.test")
	n.sender = fake

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	n.sent.now = func() time.Time { return now }

	require.NoError(t, n.NotifyCredentialFailure(context.Background(), testOwner, testAccount))
	now = now.Add(DefaultCooldown - time.Minute)
	require.NoError(t, n.NotifyCredentialFailure(context.Background(), testOwner, testAccount))
	assert.Equal(t, 1, fake.count())

	now = now.Add(2 * time.Minute)
	require.NoError(t, n.NotifyCredentialFailure(context.Background(), testOwner, testAccount))
	assert.Equal(t, 2, fake.count())
}

func TestNotifier_FailedSendCanRetry(t *testing.T) {
	fake := &fakeSender{err: errors.New("dial tcp: timeout")}
	n := NewNotifier("", "noreply@invy.test", "https://app.invy.test")
	n.sender = fake

	err := n.NotifyCredentialFailure(context.Background(), testOwner, testAccount)
	require.Error(t, err)

	fake.err = nil
	fake.status = 500
	err = n.NotifyCredentialFailure(context.Background(), testOwner, testAccount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	fake.status = 0
	require.NoError(t, n.NotifyCredentialFailure(context.Background(), testOwner, testAccount))
	assert.Equal(t, 3, fake.count())
}

func TestNotifier_WithoutAPIKeyOnlyLogs(t *testing.T) {
	n := NewNotifier("", "noreply@invy.test", "https://app.invy.test")
	assert.NoError(t, n.NotifyCredentialFailure(context.Background(), testOwner, testAccount))
}

func TestPlainToHTML(t *testing.T) {
	assert.Equal(t, "<p>a &lt;b&gt;</p><p>c<br>d</p>", plainToHTML("a <b>\n\nc\nd"))
}
