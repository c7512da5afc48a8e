package email_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/email"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	return m.Called(ctx, params).Error(0)
}

func TestSendEmailParamsValidate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{SendTo: "a@example.com", Subject: "s", BodyHTML: "<p>b</p>"}
	assert.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*email.SendEmailParams){
		"no recipient":  func(p *email.SendEmailParams) { p.SendTo = "" },
		"bad recipient": func(p *email.SendEmailParams) { p.SendTo = "nope" },
		"no subject":    func(p *email.SendEmailParams) { p.Subject = "" },
		"no body":       func(p *email.SendEmailParams) { p.BodyHTML = "" },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := valid
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), email.ErrInvalidParams)
		})
	}
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	cfg := email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "billing@example.com",
		SupportEmail:         "support@example.com",
	}
	c, err := email.NewPostmarkClient(cfg)
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.True(t, cfg.UsePostmark())

	bad := cfg
	bad.PostmarkServerToken = ""
	_, err = email.NewPostmarkClient(bad)
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
	assert.False(t, bad.UsePostmark())

	bad = cfg
	bad.SenderEmail = "not-an-email"
	_, err = email.NewPostmarkClient(bad)
	assert.ErrorIs(t, err, email.ErrInvalidConfig)
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := email.NewDevSender(dir, nil)
	require.NoError(t, s.SendEmail(context.Background(), email.SendEmailParams{
		SendTo: "a@example.com", Subject: "Hello There", BodyHTML: "<p>hi</p>", Tag: "welcome",
	}))

	html, err := filepath.Glob(filepath.Join(dir, "*_welcome.html"))
	require.NoError(t, err)
	require.Len(t, html, 1)
	body, err := os.ReadFile(html[0])
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(body))

	meta, err := filepath.Glob(filepath.Join(dir, "*_welcome.json"))
	require.NoError(t, err)
	assert.Len(t, meta, 1)
}

func TestCancellationNotifier(t *testing.T) {
	t.Parallel()

	t.Run("sends formatted notice", func(t *testing.T) {
		t.Parallel()
		s := &mockSender{}
		s.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
			return p.SendTo == "jane@example.com" &&
				p.Tag == "subscription-cancelled" &&
				strings.Contains(p.BodyHTML, "Hi Jane") &&
				strings.Contains(p.BodyHTML, "Acme pro subscription") &&
				strings.Contains(p.BodyHTML, "November 1, 2026")
		})).Return(nil).Once()

		n := email.NewCancellationNotifier(s, "Acme")
		end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
		err := n.SubscriptionCancelled(context.Background(), billing.User{
			Email: "jane@example.com", Name: "Jane", SubscriptionTier: billing.TierPro,
		}, &end)
		require.NoError(t, err)
		s.AssertExpectations(t)
	})

	t.Run("skips users without email", func(t *testing.T) {
		t.Parallel()
		s := &mockSender{}
		n := email.NewCancellationNotifier(s, "Acme")
		require.NoError(t, n.SubscriptionCancelled(context.Background(), billing.User{}, nil))
		s.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})

	t.Run("nil sender panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { email.NewCancellationNotifier(nil, "Acme") })
	})
}
