package templates_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/pkg/email/templates"
)

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("component output", func(t *testing.T) {
		t.Parallel()
		out, err := templates.Render(context.Background(), templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
			_, err := io.WriteString(w, "<p>ok</p>")
			return err
		}))
		require.NoError(t, err)
		assert.Equal(t, "<p>ok</p>", out)
	})

	t.Run("component error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		_, err := templates.Render(context.Background(), templ.ComponentFunc(func(context.Context, io.Writer) error {
			return boom
		}))
		assert.ErrorIs(t, err, boom)
	})
}

func TestSubscriptionCancelled(t *testing.T) {
	t.Parallel()

	t.Run("full notice", func(t *testing.T) {
		t.Parallel()
		out, err := templates.Render(context.Background(), templates.SubscriptionCancelled(templates.SubscriptionCancelledData{
			Name: "Jane", App: "Acme", Tier: "pro", EffectiveDate: "November 1, 2026",
		}))
		require.NoError(t, err)
		assert.Contains(t, out, "<p>Hi Jane,</p>")
		assert.Contains(t, out, "Your Acme pro subscription has been cancelled. You keep full access until November 1, 2026.")
	})

	t.Run("no name or date", func(t *testing.T) {
		t.Parallel()
		out, err := templates.Render(context.Background(), templates.SubscriptionCancelled(templates.SubscriptionCancelledData{
			App: "Acme", Tier: "pro",
		}))
		require.NoError(t, err)
		assert.Contains(t, out, "<p>Hi,</p>")
		assert.NotContains(t, out, "full access")
	})

	t.Run("escapes user input", func(t *testing.T) {
		t.Parallel()
		out, err := templates.Render(context.Background(), templates.SubscriptionCancelled(templates.SubscriptionCancelledData{
			Name: `<script>alert("x")</script>`, App: "Acme", Tier: "pro",
		}))
		require.NoError(t, err)
		assert.NotContains(t, out, "<script>")
		assert.Contains(t, out, "&lt;script&gt;")
	})
}
