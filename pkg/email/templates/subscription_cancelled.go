package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// SubscriptionCancelledData fills the cancellation notice. EffectiveDate is
// preformatted; empty omits the access sentence.
type SubscriptionCancelledData struct {
	Name          string
	App           string
	Tier          string
	EffectiveDate string
}

// SubscriptionCancelled confirms a cancellation scheduled at period end.
// Every dynamic value is HTML-escaped.
func SubscriptionCancelled(d SubscriptionCancelledData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!doctype html>\n<html><body>\n<p>Hi")
		if d.Name != "" {
			b.WriteString(" ")
			b.WriteString(templ.EscapeString(d.Name))
		}
		b.WriteString(",</p>\n<p>Your ")
		b.WriteString(templ.EscapeString(d.App))
		b.WriteString(" ")
		b.WriteString(templ.EscapeString(d.Tier))
		b.WriteString(" subscription has been cancelled.")
		if d.EffectiveDate != "" {
			b.WriteString(" You keep full access until ")
			b.WriteString(templ.EscapeString(d.EffectiveDate))
			b.WriteString(".")
		}
		b.WriteString("</p>\n<p>Changed your mind? You can reactivate any time before then from your billing settings.</p>\n</body></html>")

		_, err := io.WriteString(w, b.String())
		return err
	})
}
