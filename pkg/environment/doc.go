// Package environment names the deployment environments the billing service
// runs in and carries the active one through context.Context.
//
// Parse normalizes short aliases ("prod", "stage", "dev") coming from the
// APP_ENV variable. Middleware stores the value on every request context and
// LoggerExtractor turns it into a slog attribute, so log lines emitted from
// handlers are tagged without passing the environment explicitly.
package environment
