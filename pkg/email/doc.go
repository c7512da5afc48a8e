// Package email sends transactional email.
//
// Postmark is used in production; DevSender writes messages to disk for local
// work. CancellationNotifier renders the "subscription cancelled" message and
// plugs into billing.Service as its Notifier.
package email
