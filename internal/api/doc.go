// Package api exposes the billing service and the session sync channel over HTTP.
//
// Billing routes require an authenticated session and answer with JSON.
// Failures use the body {error, code, details}; see errors.go for the codes.
// Provider webhooks are unauthenticated and verified by the provider adapter.
package api
