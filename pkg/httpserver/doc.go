// Package httpserver runs the billing API's http.Server with graceful shutdown.
//
// Run blocks until the context is cancelled, SIGINT/SIGTERM arrives or the
// listener fails. Shutdown drains in-flight requests within the configured
// timeout and then runs stop hooks in registration order, which is where the
// process releases database pools, Redis clients and sync channels.
package httpserver
