// Package requestid tags each HTTP request with a correlation ID.
//
// Middleware reuses a well-formed X-Request-ID from the client or generates
// a UUID, stores it on the request context and echoes it in the response.
// LoggerExtractor adds it to every slog record written with that context.
package requestid
