package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/saasbilling/binder"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// Classifier maps a domain error to the HTTPError sent to the client.
// Returning false leaves the error to the built-in rules.
type Classifier func(err error) (HTTPError, bool)

// classify resolves err to an HTTPError. An HTTPError in the chain wins, then
// binding failures (400), then the classifier, then 500.
func classify(err error, c Classifier) HTTPError {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if isBindingError(err) {
		return ErrBadRequest.WithDetails(err.Error())
	}
	if c != nil {
		if e, ok := c(err); ok {
			return e
		}
	}
	return ErrInternalError
}

func isBindingError(err error) bool {
	for _, target := range []error{
		binder.ErrInvalidJSON,
		binder.ErrInvalidQuery,
		binder.ErrInvalidPath,
		binder.ErrMissingContentType,
		binder.ErrUnsupportedMediaType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// logLevel is Warn for client errors and Error for server errors.
func logLevel(status int) slog.Level {
	if status < http.StatusInternalServerError {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// NewErrorHandler logs the error and renders it as JSON.
// Configure this once in main.go and pass it to every route.
func NewErrorHandler(log *slog.Logger, c Classifier) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		info := classify(err, c)
		r := ctx.Request()

		log.LogAttrs(r.Context(), logLevel(info.Status), "request error",
			logger.Error(err),
			slog.Int("status_code", info.Status),
			slog.String("code", info.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if renderErr := JSONError(info).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "failed to render error response",
				logger.Error(renderErr),
				logger.Component("error_handler"),
			)
		}
	}
}
