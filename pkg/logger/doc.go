// Package logger builds the service's *slog.Logger.
//
// New takes functional options selecting the output format, minimum level,
// static attributes and ContextExtractor callbacks. Extractors run on every
// record and pull request-scoped values (request id, environment, user id)
// out of the context passed to the *Context logging methods.
//
// Attribute helpers in attr.go keep key names consistent across packages:
//
//	log.ErrorContext(ctx, "cancel subscription",
//		logger.Provider("stripe"),
//		logger.UserID(user.ID),
//		logger.Error(err),
//	)
package logger
