package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/saasbilling/handler"
	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/sessionsync"
)

// Error codes returned in the code field.
const (
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeNoSubscription         = "NO_SUBSCRIPTION"
	CodeCancelNotAllowed       = "CANCEL_NOT_ALLOWED"
	CodeNotScheduled           = "REACTIVATE_NOT_ALLOWED"
	CodeSubscriptionNotFound   = "SUBSCRIPTION_NOT_FOUND"
	CodeCustomerNotFound       = "CUSTOMER_NOT_FOUND"
	CodeSubscriptionError      = "SUBSCRIPTION_ERROR"
	CodeCancelError            = "CANCEL_ERROR"
	CodeReactivateError        = "REACTIVATE_ERROR"
	CodePortalError            = "PORTAL_ERROR"
	CodeHistoryError           = "BILLING_HISTORY_ERROR"
	CodeWebhookError           = "WEBHOOK_ERROR"
	CodeInvalidWebhook         = "INVALID_WEBHOOK"
	CodeBillingUnavailable     = "BILLING_UNAVAILABLE"
	CodeInvalidEvent           = "INVALID_EVENT"
	CodeSessionSyncUnavailable = "SESSION_SYNC_UNAVAILABLE"
	CodeSignOutError           = "SIGN_OUT_ERROR"
)

// operation names the route for error classification.
type operation struct {
	code    string
	message string
	// customerScoped operations report a missing provider resource as a
	// missing customer rather than a missing subscription.
	customerScoped bool
}

var (
	opOverview   = operation{code: CodeSubscriptionError, message: "Failed to load subscription"}
	opHistory    = operation{code: CodeHistoryError, message: "Failed to load billing history", customerScoped: true}
	opCancel     = operation{code: CodeCancelError, message: "Failed to cancel subscription"}
	opReactivate = operation{code: CodeReactivateError, message: "Failed to reactivate subscription"}
	opPortal     = operation{code: CodePortalError, message: "Failed to create portal session", customerScoped: true}
	opWebhook    = operation{code: CodeWebhookError, message: "Failed to process webhook"}
	opSignOut    = operation{code: CodeSignOutError, message: "Failed to sign out"}
	opSession    = operation{code: CodeSessionSyncUnavailable, message: "Session sync failed"}
)

// classifier maps domain errors to HTTP errors for op. Unmatched errors fall
// back to a 500 carrying the operation's code.
func classifier(op operation) handler.Classifier {
	return func(err error) (handler.HTTPError, bool) {
		switch {
		case errors.Is(err, billing.ErrUserNotFound):
			return handler.ErrUnauthorized, true
		case errors.Is(err, billing.ErrCancelNotAllowed):
			return handler.NewHTTPError(http.StatusBadRequest, CodeCancelNotAllowed, "Subscription cannot be cancelled").
				WithDetails(reason(err, billing.ErrCancelNotAllowed)), true
		case errors.Is(err, billing.ErrNoSubscription):
			return handler.NewHTTPError(http.StatusBadRequest, CodeNoSubscription, "No active subscription"), true
		case errors.Is(err, billing.ErrNotScheduled):
			return handler.NewHTTPError(http.StatusBadRequest, CodeNotScheduled, "No cancellation is scheduled"), true
		case errors.Is(err, billing.ErrProviderUnavailable):
			return unavailable(err), true
		case errors.Is(err, billing.ErrNoCustomer):
			return handler.NewHTTPError(http.StatusNotFound, CodeCustomerNotFound, "No billing customer found"), true
		case errors.Is(err, billing.ErrResourceMissing):
			if op.customerScoped {
				return handler.NewHTTPError(http.StatusNotFound, CodeCustomerNotFound, "Billing customer not found"), true
			}
			return handler.NewHTTPError(http.StatusNotFound, CodeSubscriptionNotFound, "Subscription not found"), true
		case errors.Is(err, billing.ErrWebhookVerificationFailed), errors.Is(err, billing.ErrInvalidWebhookPayload):
			return handler.NewHTTPError(http.StatusBadRequest, CodeInvalidWebhook, "Invalid webhook"), true
		case errors.Is(err, billing.ErrWebhookNotSupported):
			return handler.NewHTTPError(http.StatusNotFound, CodeInvalidWebhook, "Provider does not accept webhooks"), true
		case errors.Is(err, sessionsync.ErrUnknownEvent):
			return handler.NewHTTPError(http.StatusBadRequest, CodeInvalidEvent, "Unknown session event"), true
		case errors.Is(err, sessionsync.ErrNoTransport):
			return handler.NewHTTPError(http.StatusServiceUnavailable, CodeSessionSyncUnavailable, "Session sync unavailable"), true
		}
		return handler.NewHTTPError(http.StatusInternalServerError, op.code, op.message).WithDetails(rootCause(err)), true
	}
}

// unavailable names the unconfigured provider in the code.
func unavailable(err error) handler.HTTPError {
	code := CodeBillingUnavailable
	if p, ok := billing.ProviderOf(err); ok && p != billing.ProviderNone {
		code = strings.ToUpper(string(p)) + "_UNAVAILABLE"
	}
	return handler.NewHTTPError(http.StatusServiceUnavailable, code, "Billing provider is not configured")
}

// reason strips the parent sentinel's text from err's message.
func reason(err, parent error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, parent.Error()+": "); i >= 0 {
		return msg[i+len(parent.Error())+2:]
	}
	return msg
}

// rootCause is the last line of a joined error, which is the innermost cause.
func rootCause(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		return msg[i+1:]
	}
	return msg
}
