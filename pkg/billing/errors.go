package billing

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrStatusConflict = errors.New("subscription status changed concurrently")

	// ErrCancelNotAllowed is the parent of the eligibility rejections below.
	ErrCancelNotAllowed = errors.New("cancellation not allowed")
	ErrFreePlan         = fmt.Errorf("%w: free plan", ErrCancelNotAllowed)
	ErrAlreadyScheduled = fmt.Errorf("%w: already scheduled", ErrCancelNotAllowed)
	ErrNoSubscription   = errors.New("not cancellable: no active provider subscription")
	ErrNotScheduled     = errors.New("no cancellation is scheduled")

	ErrProviderUnavailable = errors.New("billing provider is not configured")
	ErrResourceMissing     = errors.New("billing provider resource not found")
	ErrProviderFailure     = errors.New("billing provider request failed")
	ErrNoCustomer          = errors.New("no provider customer for user")
	ErrNoPortalURL         = errors.New("no portal URL returned from provider")
	ErrPersistFailed       = errors.New("failed to persist subscription state")

	ErrMissingAPIKey             = errors.New("billing provider API key is required")
	ErrWebhookNotSupported       = errors.New("billing provider does not accept webhooks")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrInvalidWebhookPayload     = errors.New("invalid webhook payload")
)

// ProviderError attributes a failure to a provider and operation.
type ProviderError struct {
	Provider ProviderName
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(p ProviderName, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: p, Op: op, Err: err}
}

// ProviderOf returns the provider a failure is attributed to, if any.
func ProviderOf(err error) (ProviderName, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Provider, true
	}
	return ProviderNone, false
}
