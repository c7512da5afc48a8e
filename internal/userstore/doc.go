// Package userstore implements billing.UserStore over memory, MySQL (gorm)
// and PostgreSQL (pgx).
//
// Every backend applies SubscriptionUpdate.ExpectStatus as a compare-and-set
// on subscription_status, so concurrent cancellations of the same user
// serialize at the storage layer.
package userstore
