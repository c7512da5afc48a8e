// Package session resolves the signed-in user for billing requests.
//
// Sessions are issued by the authentication service and looked up here by
// the opaque token carried in the session cookie. Store implementations keep
// sessions in memory (tests, single process) or in Redis (shared with the
// authentication service). Manager.Middleware attaches the session to the
// request context; Manager.RequireAuth rejects requests without one.
package session
