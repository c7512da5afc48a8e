// Package sessionsync propagates authentication state changes between the
// clients of one browser profile.
//
// A Channel is bound to a name shared by all participants. Each participant
// publishes SESSION_UPDATED, SESSION_CLEARED or USER_LOGOUT events and reacts
// to the events of others: SESSION_UPDATED asks the Refresher to re-fetch the
// session, the other two make the Navigator go to the login page without any
// further check.
//
// Init picks the transport once. The primary transport is a
// broadcast.Broadcaster; when it cannot be constructed the channel falls back
// to a key-value Storage that notifies watchers on value changes. Delivery is
// best effort with no ordering, deduplication or replay.
package sessionsync
