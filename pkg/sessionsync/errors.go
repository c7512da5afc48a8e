package sessionsync

import "errors"

var (
	ErrNoTransport        = errors.New("sessionsync: no transport available")
	ErrNotListening       = errors.New("sessionsync: channel is not listening")
	ErrAlreadyInitialized = errors.New("sessionsync: channel already initialized")
	ErrClosed             = errors.New("sessionsync: channel is closed")
	ErrUnknownEvent       = errors.New("sessionsync: unknown event type")
)
