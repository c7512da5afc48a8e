package broadcast

import "errors"

var (
	ErrClosed      = errors.New("broadcast: broadcaster is closed")
	ErrNilClient   = errors.New("broadcast: redis client is nil")
	ErrUnreachable = errors.New("broadcast: backend unreachable")
	ErrEncode      = errors.New("broadcast: failed to encode message")
)
