package client

import "errors"

// Client-specific errors
var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNotConnected     = errors.New("client is not connected")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrInvalidConfig    = errors.New("invalid client configuration")
	ErrCallTimeout      = errors.New("call timed out")
	ErrInvalidReply     = errors.New("invalid callback reply")
)

// RemoteError is the error text a hub handler answered a call with.
type RemoteError string

func (e RemoteError) Error() string { return string(e) }
