package dashboard

import "errors"

var (
	ErrChannelUnavailable = errors.New("channel layer not attached")
	ErrModuleNotFound     = errors.New("module not found")
	ErrInvalidPathPrefix  = errors.New("key must start with data. or props.")
	ErrNotAccessible      = errors.New("module state is not accessible")
	ErrRelayTimeout       = errors.New("relay callback timed out")
	ErrAlreadyStopped     = errors.New("dashboard already stopped")
	ErrMalformedMessage   = errors.New("malformed message")
)
