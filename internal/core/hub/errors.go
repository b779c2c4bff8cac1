package hub

import "errors"

var (
	ErrHubClosed       = errors.New("hub: closed")
	ErrDuplicateModule = errors.New("hub: module already attached")
	ErrUnnamedModule   = errors.New("hub: module has no name")
	ErrUnknownRoot     = errors.New("hub: unknown state root")
	ErrPathNotFound    = errors.New("hub: state path not found")
)
