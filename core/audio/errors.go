package audio

import "errors"

var (
	ErrNoPlayer       = errors.New("no audio player configured")
	ErrResolveTimeout = errors.New("clip did not resolve in time")
)
