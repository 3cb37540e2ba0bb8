package chat

import "errors"

var (
	ErrStreamEndedBeforeEnd = errors.New("reply stream ended before the end frame")
	ErrNoBackend            = errors.New("no backend configured")
	ErrExchangeTimeout      = errors.New("exchange timed out")
)
