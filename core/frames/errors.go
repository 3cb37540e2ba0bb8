package frames

import "errors"

var (
	ErrUndecodableFrame = errors.New("frame is not valid JSON")
	ErrUnknownFrame     = errors.New("frame matches no known event")
)
