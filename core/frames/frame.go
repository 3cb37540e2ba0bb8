package frames

import (
	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/events"
)

// Frame is the wire shape of a single reply stream frame. All fields are
// optional; which of them are set decides the event the frame maps to.
type Frame struct {
	Type      frameType `json:"type,omitempty" jsonschema:"enum=system,enum=end,enum=history"`
	Content   string    `json:"content,omitempty"`
	VoiceType string    `json:"voice_type,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	// History is a pointer so an explicit empty snapshot can be told apart
	// from a missing one.
	History *conversations.History `json:"history,omitempty"`
}

type frameType string

const (
	frameTypeSystem  frameType = "system"
	frameTypeEnd     frameType = "end"
	frameTypeHistory frameType = "history"
)

// Classify maps a decoded frame to its event. The checks run in a fixed
// order because a frame can match more than one shape, e.g. a system frame
// also carries content.
func Classify(frame Frame) (events.Event, bool) {
	switch {
	case frame.Type == frameTypeSystem && frame.Content != "":
		return events.NewSystem(frame.Content), true
	case frame.Type == frameTypeEnd:
		return events.NewEnd(), true
	case frame.Content != "":
		return events.NewContent(frame.Content), true
	case frame.VoiceType != "" && frame.Filename != "":
		return events.NewVoiceClip(frame.VoiceType, frame.Filename), true
	case frame.Type == frameTypeHistory && frame.History != nil:
		return events.NewHistorySnapshot(*frame.History), true
	}

	return nil, false
}

// Schema describes the wire frame as a JSON schema.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(&Frame{})
}
