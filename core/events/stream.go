package events

import "github.com/koscakluka/ema-chat/core/conversations"

const (
	// KindContent identifies a streamed assistant reply segment.
	KindContent Kind = "stream.content"
	// KindSystem identifies a transient system notice.
	KindSystem Kind = "stream.system"
	// KindVoiceClip identifies a synthesized speech clip ready for download.
	KindVoiceClip Kind = "stream.voice_clip"
	// KindHistorySnapshot identifies an authoritative history replacement.
	KindHistorySnapshot Kind = "stream.history_snapshot"
	// KindEnd identifies the end of the reply stream.
	KindEnd Kind = "stream.end"
)

// Content carries an append-only assistant reply segment.
type Content struct {
	Base
	Text string
}

// NewContent creates a content event.
func NewContent(text string) Content {
	return Content{Base: NewBase(KindContent), Text: text}
}

// System carries a notice shown to the user but never sent back to the
// backend.
type System struct {
	Base
	Text string
}

// NewSystem creates a system notice event.
func NewSystem(text string) System {
	return System{Base: NewBase(KindSystem), Text: text}
}

// VoiceClip points at a speech clip generated by the backend.
type VoiceClip struct {
	Base
	URI       string
	VoiceType string
	Filename  string
}

// NewVoiceClip creates a voice clip event. URI is the backend path of the
// clip, relative to the backend base URL.
func NewVoiceClip(voiceType, filename string) VoiceClip {
	return VoiceClip{
		Base:      NewBase(KindVoiceClip),
		URI:       VoicePath + filename,
		VoiceType: voiceType,
		Filename:  filename,
	}
}

// VoicePath is the backend path prefix under which voice clips are served.
const VoicePath = "/voice/"

// HistorySnapshot replaces the conversation history with the backend's
// version.
type HistorySnapshot struct {
	Base
	History conversations.History
}

// NewHistorySnapshot creates a history snapshot event.
func NewHistorySnapshot(history conversations.History) HistorySnapshot {
	return HistorySnapshot{Base: NewBase(KindHistorySnapshot), History: history.Clone()}
}

// End marks the end of the reply stream.
type End struct{ Base }

// NewEnd creates an end event.
func NewEnd() End {
	return End{Base: NewBase(KindEnd)}
}
