// Package events defines the typed events decoded from a reply stream.
//
// Every decoded frame maps to exactly one event:
//
//   - Content (stream.content): append-only assistant reply segment.
//   - System (stream.system): transient notice, rendered but never part of
//     the history sent to the backend.
//   - VoiceClip (stream.voice_clip): speech clip for the reply, queued for
//     playback independently of text.
//   - HistorySnapshot (stream.history_snapshot): authoritative replacement of
//     the whole conversation history.
//   - End (stream.end): reply complete; the in-progress message is finalized.
package events
