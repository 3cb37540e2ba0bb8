package events

import (
	"testing"

	"github.com/koscakluka/ema-chat/core/conversations"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "content", event: NewContent("text"), expected: KindContent},
		{name: "system", event: NewSystem("notice"), expected: KindSystem},
		{name: "voice clip", event: NewVoiceClip("en", "a.mp3"), expected: KindVoiceClip},
		{name: "history snapshot", event: NewHistorySnapshot(nil), expected: KindHistorySnapshot},
		{name: "end", event: NewEnd(), expected: KindEnd},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestVoiceClipURIIsServedUnderVoicePath(t *testing.T) {
	clip := NewVoiceClip("en-US-AriaNeural", "response_1.mp3")

	if clip.URI != "/voice/response_1.mp3" {
		t.Fatalf("expected uri %q, got %q", "/voice/response_1.mp3", clip.URI)
	}
}

func TestHistorySnapshotCopiesHistory(t *testing.T) {
	history := conversations.History{conversations.NewUserMessage("hi")}

	snapshot := NewHistorySnapshot(history)
	history[0].Content = "changed"

	if snapshot.History[0].Content != "hi" {
		t.Fatalf("expected snapshot to keep %q, got %q", "hi", snapshot.History[0].Content)
	}
}
