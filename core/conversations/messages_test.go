package conversations

import "testing"

func TestHistoryCloneDoesNotShareBackingArray(t *testing.T) {
	original := History{NewUserMessage("hi"), NewAssistantMessage("hello")}

	clone := original.Clone()
	clone[0].Content = "changed"

	if original[0].Content != "hi" {
		t.Fatalf("expected original to stay %q, got %q", "hi", original[0].Content)
	}
}

func TestHistoryCloneOfNilIsEmptyNonNil(t *testing.T) {
	var history History

	clone := history.Clone()
	if clone == nil {
		t.Fatalf("expected clone of nil history to be non-nil")
	}
	if len(clone) != 0 {
		t.Fatalf("expected empty clone, got %d messages", len(clone))
	}
}

func TestHistoryValidRejectsUnknownRoles(t *testing.T) {
	if !(History{NewSystemMessage("s"), NewUserMessage("u"), NewAssistantMessage("a")}).Valid() {
		t.Fatalf("expected known roles to be valid")
	}
	if (History{{Role: "tool", Content: "x"}}).Valid() {
		t.Fatalf("expected unknown role to be invalid")
	}
}
