package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/koscakluka/ema-chat/core/conversations"
)

func testStores(t *testing.T) map[string]Store {
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return map[string]Store{"file": fileStore, "memory": NewMemoryStore()}
}

func TestStoreRoundTripsHistory(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			history := conversations.History{
				conversations.NewUserMessage("Hi"),
				conversations.NewAssistantMessage("Hello"),
			}
			if err := s.Persist("conversationHistory", history); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			var loaded conversations.History
			ok, err := s.Load("conversationHistory", &loaded)
			if err != nil || !ok {
				t.Fatalf("expected stored value, got ok=%v err=%v", ok, err)
			}
			if len(loaded) != 2 || loaded[0] != history[0] || loaded[1] != history[1] {
				t.Fatalf("expected %v, got %v", history, loaded)
			}
		})
	}
}

func TestStoreLoadMissingKey(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			var persona string
			ok, err := s.Load("selectedPersona", &persona)
			if err != nil || ok {
				t.Fatalf("expected nothing stored, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestStoreRemove(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Persist("responses", []string{"a"})
			if err := s.Remove("responses"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := s.Remove("responses"); err != nil {
				t.Fatalf("expected removing twice to succeed, got %v", err)
			}
			var v []string
			if ok, _ := s.Load("responses", &v); ok {
				t.Fatalf("expected value to be removed")
			}
		})
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	if err := s.Persist("../escape", "x"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	_ = s.Persist("selectedPersona", "leah")
	_ = s.Persist("selectedPersona", "sherlock")

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "selectedPersona.json" {
		t.Fatalf("expected a single value file, got %v", entries)
	}
	var persona string
	if _, err := s.Load("selectedPersona", &persona); err != nil || persona != "sherlock" {
		t.Fatalf("expected sherlock, got %q (%v)", persona, err)
	}
}

func TestFileStoreReportsCorruptValues(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	_ = os.WriteFile(filepath.Join(dir, "responses.json"), []byte("not json{"), 0o600)
	var v []string
	if _, err := s.Load("responses", &v); err == nil {
		t.Fatalf("expected a decode error")
	}
}
