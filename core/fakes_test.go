package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/transport"
)

// scriptedBackend answers every query with the next scripted reply.
type scriptedBackend struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []transport.QueryRequest

	personas     []string
	personaCalls int
}

func (b *scriptedBackend) Query(_ context.Context, request transport.QueryRequest) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, request)

	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(b.replies) == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	reply := b.replies[0]
	b.replies = b.replies[1:]
	return io.NopCloser(strings.NewReader(reply)), nil
}

func (b *scriptedBackend) Personas(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.personaCalls++
	return b.personas, nil
}

func (b *scriptedBackend) recordedRequests() []transport.QueryRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]transport.QueryRequest(nil), b.requests...)
}

// pipeBackend hands each reply stream to the test so frames can be written
// while the exchange is running.
type pipeBackend struct {
	streams  chan *io.PipeWriter
	requests chan transport.QueryRequest
}

func newPipeBackend() *pipeBackend {
	return &pipeBackend{
		streams:  make(chan *io.PipeWriter, 8),
		requests: make(chan transport.QueryRequest, 8),
	}
}

func (b *pipeBackend) Query(_ context.Context, request transport.QueryRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	b.requests <- request
	b.streams <- writer
	return reader, nil
}

func (b *pipeBackend) Personas(context.Context) ([]string, error) {
	return nil, errors.New("not supported")
}

func (b *pipeBackend) nextStream(t *testing.T) (*io.PipeWriter, transport.QueryRequest) {
	t.Helper()
	select {
	case writer := <-b.streams:
		return writer, <-b.requests
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a query")
	}
	return nil, transport.QueryRequest{}
}

type recordingAudioQueue struct {
	mu    sync.Mutex
	clips []audio.Clip
}

func (q *recordingAudioQueue) Enqueue(clip audio.Clip) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clips = append(q.clips, clip)
}

func (q *recordingAudioQueue) uris(t *testing.T) []string {
	t.Helper()
	q.mu.Lock()
	clips := append([]audio.Clip(nil), q.clips...)
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var uris []string
	for _, clip := range clips {
		uri, err := clip.Resolve(ctx)
		if err != nil {
			t.Fatalf("expected clip to resolve, got %v", err)
		}
		uris = append(uris, uri)
	}
	return uris
}

type recordingSynthesizer struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSynthesizer) Synthesize(_ context.Context, text string) audio.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return audio.ReadyClip("speech.wav")
}

type stateRecorder struct {
	mu      sync.Mutex
	loading []bool
	logs    [][]conversations.Message
}

func (r *stateRecorder) record(log []conversations.Message, loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = append(r.loading, loading)
	r.logs = append(r.logs, log)
}

func (r *stateRecorder) last() ([]conversations.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) == 0 {
		return nil, false
	}
	return r.logs[len(r.logs)-1], r.loading[len(r.loading)-1]
}

func frame(payload string) string {
	return "data: " + payload + "\n\n"
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
