package chat

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/markup"
	"github.com/koscakluka/ema-chat/core/store"
	"github.com/koscakluka/ema-chat/core/texttospeech"
	"github.com/koscakluka/ema-chat/core/transport"
)

const (
	DefaultPersona         = "leah"
	DefaultExchangeTimeout = 2 * time.Minute
)

type SessionOption func(*Session)

// Backend answers queries with a reply frame stream.
type Backend interface {
	Query(ctx context.Context, request transport.QueryRequest) (io.ReadCloser, error)
	Personas(ctx context.Context) ([]string, error)
}

func WithBackend(backend Backend) SessionOption {
	return func(s *Session) {
		s.backend = backend
	}
}

// AudioQueue receives clips in the order they should be played.
type AudioQueue interface {
	Enqueue(clip audio.Clip)
}

func WithAudioQueue(queue AudioQueue) SessionOption {
	return func(s *Session) {
		s.audioQueue = queue
	}
}

// ClipFetcher turns a voice clip path announced by the backend into a clip
// handle, typically by downloading it in the background.
type ClipFetcher interface {
	FetchClip(ctx context.Context, uri string) audio.Clip
}

func WithClipFetcher(fetcher ClipFetcher) SessionOption {
	return func(s *Session) {
		s.clipFetcher = fetcher
	}
}

// WithSynthesizer voices replies locally when the backend sent no clip for
// them.
func WithSynthesizer(synthesizer texttospeech.Synthesizer) SessionOption {
	return func(s *Session) {
		s.synthesizer = synthesizer
	}
}

func WithStore(store store.Store) SessionOption {
	return func(s *Session) {
		if store != nil {
			s.store = store
		}
	}
}

func WithMarkupRenderer(renderer markup.Renderer) SessionOption {
	return func(s *Session) {
		if renderer != nil {
			s.renderer = renderer
		}
	}
}

// WithStateChangeCallback is called with a copy of the response log after
// every change to it or to the loading state. Calls are serialised. The
// callback must not call Submit, Reset or SetPersona synchronously.
func WithStateChangeCallback(callback func(log []conversations.Message, loading bool)) SessionOption {
	return func(s *Session) {
		if callback != nil {
			s.onStateChange = callback
		}
	}
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithExchangeTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		if timeout > 0 {
			s.exchangeTimeout = timeout
		}
	}
}

// WithDefaultPersona sets the persona used when none has been stored.
func WithDefaultPersona(persona string) SessionOption {
	return func(s *Session) {
		if persona != "" {
			s.persona = persona
		}
	}
}

// WithBaseContext sets the context every exchange and clip fetch derives
// from. Cancelling it ends the session's background work.
func WithBaseContext(ctx context.Context) SessionOption {
	return func(s *Session) {
		if ctx != nil {
			s.baseContext = ctx
		}
	}
}
