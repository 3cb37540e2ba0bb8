package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/events"
	"github.com/koscakluka/ema-chat/core/frames"
	"github.com/koscakluka/ema-chat/core/texttospeech"
	"github.com/koscakluka/ema-chat/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const readChunkSize = 4096

// exchange is one query and its streamed reply.
type exchange struct {
	id         string
	generation uint64
	submission Submission
	request    transport.QueryRequest

	ctx    context.Context
	cancel context.CancelFunc

	// assistantIndex is the in-progress entry in the response log, -1 until
	// the first content arrives.
	assistantIndex int
	text           strings.Builder
	voiced         bool
	ended          bool
}

// beginExchangeLocked marks the session busy and records the user message.
// The caller holds s.mu.
func (s *Session) beginExchangeLocked(submission Submission) *exchange {
	userMessage := conversations.NewUserMessage(submission.Text)
	s.history = append(s.history, userMessage)
	s.responseLog = append(s.responseLog, userMessage)
	s.inFlight = true
	s.persistLocked()

	ctx, cancel := context.WithTimeoutCause(s.baseContext, s.exchangeTimeout, ErrExchangeTimeout)
	s.cancelExchange = cancel

	return &exchange{
		id:             uuid.NewString(),
		generation:     s.generation,
		submission:     submission,
		request:        s.queryFor(submission, s.history.Clone(), s.persona),
		ctx:            ctx,
		cancel:         cancel,
		assistantIndex: -1,
	}
}

// run processes exchanges until the submission queue is empty.
func (s *Session) run(ex *exchange) {
	defer s.wg.Done()

	for ex != nil {
		err := panicSafeNamedWorker("exchange", func(ctx context.Context) error {
			return s.processExchange(ctx, ex)
		})(ex.ctx)
		if err != nil {
			s.logger.Error("exchange failed", "exchange_id", ex.id, "error", err)
		}

		ex = s.finishExchange(ex)
	}
}

// finishExchange clears the in-flight state of ex and begins the next queued
// submission, if any. Exchanges superseded by a reset leave the session
// untouched.
func (s *Session) finishExchange(ex *exchange) *exchange {
	ex.cancel()

	s.mu.Lock()
	if ex.generation != s.generation {
		s.mu.Unlock()
		return nil
	}

	s.inFlight = false
	s.cancelExchange = nil
	if !ex.ended {
		s.persistLocked()
	}

	var next *exchange
	if submission, ok := s.submissions.DequeueNext(); ok {
		next = s.beginExchangeLocked(submission)
	}
	s.mu.Unlock()

	s.notifyStateChange()
	return next
}

func (s *Session) processExchange(ctx context.Context, ex *exchange) (err error) {
	ctx, span := tracer.Start(ctx, "process exchange", trace.WithAttributes(
		attribute.String("exchange.id", ex.id),
		attribute.String("exchange.persona", ex.request.Persona),
		attribute.Int("exchange.history_length", len(ex.request.History)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "exchange failed")
		}
		span.End()
	}()

	queuedTime := time.Since(ex.submission.queuedAt).Seconds()
	span.SetAttributes(attribute.Float64("exchange.queued_time", queuedTime))

	if s.backend == nil {
		return ErrNoBackend
	}

	stream, err := s.backend.Query(ctx, ex.request)
	if err != nil {
		return fmt.Errorf("failed to query backend: %w", s.contextError(ctx, err))
	}
	defer stream.Close()
	stop := closeOnDone(ctx, stream.Close)
	defer stop()
	span.AddEvent("stream opened")

	decoder := frames.NewDecoder(frames.WithLogger(s.logger))
	defer func() {
		span.SetAttributes(attribute.Int("exchange.dropped_frames", decoder.Dropped()))
	}()

	buf := make([]byte, readChunkSize)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			for _, event := range decoder.Decode(buf[:n]) {
				if done := s.apply(ex, event); done {
					return nil
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			for _, event := range decoder.Flush() {
				if done := s.apply(ex, event); done {
					return nil
				}
			}
			return ErrStreamEndedBeforeEnd
		} else if readErr != nil {
			return fmt.Errorf("failed to read reply stream: %w", s.contextError(ctx, readErr))
		}
	}
}

// contextError prefers the context's cause over the error it produced, so a
// timeout is reported as such rather than as a closed stream.
func (s *Session) contextError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

// apply reduces one event into session state. It reports whether the
// exchange is over, either because the event ended it or because the
// session was reset since the exchange began.
func (s *Session) apply(ex *exchange, event events.Event) (done bool) {
	var clip audio.Clip

	s.mu.Lock()
	if ex.generation != s.generation {
		s.mu.Unlock()
		return true
	}

	switch event := event.(type) {
	case events.Content:
		if ex.assistantIndex < 0 {
			s.responseLog = append(s.responseLog, conversations.NewAssistantMessage(""))
			ex.assistantIndex = len(s.responseLog) - 1
		}
		s.responseLog[ex.assistantIndex].Content += event.Text
		ex.text.WriteString(event.Text)

	case events.System:
		s.responseLog = append(s.responseLog, conversations.NewSystemMessage(event.Text))

	case events.VoiceClip:
		ex.voiced = true
		if s.audioQueue != nil {
			clip = s.fetchClip(event.URI)
		}

	case events.HistorySnapshot:
		s.history = event.History.Clone()
		s.persistLocked()

	case events.End:
		s.finalizeLocked(ex)
		if !ex.voiced {
			clip = s.synthesize(ex.text.String())
		}
		done = true

	default:
		s.logger.Warn("ignoring unexpected event", "kind", event.Kind())
	}
	s.mu.Unlock()

	if clip != nil && s.audioQueue != nil {
		s.audioQueue.Enqueue(clip)
	}
	if _, isClip := event.(events.VoiceClip); !isClip {
		s.notifyStateChange()
	}
	return done
}

// finalizeLocked commits the reply: the raw text goes to the history, the
// rendered text replaces the in-progress entry and transient notices are
// dropped from the response log.
func (s *Session) finalizeLocked(ex *exchange) {
	raw := ex.text.String()
	s.history = append(s.history, conversations.NewAssistantMessage(raw))

	rendered, err := s.render(raw)
	if err != nil {
		s.logger.Warn("failed to render reply, showing raw text", "exchange_id", ex.id, "error", err)
		rendered = raw
	}

	kept := make([]conversations.Message, 0, len(s.responseLog))
	assistantIndex := -1
	for i, message := range s.responseLog {
		if i == ex.assistantIndex {
			assistantIndex = len(kept)
		} else if message.Role == conversations.RoleSystem {
			continue
		}
		kept = append(kept, message)
	}
	if assistantIndex < 0 {
		kept = append(kept, conversations.NewAssistantMessage(rendered))
	} else {
		kept[assistantIndex].Content = rendered
	}
	s.responseLog = kept

	ex.ended = true
	s.persistLocked()
}

func (s *Session) render(raw string) (rendered string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("renderer panicked: %v", recovered)
		}
	}()
	return s.renderer.Render(raw)
}

func (s *Session) synthesize(text string) audio.Clip {
	if s.synthesizer == nil || s.audioQueue == nil {
		return nil
	}
	spoken := strings.TrimSpace(texttospeech.StripMarkdown(text))
	if spoken == "" {
		return nil
	}
	return s.synthesizer.Synthesize(s.baseContext, spoken)
}
