package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/markup"
	"github.com/koscakluka/ema-chat/core/store"
	"github.com/koscakluka/ema-chat/core/texttospeech"
	"github.com/koscakluka/ema-chat/core/transport"
)

// Keys under which session state is persisted.
const (
	KeyResponseLog = "responses"
	KeyHistory     = "conversationHistory"
	KeyPersona     = "selectedPersona"
)

var _ conversations.ActiveContextV0 = (*Session)(nil)

// Session owns one conversation with the backend.
//
// At most one exchange is in flight at a time; submissions made meanwhile
// wait in a FIFO queue and are sent automatically once the current exchange
// ends, successfully or not. History is what the backend sees on the next
// query; the response log is what the user sees and may contain transient
// system notices.
type Session struct {
	mu sync.RWMutex

	history     conversations.History
	responseLog []conversations.Message
	persona     string
	personas    []string

	inFlight       bool
	generation     uint64
	cancelExchange context.CancelFunc
	submissions    *SubmissionQueue

	backend     Backend
	audioQueue  AudioQueue
	clipFetcher ClipFetcher
	synthesizer texttospeech.Synthesizer
	store       store.Store
	renderer    markup.Renderer

	// notifyMu serialises state change callbacks
	notifyMu      sync.Mutex
	onStateChange func(log []conversations.Message, loading bool)

	logger          *slog.Logger
	exchangeTimeout time.Duration
	baseContext     context.Context
	cancelBase      context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSession creates a session and rehydrates its history, response log and
// persona from the store, if one is configured.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		history:         conversations.History{},
		persona:         DefaultPersona,
		submissions:     NewSubmissionQueue(),
		store:           store.NewMemoryStore(),
		renderer:        markup.Raw,
		onStateChange:   func([]conversations.Message, bool) {},
		logger:          logger,
		exchangeTimeout: DefaultExchangeTimeout,
		baseContext:     context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.baseContext, s.cancelBase = context.WithCancel(s.baseContext)

	s.load()
	return s
}

func (s *Session) load() {
	var history conversations.History
	if ok, err := s.store.Load(KeyHistory, &history); err != nil {
		s.logger.Warn("failed to load conversation history", "error", err)
	} else if ok && history.Valid() {
		s.history = history
	}

	var responseLog []conversations.Message
	if ok, err := s.store.Load(KeyResponseLog, &responseLog); err != nil {
		s.logger.Warn("failed to load response log", "error", err)
	} else if ok {
		s.responseLog = responseLog
	}

	var persona string
	if ok, err := s.store.Load(KeyPersona, &persona); err != nil {
		s.logger.Warn("failed to load persona", "error", err)
	} else if ok && persona != "" {
		s.persona = persona
	}
}

// Submit sends text to the backend, or queues it when an exchange is already
// in flight. It never blocks on I/O. Blank text is ignored.
func (s *Session) Submit(text, userContext string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	submission := Submission{Text: text, Context: userContext, queuedAt: time.Now()}

	s.mu.Lock()
	if s.inFlight {
		s.submissions.Enqueue(submission)
		s.mu.Unlock()
		s.logger.Debug("exchange in flight, submission queued", "pending", s.submissions.Len())
		return
	}
	ex := s.beginExchangeLocked(submission)
	s.wg.Add(1)
	s.mu.Unlock()

	s.notifyStateChange()
	go s.run(ex)
}

// Reset clears the conversation, the response log and every pending
// submission. Events still arriving for an exchange started before the reset
// are discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()

	s.notifyStateChange()
}

// SetPersona switches persona. The conversation is cleared the same way
// Reset clears it.
func (s *Session) SetPersona(persona string) {
	s.mu.Lock()
	s.clearLocked()
	s.persona = persona
	if err := s.store.Persist(KeyPersona, persona); err != nil {
		s.logger.Warn("failed to persist persona", "error", err)
	}
	s.mu.Unlock()

	s.notifyStateChange()
}

func (s *Session) clearLocked() {
	s.generation++
	if s.cancelExchange != nil {
		s.cancelExchange()
		s.cancelExchange = nil
	}
	s.inFlight = false
	s.history = conversations.History{}
	s.responseLog = nil
	s.submissions.Clear()

	for _, key := range []string{KeyHistory, KeyResponseLog} {
		if err := s.store.Remove(key); err != nil {
			s.logger.Warn("failed to remove persisted state", "key", key, "error", err)
		}
	}
}

func (s *Session) Persona() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// History returns a copy of the history that will be sent with the next
// query.
func (s *Session) History() conversations.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Clone()
}

// ResponseLog returns a copy of what is shown to the user.
func (s *Session) ResponseLog() []conversations.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseLogSnapshotLocked()
}

func (s *Session) responseLogSnapshotLocked() []conversations.Message {
	snapshot := []conversations.Message{}
	if err := copier.CopyWithOption(&snapshot, &s.responseLog, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched types
		return append([]conversations.Message{}, s.responseLog...)
	}
	return snapshot
}

func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// PendingCount is the number of submissions waiting for the current
// exchange to end.
func (s *Session) PendingCount() int {
	return s.submissions.Len()
}

// PendingSubmissions returns the texts waiting to be sent, oldest first.
func (s *Session) PendingSubmissions() []string {
	return s.submissions.Pending()
}

// Personas lists the personas offered by the backend. The list is fetched
// once and cached for the lifetime of the session.
func (s *Session) Personas(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	cached := s.personas
	s.mu.RUnlock()
	if cached != nil {
		return append([]string(nil), cached...), nil
	}

	if s.backend == nil {
		return nil, ErrNoBackend
	}
	personas, err := s.backend.Personas(ctx)
	if err != nil {
		return nil, err
	}
	if personas == nil {
		personas = []string{}
	}

	s.mu.Lock()
	s.personas = personas
	s.mu.Unlock()
	return append([]string(nil), personas...), nil
}

// Wait blocks until no exchange is running.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels the running exchange, drops pending submissions and waits
// for background work to stop. State already persisted is kept.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.submissions.Clear()
		s.cancelBase()
		s.wg.Wait()
	})
}

func (s *Session) notifyStateChange() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	log := s.responseLogSnapshotLocked()
	loading := s.inFlight
	s.mu.RUnlock()

	s.onStateChange(log, loading)
}

func (s *Session) persistLocked() {
	if err := s.store.Persist(KeyHistory, s.history); err != nil {
		s.logger.Warn("failed to persist conversation history", "error", err)
	}
	if err := s.store.Persist(KeyResponseLog, s.responseLog); err != nil {
		s.logger.Warn("failed to persist response log", "error", err)
	}
}

func (s *Session) fetchClip(uri string) audio.Clip {
	if s.clipFetcher == nil {
		return audio.ReadyClip(uri)
	}
	return s.clipFetcher.FetchClip(s.baseContext, uri)
}

func (s *Session) queryFor(submission Submission, history conversations.History, persona string) transport.QueryRequest {
	return transport.QueryRequest{
		Query:   submission.Text,
		History: history,
		Persona: persona,
		Context: submission.Context,
	}
}
