package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Player plays a single clip to completion. Play returns once playback has
// finished or failed.
type Player interface {
	Play(ctx context.Context, uri string) error
}

// PlaybackQueue plays clips one at a time in the order they were enqueued.
//
// A clip that resolves early still waits for every clip enqueued before it.
// The queue is drained by a single driver goroutine started with Start; the
// head of the queue stays in place while it is resolving and playing and is
// removed once playback has ended, successfully or not.
type PlaybackQueue struct {
	mu      sync.Mutex
	clips   []queuedClip
	playing bool

	player         Player
	logger         *slog.Logger
	resolveTimeout time.Duration

	onClipEnded func(uri string, err error)

	updateSignal chan struct{}
	closeCh      chan struct{}
	done         chan struct{}
	cancel       context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

type queuedClip struct {
	clip     Clip
	queuedAt time.Time
}

// DefaultResolveTimeout bounds how long the head of the queue may wait for
// its clip before it is skipped.
const DefaultResolveTimeout = 30 * time.Second

type PlaybackQueueOption func(*PlaybackQueue)

func WithLogger(logger *slog.Logger) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClipEndedCallback registers a callback invoked after every clip, with
// the error that ended it, if any.
func WithClipEndedCallback(callback func(uri string, err error)) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		if callback != nil {
			q.onClipEnded = callback
		}
	}
}

// WithResolveTimeout sets how long a clip may take to resolve once it is at
// the head of the queue. A clip that takes longer ends with
// ErrResolveTimeout and the queue moves on.
func WithResolveTimeout(timeout time.Duration) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		if timeout > 0 {
			q.resolveTimeout = timeout
		}
	}
}

func NewPlaybackQueue(player Player, opts ...PlaybackQueueOption) *PlaybackQueue {
	q := &PlaybackQueue{
		player:         player,
		logger:         logger,
		resolveTimeout: DefaultResolveTimeout,
		onClipEnded:    func(string, error) {},
		updateSignal:   make(chan struct{}, 1),
		closeCh:        make(chan struct{}),
		done:           make(chan struct{}),
		cancel:         func() {},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a clip to the queue. It never blocks. Clips enqueued after
// Stop are released without being played.
func (q *PlaybackQueue) Enqueue(clip Clip) {
	if q == nil || clip == nil {
		return
	}
	select {
	case <-q.closeCh:
		Release(clip)
		return
	default:
	}

	q.mu.Lock()
	q.clips = append(q.clips, queuedClip{clip: clip, queuedAt: time.Now()})
	q.mu.Unlock()
	q.signalUpdate()
}

// Start launches the driver goroutine. Only the first call has an effect.
func (q *PlaybackQueue) Start(ctx context.Context) (started bool) {
	if q == nil {
		return false
	}

	q.startOnce.Do(func() {
		select {
		case <-q.closeCh:
			return
		default:
		}

		ctx, cancel := context.WithCancel(ctx)
		q.mu.Lock()
		q.cancel = cancel
		q.mu.Unlock()
		started = true
		q.started.Store(true)
		go q.drive(ctx)
	})
	return started
}

// Stop ends the driver and aborts the clip being played, if any. Clips still
// queued are dropped.
func (q *PlaybackQueue) Stop() {
	if q == nil {
		return
	}

	q.stopOnce.Do(func() {
		close(q.closeCh)
		q.mu.Lock()
		cancel := q.cancel
		q.mu.Unlock()
		cancel()
	})
}

// AwaitDone blocks until the driver goroutine has exited.
func (q *PlaybackQueue) AwaitDone() {
	if q == nil {
		return
	}

	if q.started.Load() {
		<-q.done
	}
}

// Len returns the number of clips waiting or playing.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.clips)
}

func (q *PlaybackQueue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

func (q *PlaybackQueue) drive(ctx context.Context) {
	defer close(q.done)
	defer q.releaseRemaining()

	for {
		head, ok := q.takeHead()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.closeCh:
				return
			case <-q.updateSignal:
				continue
			}
		}

		uri, err := q.playClip(ctx, head)
		q.releaseHead()
		Release(head.clip)
		q.onClipEnded(uri, err)

		if ctx.Err() != nil {
			return
		}
	}
}

// takeHead marks the queue as playing and returns its head, but only if the
// queue is not empty and nothing is playing yet.
func (q *PlaybackQueue) takeHead() (queuedClip, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.playing || len(q.clips) == 0 {
		return queuedClip{}, false
	}

	q.playing = true
	return q.clips[0], true
}

func (q *PlaybackQueue) releaseHead() {
	q.mu.Lock()
	if len(q.clips) > 0 {
		q.clips[0] = queuedClip{}
		q.clips = q.clips[1:]
	}
	q.playing = false
	q.mu.Unlock()
}

// releaseRemaining frees the clips dropped when the driver exits.
func (q *PlaybackQueue) releaseRemaining() {
	q.mu.Lock()
	remaining := q.clips
	q.clips = nil
	q.playing = false
	q.mu.Unlock()

	for _, queued := range remaining {
		Release(queued.clip)
	}
}

func (q *PlaybackQueue) playClip(ctx context.Context, head queuedClip) (uri string, err error) {
	ctx, span := tracer.Start(ctx, "play clip")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("audio player panicked: %v", recovered)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			q.logger.Warn("Failed to play clip", "uri", uri, "error", err)
		}
	}()

	queuedTime := time.Since(head.queuedAt).Seconds()
	span.AddEvent("taken out of queue", trace.WithAttributes(attribute.Float64("clip.queued_time", queuedTime)))

	resolveCtx, cancel := context.WithTimeoutCause(ctx, q.resolveTimeout, ErrResolveTimeout)
	uri, err = head.clip.Resolve(resolveCtx)
	cancel()
	if err != nil {
		return uri, fmt.Errorf("failed to resolve clip: %w", err)
	}
	span.SetAttributes(attribute.String("clip.uri", uri))
	span.AddEvent("clip resolved")

	if q.player == nil {
		return uri, ErrNoPlayer
	}

	if err = q.player.Play(ctx, uri); err != nil {
		return uri, fmt.Errorf("failed to play clip: %w", err)
	}
	return uri, nil
}

func (q *PlaybackQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
