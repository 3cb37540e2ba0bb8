package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPlayer struct {
	mu        sync.Mutex
	played    []string
	active    int
	maxActive int

	started chan string
	release chan struct{}
	err     error
}

func newRecordingPlayer() *recordingPlayer {
	return &recordingPlayer{started: make(chan string, 16)}
}

func (p *recordingPlayer) Play(ctx context.Context, uri string) error {
	p.mu.Lock()
	p.active++
	p.maxActive = max(p.maxActive, p.active)
	p.played = append(p.played, uri)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	p.started <- uri

	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		time.Sleep(5 * time.Millisecond)
	}

	return p.err
}

func (p *recordingPlayer) playedSoFar() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *recordingPlayer) maxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

type endedClip struct {
	uri string
	err error
}

func newEndedRecorder() (chan endedClip, PlaybackQueueOption) {
	ended := make(chan endedClip, 16)
	return ended, WithClipEndedCallback(func(uri string, err error) {
		ended <- endedClip{uri: uri, err: err}
	})
}

func awaitEnded(t *testing.T, ended chan endedClip) endedClip {
	t.Helper()

	select {
	case clip := <-ended:
		return clip
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for clip to end")
	}
	return endedClip{}
}

func TestPlaybackQueuePlaysInEnqueueOrderWhenLaterClipResolvesFirst(t *testing.T) {
	player := newRecordingPlayer()
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	slow := NewDeferredClip()
	queue.Enqueue(slow)
	queue.Enqueue(ReadyClip("fast.mp3"))

	time.Sleep(50 * time.Millisecond)
	if played := player.playedSoFar(); len(played) != 0 {
		t.Fatalf("expected nothing to play before the first clip resolves, got %v", played)
	}
	if !queue.IsPlaying() {
		t.Fatalf("expected queue to be busy with the unresolved head")
	}

	slow.Complete("slow.mp3")

	first := awaitEnded(t, ended)
	second := awaitEnded(t, ended)
	if first.uri != "slow.mp3" || second.uri != "fast.mp3" {
		t.Fatalf("expected [slow.mp3 fast.mp3], got [%s %s]", first.uri, second.uri)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d clips", queue.Len())
	}
}

func TestPlaybackQueueNeverPlaysTwoClipsAtOnce(t *testing.T) {
	player := newRecordingPlayer()
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	expected := []string{"1.mp3", "2.mp3", "3.mp3", "4.mp3", "5.mp3"}
	for _, uri := range expected {
		queue.Enqueue(ReadyClip(uri))
	}

	for range expected {
		awaitEnded(t, ended)
	}

	if got := player.maxConcurrent(); got != 1 {
		t.Fatalf("expected at most one clip playing at a time, got %d", got)
	}
	played := player.playedSoFar()
	for i := range expected {
		if played[i] != expected[i] {
			t.Fatalf("expected clip %d to be %q, got %q", i, expected[i], played[i])
		}
	}
}

func TestPlaybackQueueStartsNextClipOnlyAfterPreviousFinishes(t *testing.T) {
	player := newRecordingPlayer()
	player.release = make(chan struct{})
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	queue.Enqueue(ReadyClip("first.mp3"))
	queue.Enqueue(ReadyClip("second.mp3"))

	if uri := <-player.started; uri != "first.mp3" {
		t.Fatalf("expected first clip to start, got %q", uri)
	}

	select {
	case uri := <-player.started:
		t.Fatalf("expected second clip to wait, but %q started", uri)
	case <-time.After(50 * time.Millisecond):
	}

	player.release <- struct{}{}
	awaitEnded(t, ended)

	if uri := <-player.started; uri != "second.mp3" {
		t.Fatalf("expected second clip to start, got %q", uri)
	}
	player.release <- struct{}{}
	awaitEnded(t, ended)
}

func TestPlaybackQueueSkipsClipsThatFailToResolve(t *testing.T) {
	player := newRecordingPlayer()
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	failing := NewDeferredClip()
	failing.Fail(errors.New("synthesis failed"))
	queue.Enqueue(failing)
	queue.Enqueue(ReadyClip("ok.mp3"))

	if clip := awaitEnded(t, ended); clip.err == nil {
		t.Fatalf("expected failed clip to report an error")
	}
	if clip := awaitEnded(t, ended); clip.err != nil || clip.uri != "ok.mp3" {
		t.Fatalf("expected ok.mp3 to play without error, got %q (%v)", clip.uri, clip.err)
	}
	if played := player.playedSoFar(); len(played) != 1 {
		t.Fatalf("expected only the resolved clip to be played, got %v", played)
	}
}

func TestPlaybackQueueContinuesAfterPlayerError(t *testing.T) {
	player := newRecordingPlayer()
	player.err = errors.New("device unavailable")
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	queue.Enqueue(ReadyClip("a.mp3"))
	queue.Enqueue(ReadyClip("b.mp3"))

	awaitEnded(t, ended)
	awaitEnded(t, ended)

	if played := player.playedSoFar(); len(played) != 2 {
		t.Fatalf("expected both clips to be attempted, got %v", played)
	}
}

func TestPlaybackQueueStopAbortsCurrentClip(t *testing.T) {
	player := newRecordingPlayer()
	player.release = make(chan struct{})
	queue := NewPlaybackQueue(player)

	queue.Start(context.Background())
	queue.Enqueue(ReadyClip("long.mp3"))
	<-player.started

	queue.Stop()

	done := make(chan struct{})
	go func() {
		queue.AwaitDone()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for queue to stop")
	}
}

func TestPlaybackQueueStartAfterStopIsIgnored(t *testing.T) {
	queue := NewPlaybackQueue(newRecordingPlayer())
	queue.Stop()

	if queue.Start(context.Background()) {
		t.Fatalf("expected start after stop to be ignored")
	}
	queue.AwaitDone()
}

func TestDeferredClipResolvesOnce(t *testing.T) {
	clip := NewDeferredClip()
	clip.Complete("first.mp3")
	clip.Fail(errors.New("ignored"))
	clip.Complete("second.mp3")

	uri, err := clip.Resolve(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if uri != "first.mp3" {
		t.Fatalf("expected %q, got %q", "first.mp3", uri)
	}
}

func TestDeferredClipResolveHonoursContext(t *testing.T) {
	clip := NewDeferredClip()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := clip.Resolve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if clip.IsResolved() {
		t.Fatalf("expected clip to stay unresolved")
	}
}

func TestResolveInBackgroundCompletesClip(t *testing.T) {
	clip := ResolveInBackground(func() (string, error) { return "bg.wav", nil })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	uri, err := clip.Resolve(ctx)
	if err != nil || uri != "bg.wav" {
		t.Fatalf("expected bg.wav, got %q (%v)", uri, err)
	}
}

type releaseRecorder struct {
	mu       sync.Mutex
	released []string
}

func (r *releaseRecorder) clip(uri string) *DeferredClip {
	clip := NewDeferredClip().OnRelease(func(uri string) {
		r.mu.Lock()
		r.released = append(r.released, uri)
		r.mu.Unlock()
	})
	clip.Complete(uri)
	return clip
}

func (r *releaseRecorder) releasedSoFar() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

func TestPlaybackQueueSkipsClipThatNeverResolves(t *testing.T) {
	player := newRecordingPlayer()
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded, WithResolveTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	queue.Enqueue(NewDeferredClip())
	queue.Enqueue(ReadyClip("next.mp3"))

	if clip := awaitEnded(t, ended); !errors.Is(clip.err, ErrResolveTimeout) {
		t.Fatalf("expected ErrResolveTimeout for the stuck clip, got %v", clip.err)
	}
	if clip := awaitEnded(t, ended); clip.err != nil || clip.uri != "next.mp3" {
		t.Fatalf("expected next.mp3 to play, got %q (%v)", clip.uri, clip.err)
	}
	if played := player.playedSoFar(); len(played) != 1 || played[0] != "next.mp3" {
		t.Fatalf("expected only next.mp3 to be played, got %v", played)
	}
}

func TestPlaybackQueueReleasesClipsAfterPlayback(t *testing.T) {
	player := newRecordingPlayer()
	ended, onEnded := newEndedRecorder()
	queue := NewPlaybackQueue(player, onEnded)
	recorder := &releaseRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	queue.Enqueue(recorder.clip("a.wav"))
	queue.Enqueue(recorder.clip("b.wav"))
	awaitEnded(t, ended)
	awaitEnded(t, ended)

	if released := recorder.releasedSoFar(); len(released) != 2 || released[0] != "a.wav" || released[1] != "b.wav" {
		t.Fatalf("expected both clips released in order, got %v", released)
	}
}

func TestPlaybackQueueReleasesDroppedClipsOnStop(t *testing.T) {
	player := newRecordingPlayer()
	player.release = make(chan struct{})
	queue := NewPlaybackQueue(player)
	recorder := &releaseRecorder{}

	queue.Start(context.Background())
	queue.Enqueue(recorder.clip("playing.wav"))
	<-player.started
	queue.Enqueue(recorder.clip("waiting.wav"))

	queue.Stop()
	queue.AwaitDone()
	queue.Enqueue(recorder.clip("late.wav"))

	if released := recorder.releasedSoFar(); len(released) != 3 {
		t.Fatalf("expected every clip to be released, got %v", released)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected an empty queue after stop, got %d", queue.Len())
	}
}

func TestDeferredClipReleasedBeforeCompletionIsFreedOnCompletion(t *testing.T) {
	var released []string
	clip := NewDeferredClip().OnRelease(func(uri string) { released = append(released, uri) })

	clip.Release()
	if len(released) != 0 {
		t.Fatalf("expected nothing to free before completion, got %v", released)
	}

	clip.Complete("late.wav")
	clip.Release()
	if len(released) != 1 || released[0] != "late.wav" {
		t.Fatalf("expected late.wav to be freed once, got %v", released)
	}
}

func TestDeferredClipFailedIsNeverFreed(t *testing.T) {
	called := false
	clip := NewDeferredClip().OnRelease(func(string) { called = true })
	clip.Fail(errors.New("download failed"))
	clip.Release()

	if called {
		t.Fatalf("expected a failed clip not to be freed")
	}
}

func TestReleaseHeadClearsReleasedSlot(t *testing.T) {
	queue := NewPlaybackQueue(newRecordingPlayer())
	backing := []queuedClip{{clip: ReadyClip("a.mp3")}, {clip: ReadyClip("b.mp3")}}
	queue.clips = backing
	queue.playing = true

	queue.releaseHead()

	if backing[0].clip != nil {
		t.Fatalf("expected the released slot to be cleared, got %v", backing[0].clip)
	}
	if queue.Len() != 1 || queue.clips[0].clip != ReadyClip("b.mp3") {
		t.Fatalf("expected b.mp3 to remain queued, got %+v", queue.clips)
	}
	if queue.IsPlaying() {
		t.Fatalf("expected the queue to be idle after release")
	}
}
