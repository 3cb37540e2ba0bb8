package audio

import (
	"context"
	"sync"
)

// Clip is a handle to an audio clip that eventually resolves to a playable
// URI. Resolution may take arbitrarily long, e.g. while speech is being
// synthesized or downloaded.
type Clip interface {
	Resolve(ctx context.Context) (string, error)
}

// ReadyClip is a clip whose URI is known up front.
type ReadyClip string

func (c ReadyClip) Resolve(context.Context) (string, error) { return string(c), nil }

// Releaser is implemented by clips that hold on to a resource, such as a
// downloaded file, until they have been played.
type Releaser interface {
	Release()
}

// Release frees the resources held by clip, if it holds any.
func Release(clip Clip) {
	if releaser, ok := clip.(Releaser); ok {
		releaser.Release()
	}
}

// DeferredClip is a clip resolved later by whoever produces it. Only the
// first Complete or Fail call has an effect.
type DeferredClip struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool

	uri string
	err error

	onRelease func(uri string)
	released  bool
}

func NewDeferredClip() *DeferredClip {
	return &DeferredClip{done: make(chan struct{})}
}

// ResolveInBackground returns a clip resolved by running resolve on its own
// goroutine.
func ResolveInBackground(resolve func() (string, error)) *DeferredClip {
	clip := NewDeferredClip()
	go func() {
		uri, err := resolve()
		if err != nil {
			clip.Fail(err)
			return
		}
		clip.Complete(uri)
	}()
	return clip
}

// OnRelease sets the function that frees the resolved URI once the clip is
// released. A clip released before it completes is freed as soon as it
// does.
func (c *DeferredClip) OnRelease(release func(uri string)) *DeferredClip {
	c.mu.Lock()
	c.onRelease = release
	c.mu.Unlock()
	return c
}

func (c *DeferredClip) Complete(uri string) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	c.uri = uri
	close(c.done)
	release := c.onRelease
	released := c.released
	c.mu.Unlock()

	if released && release != nil {
		release(uri)
	}
}

func (c *DeferredClip) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return
	}
	c.resolved = true
	c.err = err
	close(c.done)
}

// Release frees the resolved URI. Only the first call has an effect.
func (c *DeferredClip) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	release := c.onRelease
	completed := c.resolved && c.err == nil
	uri := c.uri
	c.mu.Unlock()

	if completed && release != nil {
		release(uri)
	}
}

func (c *DeferredClip) IsResolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Resolve blocks until the clip is completed or failed, or ctx is done.
func (c *DeferredClip) Resolve(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.uri, c.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}
