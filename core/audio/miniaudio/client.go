package miniaudio

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gen2brain/malgo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client plays mp3 and wav clips on the default output device. A new device
// is initialised for every clip so each one plays at its own sample rate.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	// only one clip is ever on the device
	playMu sync.Mutex
	closed bool
}

type ClientOption func(*Client)

// WithBaseURL resolves root relative clip URIs such as /voice/a.mp3 against
// the given server address.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		logger: logger,
	}
	for _, opt := range opts {
		opt(client)
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { client.logger.Debug("malgo: " + message) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	return client, nil
}

// Play loads, decodes and plays the clip at uri, returning once the last
// sample has been handed to the device or ctx is cancelled.
func (c *Client) Play(ctx context.Context, uri string) (err error) {
	ctx, span := tracer.Start(ctx, "play clip", trace.WithAttributes(attribute.String("clip.uri", uri)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "clip playback failed")
		}
		span.End()
	}()

	raw, err := c.load(ctx, uri)
	if err != nil {
		return err
	}
	info, pcm, err := decode(raw)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", uri, err)
	}
	span.SetAttributes(
		attribute.Int("clip.sample_rate", info.SampleRate),
		attribute.Int("clip.channels", info.Channels),
		attribute.Int("clip.bytes", len(pcm)),
	)

	c.playMu.Lock()
	defer c.playMu.Unlock()
	if c.closed {
		return fmt.Errorf("client closed")
	}

	device := newPlaybackDevice(info)
	if err := device.Init(c.audioContext); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return err
	}
	defer func() { _ = device.Stop() }()

	device.SendAudio(pcm)
	select {
	case <-device.Drained():
		return nil
	case <-ctx.Done():
		device.ClearBuffer()
		return ctx.Err()
	}
}

func (c *Client) Close() {
	c.playMu.Lock()
	defer c.playMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
