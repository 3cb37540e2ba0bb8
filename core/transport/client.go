package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/koscakluka/ema-chat/core/conversations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

// QueryRequest is the body of a query. History carries the full
// conversation including the message being asked.
type QueryRequest struct {
	Query   string                `json:"query"`
	History conversations.History `json:"history"`
	Persona string                `json:"persona"`
	Context string                `json:"context"`
}

// Client talks to the chat server over HTTP.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	clipDir     string
	clipTimeout time.Duration
	logger      *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClipDir sets where downloaded voice clips are stored.
func WithClipDir(dir string) ClientOption {
	return func(c *Client) {
		if dir != "" {
			c.clipDir = dir
		}
	}
}

// WithClipTimeout bounds each clip download. A download taking longer fails
// with ErrClipTimeout.
func WithClipTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.clipTimeout = timeout
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

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	client := &Client{
		baseURL: parsed,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		clipTimeout: DefaultClipTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

// Query posts the request and returns the response body, which is the reply
// frame stream. The caller owns the returned body.
func (c *Client) Query(ctx context.Context, request QueryRequest) (_ io.ReadCloser, err error) {
	ctx, span := tracer.Start(ctx, "query", trace.WithAttributes(
		attribute.String("query.persona", request.Persona),
		attribute.Int("query.history_length", len(request.History)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query failed")
		}
		span.End()
	}()

	if request.History == nil {
		request.History = conversations.History{}
	}
	body, err := sonic.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/query"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send query: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(snippet)))
	}

	return resp.Body, nil
}

// Personas lists the persona identifiers the server offers.
func (c *Client) Personas(ctx context.Context) (personas []string, err error) {
	ctx, span := tracer.Start(ctx, "list personas")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "listing personas failed")
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/personas"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch personas: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas: %w", err)
	}
	if err := sonic.Unmarshal(data, &personas); err != nil {
		return nil, fmt.Errorf("failed to decode personas: %w", err)
	}
	return personas, nil
}
