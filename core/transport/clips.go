package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-chat/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultClipTimeout bounds a single clip download.
const DefaultClipTimeout = 30 * time.Second

var ErrClipTimeout = errors.New("clip download timed out")

// FetchClip starts downloading the clip at uri, relative to the server, and
// returns a handle that resolves to the local file once the download is
// complete. The file is removed when the clip is released. Without a clip
// directory the server URL itself is returned.
func (c *Client) FetchClip(ctx context.Context, uri string) audio.Clip {
	if c.clipDir == "" {
		return audio.ReadyClip(c.resolveClip(uri))
	}
	return audio.ResolveInBackground(func() (string, error) {
		return c.download(ctx, uri)
	}).OnRelease(c.removeClip)
}

// resolveClip places server relative clip paths under the server URL, path
// prefix included, the same way query endpoints are built.
func (c *Client) resolveClip(uri string) string {
	ref, err := url.Parse(uri)
	if err != nil || ref.IsAbs() {
		return uri
	}
	resolved := c.baseURL.JoinPath(ref.Path)
	resolved.RawQuery = ref.RawQuery
	return resolved.String()
}

func (c *Client) removeClip(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to remove clip", "path", path, "error", err)
	}
}

func (c *Client) download(ctx context.Context, uri string) (target string, err error) {
	ctx, span := tracer.Start(ctx, "download clip", trace.WithAttributes(attribute.String("clip.uri", uri)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "clip download failed")
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeoutCause(ctx, c.clipTimeout, ErrClipTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveClip(uri), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		return "", fmt.Errorf("failed to fetch clip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	if err := os.MkdirAll(c.clipDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create clip directory: %w", err)
	}
	target = filepath.Join(c.clipDir, uuid.NewString()+path.Ext(req.URL.Path))
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create clip file: %w", err)
	}
	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		return "", fmt.Errorf("failed to store clip: %w", err)
	}

	span.SetAttributes(attribute.Int64("clip.bytes", written))
	c.logger.Debug("clip downloaded", "uri", uri, "path", target)
	return target, nil
}
