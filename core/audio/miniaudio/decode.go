package miniaudio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/koscakluka/ema-chat/core/audio"
)

// load fetches the raw bytes of a clip. Absolute http(s) URIs are fetched
// directly and existing local files are read from disk. Other root relative
// paths are placed under the base URL when one is set.
func (c *Client) load(ctx context.Context, uri string) ([]byte, error) {
	location, err := c.resolve(uri)
	if err != nil {
		return nil, err
	}

	if location.Scheme == "http" || location.Scheme == "https" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build clip request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch clip: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch clip: unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}

	data, err := os.ReadFile(location.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip: %w", err)
	}
	return data, nil
}

func (c *Client) resolve(uri string) (*url.URL, error) {
	location, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid clip uri %q: %w", uri, err)
	}
	switch location.Scheme {
	case "http", "https", "file":
		return location, nil
	case "":
		if c.baseURL != "" && strings.HasPrefix(uri, "/") && !isLocalFile(location.Path) {
			base, err := url.Parse(c.baseURL)
			if err != nil {
				return nil, fmt.Errorf("invalid base url %q: %w", c.baseURL, err)
			}
			resolved := base.JoinPath(location.Path)
			resolved.RawQuery = location.RawQuery
			return resolved, nil
		}
		return &url.URL{Path: uri}, nil
	}
	return nil, fmt.Errorf("unsupported clip scheme %q", location.Scheme)
}

func isLocalFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

var errUnknownContainer = errors.New("unrecognised audio container")

// decode turns a wav or mp3 file into 16 bit PCM.
func decode(data []byte) (audio.EncodingInfo, []byte, error) {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		info, samples, err := audio.DecodeWAV(data)
		if err != nil {
			return audio.EncodingInfo{}, nil, err
		}
		return audio.ToLinear16(info, samples)
	}
	if !looksLikeMP3(data) {
		return audio.EncodingInfo{}, nil, errUnknownContainer
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.EncodingInfo{}, nil, err
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return audio.EncodingInfo{}, nil, err
	}
	// go-mp3 always produces interleaved stereo
	return audio.EncodingInfo{
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		Format:     audio.EncodingLinear16,
	}, pcm, nil
}

func looksLikeMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	// MPEG frame sync
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
