package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-chat/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyText        = errors.New("nothing to synthesize")
	ErrSynthesisTimeout = errors.New("speech synthesis timed out")
)

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	speakMsg = func(text string) websocketMessage { return websocketMessage{Type: "Speak", Text: text} }
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (c *TextToSpeechClient) synthesizeToFile(ctx context.Context, text string) (path string, err error) {
	ctx, span := tracer.Start(ctx, "synthesize speech", trace.WithAttributes(
		attribute.String("tts.voice", string(c.voice)),
		attribute.Int("tts.text_length", len(text)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "speech synthesis failed")
		}
		span.End()
	}()

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.options.Timeout, ErrSynthesisTimeout)
	defer cancel()

	pcm, err := c.stream(ctx, text)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("tts.audio_bytes", len(pcm)))

	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, c.options.EncodingInfo, pcm); err != nil {
		return "", fmt.Errorf("failed to encode clip: %w", err)
	}

	if err := os.MkdirAll(c.options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path = filepath.Join(c.options.OutputDir, "speech-"+uuid.NewString()+".wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write clip: %w", err)
	}
	c.logger.Debug("speech synthesized", "path", path, "bytes", len(pcm))
	return path, nil
}

// stream speaks text in a single Speak/Flush round and collects the audio
// until Deepgram confirms the flush.
func (c *TextToSpeechClient) stream(ctx context.Context, text string) ([]byte, error) {
	conn, err := c.connectWebsocket(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(speakMsg(text)); err != nil {
		return nil, fmt.Errorf("failed to send text to deepgram through websocket: %w", err)
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return nil, fmt.Errorf("failed to flush deepgram buffer through websocket: %w", err)
	}

	var pcm []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			return nil, fmt.Errorf("websocket read error before flush: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			pcm = append(pcm, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := sonic.Unmarshal(msg, &parsedMsg); err != nil {
				c.logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				if err := conn.WriteJSON(closeMsg); err != nil {
					c.logger.Debug("failed to send close message to deepgram websocket", "error", err)
				}
				return pcm, nil
			case "Error":
				return nil, fmt.Errorf("deepgram error: %s", parsedMsg.Description)
			case "Warning":
				c.logger.Warn("deepgram warning", "description", parsedMsg.Description)
			}
		}
	}
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}

	encodingInfo := c.options.EncodingInfo
	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	endpoint.RawQuery = urlValues.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		endpoint.String(),
		http.Header{"Authorization": {"token " + c.options.APIKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
