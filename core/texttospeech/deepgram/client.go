package deepgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/texttospeech"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/speak"

// TextToSpeechClient synthesizes whole replies with Deepgram's streaming
// speak API and stores each one as a WAV clip.
type TextToSpeechClient struct {
	options  texttospeech.TextToSpeechOptions
	endpoint string
	logger   *slog.Logger

	voice deepgramVoice
}

var _ texttospeech.Synthesizer = (*TextToSpeechClient)(nil)

func NewTextToSpeechClient(voice deepgramVoice, opts ...texttospeech.TextToSpeechOption) (*TextToSpeechClient, error) {
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	client := &TextToSpeechClient{
		options:  texttospeech.DefaultOptions(),
		endpoint: defaultEndpoint,
		logger:   logger,
		voice:    voice,
	}
	for _, opt := range opts {
		opt(&client.options)
	}
	if client.options.Logger != nil {
		client.logger = client.options.Logger
	}

	if client.options.APIKey == "" {
		apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
		client.options.APIKey = apiKey
	}
	if client.options.EncodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q, only linear16 clips can be stored", client.options.EncodingInfo.Format.Name())
	}

	return client, nil
}

func (c *TextToSpeechClient) Voice() deepgramVoice {
	return c.voice
}

// Synthesize starts speech generation for text in the background and returns
// a clip that resolves to the path of the written WAV file. The file is
// removed when the clip is released.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string) audio.Clip {
	return audio.ResolveInBackground(func() (string, error) {
		return c.synthesizeToFile(ctx, text)
	}).OnRelease(c.removeClip)
}

func (c *TextToSpeechClient) removeClip(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to remove synthesized clip", "path", path, "error", err)
	}
}
