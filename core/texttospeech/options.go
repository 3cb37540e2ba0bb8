package texttospeech

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/koscakluka/ema-chat/core/audio"
)

// Synthesizer turns finished reply text into a playable clip. The returned
// clip resolves once synthesis has completed; Synthesize itself never blocks
// on the network.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) audio.Clip
}

type TextToSpeechOptions struct {
	// EncodingInfo is the audio requested from the speech service and written
	// into the resulting clip.
	EncodingInfo audio.EncodingInfo
	// OutputDir is where synthesized clips are stored. Defaults to the OS
	// temporary directory.
	OutputDir string
	// APIKey authenticates against the speech service.
	APIKey string
	// Timeout bounds the synthesis of a single reply.
	Timeout time.Duration
	Logger  *slog.Logger
}

type TextToSpeechOption func(*TextToSpeechOptions)

const DefaultTimeout = 30 * time.Second

func DefaultOptions() TextToSpeechOptions {
	return TextToSpeechOptions{
		EncodingInfo: audio.GetDefaultEncodingInfo(),
		OutputDir:    os.TempDir(),
		Timeout:      DefaultTimeout,
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}

func WithOutputDir(dir string) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if dir != "" {
			o.OutputDir = dir
		}
	}
}

func WithAPIKey(apiKey string) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.APIKey = apiKey }
}

func WithTimeout(timeout time.Duration) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if timeout > 0 {
			o.Timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
