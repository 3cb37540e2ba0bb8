package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	tea "github.com/charmbracelet/bubbletea"
	chat "github.com/koscakluka/ema-chat/core"
	"github.com/koscakluka/ema-chat/core/audio"
	"github.com/koscakluka/ema-chat/core/audio/miniaudio"
	"github.com/koscakluka/ema-chat/core/frames"
	"github.com/koscakluka/ema-chat/core/markup"
	"github.com/koscakluka/ema-chat/core/store"
	"github.com/koscakluka/ema-chat/core/texttospeech"
	"github.com/koscakluka/ema-chat/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-chat/core/transport"
	"github.com/koscakluka/ema-chat/internal/config"
	"github.com/koscakluka/ema-chat/internal/tui"
)

const renderWidth = 80

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	if cfg.PrintFrameSchema {
		data, err := sonic.ConfigStd.MarshalIndent(frames.Schema(), "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	logger, closeLog, err := newLogger(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runChat(ctx, cfg, logger); err != nil {
		logger.Error("ema-chat failed", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { file.Close() }, nil
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	backend, err := transport.NewClient(cfg.ServerURL,
		transport.WithClipDir(filepath.Join(cfg.StateDir, "clips")),
		transport.WithClipTimeout(cfg.ClipTimeout),
		transport.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	fileStore, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		return err
	}

	renderer, err := markup.ByName(cfg.Markup, renderWidth)
	if err != nil {
		return err
	}

	notifier := tui.NewNotifier()
	opts := []chat.SessionOption{
		chat.WithBackend(backend),
		chat.WithClipFetcher(backend),
		chat.WithStore(fileStore),
		chat.WithMarkupRenderer(renderer),
		chat.WithStateChangeCallback(notifier.Notify),
		chat.WithLogger(logger),
		chat.WithExchangeTimeout(cfg.ExchangeTimeout),
		chat.WithBaseContext(ctx),
	}
	if cfg.Persona != "" {
		opts = append(opts, chat.WithDefaultPersona(cfg.Persona))
	}

	if cfg.Voice {
		player, err := miniaudio.NewClient(
			miniaudio.WithBaseURL(backend.BaseURL()),
			miniaudio.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize audio playback: %w", err)
		}
		defer player.Close()

		queue := audio.NewPlaybackQueue(player,
			audio.WithLogger(logger),
			audio.WithResolveTimeout(resolveTimeout(cfg)),
			audio.WithClipEndedCallback(func(uri string, err error) {
				if err != nil {
					logger.Warn("clip playback failed", "uri", uri, "error", err)
				}
			}),
		)
		queue.Start(ctx)
		defer queue.Stop()
		opts = append(opts, chat.WithAudioQueue(queue))

		if cfg.LocalSpeech {
			synthesizer, err := newSynthesizer(cfg, logger)
			if err != nil {
				return err
			}
			opts = append(opts, chat.WithSynthesizer(synthesizer))
		}
	}

	session := chat.NewSession(opts...)
	defer session.Close()

	program := tea.NewProgram(tui.NewModel(session, session.ResponseLog()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	notifyCtx, cancelNotify := context.WithCancel(ctx)
	defer cancelNotify()
	go notifier.Run(notifyCtx, program)

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ui stopped: %w", err)
	}
	return nil
}

func newSynthesizer(cfg *config.Config, logger *slog.Logger) (texttospeech.Synthesizer, error) {
	voice, ok := deepgram.ParseVoice(cfg.TTSVoice)
	if !ok {
		return nil, fmt.Errorf("unknown tts voice %q", cfg.TTSVoice)
	}

	opts := []texttospeech.TextToSpeechOption{
		texttospeech.WithOutputDir(filepath.Join(cfg.StateDir, "speech")),
		texttospeech.WithTimeout(cfg.ClipTimeout),
		texttospeech.WithLogger(logger),
	}
	if cfg.DeepgramAPIKey != "" {
		opts = append(opts, texttospeech.WithAPIKey(cfg.DeepgramAPIKey))
	}
	client, err := deepgram.NewTextToSpeechClient(voice, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech synthesizer: %w", err)
	}
	return client, nil
}

// resolveTimeout leaves the fetch or synthesis its own deadline before the
// queue gives up on a clip.
func resolveTimeout(cfg *config.Config) time.Duration {
	return cfg.ClipTimeout + 5*time.Second
}
