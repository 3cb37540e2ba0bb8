// Package config loads ema-chat settings.
//
// Values are layered, later sources overriding earlier ones: built-in
// defaults, an optional YAML file (--config or EMA_CONFIG), the environment
// (including a .env file in the working directory) and finally command line
// flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// ServerURL is the chat server exposing /query, /personas and /voice.
	ServerURL string `yaml:"server_url" env:"EMA_SERVER_URL"`
	// Persona used until one is picked and stored.
	Persona string `yaml:"persona" env:"EMA_PERSONA"`
	// StateDir holds the persisted conversation and downloaded clips.
	StateDir        string        `yaml:"state_dir" env:"EMA_STATE_DIR"`
	ExchangeTimeout time.Duration `yaml:"exchange_timeout" env:"EMA_EXCHANGE_TIMEOUT"`
	// ClipTimeout bounds downloading or synthesizing a single voice clip.
	ClipTimeout time.Duration `yaml:"clip_timeout" env:"EMA_CLIP_TIMEOUT"`

	// Voice enables audio playback of replies.
	Voice bool `yaml:"voice" env:"EMA_VOICE"`
	// LocalSpeech synthesizes replies the server sent no clip for.
	LocalSpeech    bool   `yaml:"local_speech" env:"EMA_LOCAL_SPEECH"`
	TTSVoice       string `yaml:"tts_voice" env:"EMA_TTS_VOICE"`
	DeepgramAPIKey string `yaml:"-" env:"DEEPGRAM_API_KEY"`

	// Markup is one of terminal, html or raw.
	Markup  string `yaml:"markup" env:"EMA_MARKUP"`
	LogFile string `yaml:"log_file" env:"EMA_LOG_FILE"`

	// PrintFrameSchema prints the reply frame JSON schema and exits.
	PrintFrameSchema bool `yaml:"-"`
}

func Default() *Config {
	return &Config{
		ServerURL:       "http://localhost:5000",
		StateDir:        defaultStateDir(),
		ExchangeTimeout: 2 * time.Minute,
		ClipTimeout:     30 * time.Second,
		Voice:           true,
		TTSVoice:        "aura-2-thalia-en",
		Markup:          "terminal",
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ema-chat")
	}
	return ".ema-chat"
}

// Load builds the configuration from args, which exclude the program name.
func Load(args []string, stderr io.Writer) (*Config, error) {
	flagSet := pflag.NewFlagSet("ema-chat", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	configPath := flagSet.String("config", os.Getenv("EMA_CONFIG"), "path to a YAML config file")
	overrides := Config{}
	flagSet.StringVar(&overrides.ServerURL, "server", "", "chat server URL; /query, /personas and /voice are served under its path")
	flagSet.StringVar(&overrides.Persona, "persona", "", "persona to talk to when none is stored")
	flagSet.StringVar(&overrides.StateDir, "state-dir", "", "directory for persisted state")
	flagSet.DurationVar(&overrides.ExchangeTimeout, "timeout", 0, "maximum duration of a single exchange")
	flagSet.DurationVar(&overrides.ClipTimeout, "clip-timeout", 0, "maximum time to fetch or synthesize a voice clip")
	flagSet.BoolVar(&overrides.Voice, "voice", true, "play voice clips")
	flagSet.BoolVar(&overrides.LocalSpeech, "local-speech", false, "synthesize replies without a clip using Deepgram")
	flagSet.StringVar(&overrides.TTSVoice, "tts-voice", "", "Deepgram voice model for local speech")
	flagSet.StringVar(&overrides.Markup, "markup", "", "reply rendering: terminal, html or raw")
	flagSet.StringVar(&overrides.LogFile, "log-file", "", "write logs to this file")
	flagSet.BoolVar(&overrides.PrintFrameSchema, "print-frame-schema", false, "print the reply frame JSON schema and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyFlags(flagSet, &overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyFlags(flagSet *pflag.FlagSet, overrides *Config) {
	if flagSet.Changed("server") {
		c.ServerURL = overrides.ServerURL
	}
	if flagSet.Changed("persona") {
		c.Persona = overrides.Persona
	}
	if flagSet.Changed("state-dir") {
		c.StateDir = overrides.StateDir
	}
	if flagSet.Changed("timeout") {
		c.ExchangeTimeout = overrides.ExchangeTimeout
	}
	if flagSet.Changed("clip-timeout") {
		c.ClipTimeout = overrides.ClipTimeout
	}
	if flagSet.Changed("voice") {
		c.Voice = overrides.Voice
	}
	if flagSet.Changed("local-speech") {
		c.LocalSpeech = overrides.LocalSpeech
	}
	if flagSet.Changed("tts-voice") {
		c.TTSVoice = overrides.TTSVoice
	}
	if flagSet.Changed("markup") {
		c.Markup = overrides.Markup
	}
	if flagSet.Changed("log-file") {
		c.LogFile = overrides.LogFile
	}
	c.PrintFrameSchema = overrides.PrintFrameSchema
}

func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server url must be set"))
	}
	if c.ExchangeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("exchange timeout must be positive, got %s", c.ExchangeTimeout))
	}
	if c.ClipTimeout <= 0 {
		errs = append(errs, fmt.Errorf("clip timeout must be positive, got %s", c.ClipTimeout))
	}
	switch c.Markup {
	case "terminal", "html", "raw":
	default:
		errs = append(errs, fmt.Errorf("unknown markup mode %q", c.Markup))
	}
	if c.LocalSpeech && c.DeepgramAPIKey == "" {
		errs = append(errs, errors.New("local speech requires DEEPGRAM_API_KEY"))
	}
	return errors.Join(errs...)
}
