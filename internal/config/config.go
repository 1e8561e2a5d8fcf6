// Package config loads askcam settings: defaults, then an optional YAML file
// named by ASKCAM_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Audio struct {
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	ChunkSize    int    `yaml:"chunk_size"`
	RingCapacity int    `yaml:"ring_capacity"`
	ChunkQueue   int    `yaml:"chunk_queue"`
	Source       string `yaml:"source"` // portaudio, opus, wav or none
	WAVFile      string `yaml:"wav_file"`
	WAVLoop      bool   `yaml:"wav_loop"`
	Output       string `yaml:"output"` // portaudio, command or none
	PlayerCmd    string `yaml:"player_cmd"`
}

type Hotword struct {
	Window       time.Duration `yaml:"window"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Phrases      []string      `yaml:"phrases"`
}

type Question struct {
	SilenceThreshold float64       `yaml:"silence_threshold"`
	SilenceDuration  time.Duration `yaml:"silence_duration"`
	MaxDuration      time.Duration `yaml:"max_duration"`
}

type Recognizer struct {
	Backend    string        `yaml:"backend"` // http or whispercpp
	WhisperURL string        `yaml:"whisper_url"`
	ModelPath  string        `yaml:"model_path"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout"`
}

type TTS struct {
	URL       string        `yaml:"url"`
	AuthToken string        `yaml:"auth_token"`
	Timeout   time.Duration `yaml:"timeout"`
}

type LLM struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	FallbackModel string        `yaml:"fallback_model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxImageSide  int           `yaml:"max_image_side"`
}

type Camera struct {
	SnapshotURL      string        `yaml:"snapshot_url"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	MaxFrameBytes    int           `yaml:"max_frame_bytes"`
}

type Status struct {
	Addr         string        `yaml:"addr"`
	PushInterval time.Duration `yaml:"push_interval"`
	MCPEnabled   bool          `yaml:"mcp_enabled"`
}

type Archive struct {
	Enabled       bool          `yaml:"enabled"`
	Dir           string        `yaml:"dir"`
	Retention     time.Duration `yaml:"retention"`
	CleanInterval time.Duration `yaml:"clean_interval"`
	MaxFiles      int           `yaml:"max_files"`
	Locking       bool          `yaml:"locking"`
}

type Discord struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Config is the full runtime configuration.
type Config struct {
	Audio      Audio      `yaml:"audio"`
	Hotword    Hotword    `yaml:"hotword"`
	Question   Question   `yaml:"question"`
	Recognizer Recognizer `yaml:"recognizer"`
	TTS        TTS        `yaml:"tts"`
	LLM        LLM        `yaml:"llm"`
	Camera     Camera     `yaml:"camera"`
	Status     Status     `yaml:"status"`
	Archive    Archive    `yaml:"archive"`
	Discord    Discord    `yaml:"discord"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Audio: Audio{
			SampleRate:   16000,
			Channels:     1,
			ChunkSize:    1024,
			RingCapacity: 32000,
			ChunkQueue:   256,
			Source:       "portaudio",
			Output:       "command",
			PlayerCmd:    "aplay -q -",
		},
		Hotword: Hotword{
			Window:       time.Second,
			PollInterval: 100 * time.Millisecond,
			Phrases:      []string{"hi", "hey"},
		},
		Question: Question{
			SilenceThreshold: 0.01,
			SilenceDuration:  1500 * time.Millisecond,
			MaxDuration:      5 * time.Second,
		},
		Recognizer: Recognizer{
			Backend:  "http",
			Language: "en",
			Timeout:  30 * time.Second,
		},
		TTS: TTS{Timeout: 30 * time.Second},
		LLM: LLM{
			BaseURL:      "https://api.openai.com/v1/",
			Model:        "gpt-4o-mini",
			MaxTokens:    200,
			Timeout:      60 * time.Second,
			MaxImageSide: 500,
		},
		Camera: Camera{
			SnapshotInterval: 200 * time.Millisecond,
			MaxFrameBytes:    8 << 20,
		},
		Status: Status{
			Addr:         ":8080",
			PushInterval: 500 * time.Millisecond,
			MCPEnabled:   true,
		},
		Archive: Archive{
			Dir:           "./saved_audio",
			Retention:     24 * time.Hour,
			CleanInterval: time.Minute,
			MaxFiles:      1000,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// ASKCAM_CONFIG (if set) and the environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("ASKCAM_CONFIG")); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeYAML(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader overlays YAML from r onto the defaults and validates the
// result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate reports every incoherent setting at once.
func (c *Config) Validate() error {
	var errs []error
	a := c.Audio
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", a.SampleRate))
	}
	if a.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", a.Channels))
	}
	if a.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size must be positive, got %d", a.ChunkSize))
	}
	if a.SampleRate > 0 && c.Hotword.Window > 0 && a.RingCapacity < c.WindowSamples() {
		errs = append(errs, fmt.Errorf("audio.ring_capacity %d is smaller than the hotword window (%d samples)", a.RingCapacity, c.WindowSamples()))
	}
	switch a.Source {
	case "portaudio", "opus", "none":
	case "wav":
		if a.WAVFile == "" {
			errs = append(errs, errors.New("audio.wav_file is required when audio.source is wav"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: portaudio, opus, wav, none", a.Source))
	}
	switch a.Output {
	case "portaudio", "none":
	case "command":
		if strings.TrimSpace(a.PlayerCmd) == "" {
			errs = append(errs, errors.New("audio.player_cmd is required when audio.output is command"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.output %q is invalid; valid values: portaudio, command, none", a.Output))
	}
	if c.Hotword.Window <= 0 {
		errs = append(errs, errors.New("hotword.window must be positive"))
	}
	if c.Hotword.PollInterval <= 0 {
		errs = append(errs, errors.New("hotword.poll_interval must be positive"))
	}
	if len(c.Hotword.Phrases) == 0 {
		errs = append(errs, errors.New("hotword.phrases must not be empty"))
	}
	q := c.Question
	if q.SilenceThreshold < 0 {
		errs = append(errs, errors.New("question.silence_threshold must not be negative"))
	}
	if q.SilenceDuration <= 0 || q.MaxDuration <= 0 {
		errs = append(errs, errors.New("question.silence_duration and question.max_duration must be positive"))
	}
	switch c.Recognizer.Backend {
	case "http":
		if c.Recognizer.WhisperURL == "" {
			errs = append(errs, errors.New("recognizer.whisper_url is required for the http backend"))
		}
	case "whispercpp":
		if c.Recognizer.ModelPath == "" {
			errs = append(errs, errors.New("recognizer.model_path is required for the whispercpp backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("recognizer.backend %q is invalid; valid values: http, whispercpp", c.Recognizer.Backend))
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		errs = append(errs, errors.New("archive.dir is required when archiving is enabled"))
	}
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		errs = append(errs, errors.New("discord.token and discord.channel_id must be set together"))
	}
	return errors.Join(errs...)
}

// WindowSamples is the hotword window expressed in mono samples.
func (c *Config) WindowSamples() int {
	return int(c.Hotword.Window.Seconds() * float64(c.Audio.SampleRate))
}

// ChunkDuration is the length of one hardware period.
func (c *Config) ChunkDuration() time.Duration {
	if c.Audio.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Audio.ChunkSize) * time.Second / time.Duration(c.Audio.SampleRate)
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides cfg from environment variables; unset variables leave
// the value alone and malformed ones are reported together.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.integer("AUDIO_SAMPLE_RATE", &cfg.Audio.SampleRate)
	e.integer("AUDIO_CHANNELS", &cfg.Audio.Channels)
	e.integer("AUDIO_CHUNK_SIZE", &cfg.Audio.ChunkSize)
	e.integer("AUDIO_RING_CAPACITY", &cfg.Audio.RingCapacity)
	e.integer("AUDIO_CHUNK_QUEUE", &cfg.Audio.ChunkQueue)
	e.str("AUDIO_SOURCE", &cfg.Audio.Source)
	e.str("AUDIO_WAV_FILE", &cfg.Audio.WAVFile)
	e.boolean("AUDIO_WAV_LOOP", &cfg.Audio.WAVLoop)
	e.str("AUDIO_OUTPUT", &cfg.Audio.Output)
	e.str("AUDIO_PLAYER_CMD", &cfg.Audio.PlayerCmd)

	e.duration("HOTWORD_WINDOW", &cfg.Hotword.Window)
	e.duration("HOTWORD_POLL_INTERVAL", &cfg.Hotword.PollInterval)
	e.list("WAKE_PHRASES", &cfg.Hotword.Phrases)

	e.float("SILENCE_THRESHOLD", &cfg.Question.SilenceThreshold)
	e.duration("SILENCE_DURATION", &cfg.Question.SilenceDuration)
	e.duration("MAX_QUESTION_DURATION", &cfg.Question.MaxDuration)

	e.str("STT_BACKEND", &cfg.Recognizer.Backend)
	e.str("WHISPER_URL", &cfg.Recognizer.WhisperURL)
	e.str("WHISPER_MODEL_PATH", &cfg.Recognizer.ModelPath)
	e.str("STT_LANGUAGE", &cfg.Recognizer.Language)
	e.millis("WHISPER_TIMEOUT_MS", &cfg.Recognizer.Timeout)

	e.str("TTS_URL", &cfg.TTS.URL)
	e.str("TTS_AUTH_TOKEN", &cfg.TTS.AuthToken)
	e.millis("TTS_TIMEOUT_MS", &cfg.TTS.Timeout)

	e.str("OPENAI_BASE_URL", &cfg.LLM.BaseURL)
	e.str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	e.str("OPENAI_MODEL", &cfg.LLM.Model)
	e.str("OPENAI_FALLBACK_MODEL", &cfg.LLM.FallbackModel)
	e.integer("LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	e.millis("LLM_TIMEOUT_MS", &cfg.LLM.Timeout)
	e.integer("LLM_MAX_IMAGE_SIDE", &cfg.LLM.MaxImageSide)

	e.str("CAMERA_SNAPSHOT_URL", &cfg.Camera.SnapshotURL)
	e.duration("CAMERA_SNAPSHOT_INTERVAL", &cfg.Camera.SnapshotInterval)
	e.integer("CAMERA_MAX_FRAME_BYTES", &cfg.Camera.MaxFrameBytes)

	e.str("STATUS_ADDR", &cfg.Status.Addr)
	e.duration("STATUS_PUSH_INTERVAL", &cfg.Status.PushInterval)
	e.boolean("MCP_ENABLED", &cfg.Status.MCPEnabled)

	e.boolean("SAVE_AUDIO_ENABLED", &cfg.Archive.Enabled)
	e.str("SAVE_AUDIO_DIR", &cfg.Archive.Dir)
	e.duration("SAVE_AUDIO_RETENTION", &cfg.Archive.Retention)
	e.duration("SAVE_AUDIO_CLEAN_INTERVAL", &cfg.Archive.CleanInterval)
	e.integer("SAVE_AUDIO_MAX_FILES", &cfg.Archive.MaxFiles)
	e.boolean("SIDECAR_LOCKING", &cfg.Archive.Locking)

	e.str("DISCORD_BOT_TOKEN", &cfg.Discord.Token)
	e.str("DISCORD_CHANNEL_ID", &cfg.Discord.ChannelID)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		}
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) millis(key string, dst *time.Duration) {
	var ms int
	if _, ok := e.get(key); !ok {
		return
	}
	before := len(e.errs)
	e.integer(key, &ms)
	if len(e.errs) == before {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

// list splits a comma-separated value into lower-cased, trimmed entries.
func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToLower(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
