// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all recognized configuration sections.
type Config struct {
	Audio     AudioConfig     `mapstructure:"audio"`
	Session   SessionConfig   `mapstructure:"session"`
	Mood      MoodConfig      `mapstructure:"mood"`
	Reinforce ReinforceConfig `mapstructure:"reinforcement"`
	Store     StoreConfig     `mapstructure:"store"`
	ASR       ASRConfig       `mapstructure:"asr"`
	LLM       LLMConfig       `mapstructure:"llm"`
	TTS       TTSConfig       `mapstructure:"tts"`
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// AudioConfig configures capture and segmentation.
type AudioConfig struct {
	SampleRate         int           `mapstructure:"sample_rate"`
	FrameDuration      time.Duration `mapstructure:"frame_duration"`
	SilenceDuration    time.Duration `mapstructure:"silence_duration"`
	NoiseGateThreshold float64       `mapstructure:"noise_gate_threshold"`
	QueueSize          int           `mapstructure:"queue_size"`
}

// SessionConfig configures the per-session adaptive state.
type SessionConfig struct {
	MinDifficulty       int           `mapstructure:"min_difficulty"`
	MaxDifficulty       int           `mapstructure:"max_difficulty"`
	DefaultDifficulty   int           `mapstructure:"default_difficulty"`
	FrustrationTurns    int           `mapstructure:"frustration_turns_for_decrease"`
	StabilityTurns      int           `mapstructure:"stability_turns_for_increase"`
	MoodConfidence      float64       `mapstructure:"mood_confidence_for_difficulty"`
	DifficultyLockTurns int           `mapstructure:"difficulty_lock_turns"`
	TTL                 time.Duration `mapstructure:"ttl"`
	MaxStoredText       int           `mapstructure:"max_stored_text"`
}

// MoodConfig configures mood estimation thresholds.
type MoodConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// ReinforceConfig configures reinforcement style adaptation.
type ReinforceConfig struct {
	MinEvents            int     `mapstructure:"min_events"`
	MinStyleUses         int     `mapstructure:"min_style_uses"`
	ImprovementThreshold float64 `mapstructure:"improvement_threshold"`
	BaselineStyle        string  `mapstructure:"baseline_style"`
}

// StoreConfig configures the persistent aggregate store.
type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	DecayRate     float64       `mapstructure:"decay_rate"`
	DecayInterval time.Duration `mapstructure:"decay_interval"`
}

// ASRConfig configures the external speech-to-text engine.
type ASRConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig configures the dialogue engine. Provider selects the backend:
// "ollama" for a local server, "cerebras" for the hosted chat API.
type LLMConfig struct {
	Provider  string        `mapstructure:"provider"`
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TTSConfig configures the speech synthesizer. Provider selects the backend:
// "local" for a local synthesis server, "deepgram" for the hosted speak API.
type TTSConfig struct {
	Provider          string        `mapstructure:"provider"`
	URL               string        `mapstructure:"url"`
	APIKey            string        `mapstructure:"api_key"`
	Voice             string        `mapstructure:"voice"`
	Model             string        `mapstructure:"model"`
	SampleRate        int           `mapstructure:"sample_rate"`
	InterruptCooldown time.Duration `mapstructure:"interrupt_cooldown"`
}

// AppConfig configures turn-taking behavior.
type AppConfig struct {
	UserID             string        `mapstructure:"user_id"`
	WakePhrase         string        `mapstructure:"wake_phrase"`
	ShutdownPhrase     string        `mapstructure:"shutdown_phrase"`
	BargeInFrames      int           `mapstructure:"barge_in_frames"`
	InterruptCooldown  time.Duration `mapstructure:"interrupt_cooldown"`
	SpeakingPollPeriod time.Duration `mapstructure:"speaking_poll_period"`
}

// HTTPConfig configures the caregiver dashboard server.
type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// Load reads the YAML config file (if present) merged with PETAL_* environment
// overrides and returns a validated Config. An empty path falls back to
// config.yaml in the working directory or ./config.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PETAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			// Missing file is fine; defaults plus env cover a full run.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame_duration", "30ms")
	// Slow or paused speech must not get cut off mid-thought.
	v.SetDefault("audio.silence_duration", "2500ms")
	v.SetDefault("audio.noise_gate_threshold", 0.005)
	v.SetDefault("audio.queue_size", 256)

	v.SetDefault("session.min_difficulty", 1)
	v.SetDefault("session.max_difficulty", 5)
	v.SetDefault("session.default_difficulty", 2)
	v.SetDefault("session.frustration_turns_for_decrease", 2)
	v.SetDefault("session.stability_turns_for_increase", 3)
	v.SetDefault("session.mood_confidence_for_difficulty", 0.6)
	v.SetDefault("session.difficulty_lock_turns", 2)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.max_stored_text", 200)

	v.SetDefault("mood.confidence_threshold", 0.3)

	v.SetDefault("reinforcement.min_events", 5)
	v.SetDefault("reinforcement.min_style_uses", 3)
	v.SetDefault("reinforcement.improvement_threshold", 0.15)
	v.SetDefault("reinforcement.baseline_style", "calm_validation")

	v.SetDefault("store.path", "data/petal.db")
	v.SetDefault("store.decay_rate", 0.95)
	v.SetDefault("store.decay_interval", "24h")

	v.SetDefault("asr.url", "ws://127.0.0.1:9090/stream")
	v.SetDefault("asr.timeout", "10s")

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.url", "http://127.0.0.1:11434/api/generate")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "petal-tlm:latest")
	v.SetDefault("llm.max_tokens", 160)
	v.SetDefault("llm.timeout", "20s")

	v.SetDefault("tts.provider", "local")
	v.SetDefault("tts.url", "http://127.0.0.1:5002/api/synthesize")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.voice", "en_US-amy-medium")
	v.SetDefault("tts.model", "aura-2-thalia-en")
	v.SetDefault("tts.sample_rate", 48000)
	v.SetDefault("tts.interrupt_cooldown", "1s")

	v.SetDefault("app.user_id", "default-user")
	v.SetDefault("app.wake_phrase", "petal")
	v.SetDefault("app.shutdown_phrase", "shutdown")
	// 10 frames * 30ms = 300ms of continuous speech before a barge-in counts.
	v.SetDefault("app.barge_in_frames", 10)
	v.SetDefault("app.interrupt_cooldown", "1s")
	v.SetDefault("app.speaking_poll_period", "50ms")

	v.SetDefault("http.address", ":8080")
}

// Validate fails fast on inverted bounds, out-of-range thresholds, and
// non-positive durations.
func (c Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameDuration <= 0 {
		return fmt.Errorf("config: audio.frame_duration must be positive, got %s", c.Audio.FrameDuration)
	}
	if c.Audio.SilenceDuration < c.Audio.FrameDuration {
		return fmt.Errorf("config: audio.silence_duration %s shorter than one frame %s",
			c.Audio.SilenceDuration, c.Audio.FrameDuration)
	}
	if c.Audio.NoiseGateThreshold < 0 || c.Audio.NoiseGateThreshold >= 1 {
		return fmt.Errorf("config: audio.noise_gate_threshold must be in [0,1), got %g", c.Audio.NoiseGateThreshold)
	}
	if c.Audio.QueueSize < 1 {
		return fmt.Errorf("config: audio.queue_size must be positive, got %d", c.Audio.QueueSize)
	}
	if c.Session.MinDifficulty < 1 || c.Session.MaxDifficulty < c.Session.MinDifficulty {
		return fmt.Errorf("config: inverted difficulty bounds [%d,%d]",
			c.Session.MinDifficulty, c.Session.MaxDifficulty)
	}
	if c.Session.DefaultDifficulty < c.Session.MinDifficulty || c.Session.DefaultDifficulty > c.Session.MaxDifficulty {
		return fmt.Errorf("config: default difficulty %d outside [%d,%d]",
			c.Session.DefaultDifficulty, c.Session.MinDifficulty, c.Session.MaxDifficulty)
	}
	if c.Session.MoodConfidence < 0 || c.Session.MoodConfidence > 1 {
		return fmt.Errorf("config: session.mood_confidence_for_difficulty must be in [0,1], got %g",
			c.Session.MoodConfidence)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.MaxStoredText < 1 {
		return fmt.Errorf("config: session.max_stored_text must be positive, got %d", c.Session.MaxStoredText)
	}
	if c.Mood.ConfidenceThreshold < 0 || c.Mood.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: mood.confidence_threshold must be in [0,1], got %g", c.Mood.ConfidenceThreshold)
	}
	if c.Reinforce.MinEvents < 1 || c.Reinforce.MinStyleUses < 1 {
		return fmt.Errorf("config: reinforcement minimum event counts must be positive")
	}
	if c.Reinforce.ImprovementThreshold < 0 || c.Reinforce.ImprovementThreshold > 1 {
		return fmt.Errorf("config: reinforcement.improvement_threshold must be in [0,1], got %g",
			c.Reinforce.ImprovementThreshold)
	}
	if c.Store.DecayRate <= 0 || c.Store.DecayRate > 1 {
		return fmt.Errorf("config: store.decay_rate must be in (0,1], got %g", c.Store.DecayRate)
	}
	if c.Store.DecayInterval <= 0 {
		return fmt.Errorf("config: store.decay_interval must be positive, got %s", c.Store.DecayInterval)
	}
	if c.LLM.Provider != "ollama" && c.LLM.Provider != "cerebras" {
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}
	if c.TTS.Provider != "local" && c.TTS.Provider != "deepgram" {
		return fmt.Errorf("config: unknown tts.provider %q", c.TTS.Provider)
	}
	if c.App.WakePhrase == "" {
		return fmt.Errorf("config: app.wake_phrase must not be empty")
	}
	if c.App.BargeInFrames < 1 {
		return fmt.Errorf("config: app.barge_in_frames must be positive, got %d", c.App.BargeInFrames)
	}
	if c.App.InterruptCooldown < 0 {
		return fmt.Errorf("config: app.interrupt_cooldown must not be negative, got %s", c.App.InterruptCooldown)
	}
	return nil
}

// FrameSize returns the number of samples in one capture frame.
func (a AudioConfig) FrameSize() int {
	return int(float64(a.SampleRate) * a.FrameDuration.Seconds())
}

// SilenceFrames returns how many consecutive silence frames close an utterance.
func (a AudioConfig) SilenceFrames() int {
	return int(a.SilenceDuration / a.FrameDuration)
}
