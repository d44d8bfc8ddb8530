package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameDuration != 30*time.Millisecond {
		t.Fatalf("expected default frame duration 30ms, got %s", cfg.Audio.FrameDuration)
	}
	if cfg.Session.DefaultDifficulty != 2 {
		t.Fatalf("expected default difficulty 2, got %d", cfg.Session.DefaultDifficulty)
	}
	if cfg.App.WakePhrase == "" {
		t.Fatalf("expected default wake phrase")
	}
	if cfg.Reinforce.BaselineStyle != "calm_validation" {
		t.Fatalf("expected calm_validation baseline, got %q", cfg.Reinforce.BaselineStyle)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("PETAL_APP_USER_ID", "kid-42")
	defer os.Unsetenv("PETAL_APP_USER_ID")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.UserID != "kid-42" {
		t.Fatalf("expected env override user id, got %q", cfg.App.UserID)
	}
}

func TestValidate_InvertedDifficultyBounds(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Session.MinDifficulty = 5
	cfg.Session.MaxDifficulty = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for inverted bounds")
	}
}

func TestValidate_OutOfRangeThresholds(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg := base
	cfg.Audio.NoiseGateThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for noise gate threshold")
	}

	cfg = base
	cfg.Session.MoodConfidence = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for mood confidence gate")
	}

	cfg = base
	cfg.Store.DecayRate = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero decay rate")
	}

	cfg = base
	cfg.Session.TTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero ttl")
	}

	cfg = base
	cfg.LLM.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown llm provider")
	}

	cfg = base
	cfg.TTS.Provider = "espeak"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown tts provider")
	}
}

func TestAudioDerived(t *testing.T) {
	a := AudioConfig{
		SampleRate:      16000,
		FrameDuration:   30 * time.Millisecond,
		SilenceDuration: 2500 * time.Millisecond,
	}
	if got := a.FrameSize(); got != 480 {
		t.Fatalf("expected 480 samples per frame, got %d", got)
	}
	if got := a.SilenceFrames(); got != 83 {
		t.Fatalf("expected 83 silence frames, got %d", got)
	}
}
