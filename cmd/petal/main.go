// Command petal runs the voice companion core: it reads microphone PCM from
// stdin, writes synthesized speech PCM to stdout, and serves the caregiver
// dashboard over HTTP. Pipe it between a recorder and a player, e.g.
//
//	arecord -f S16_LE -r 16000 -c 1 | petal | aplay -f S16_LE -r 16000 -c 1
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/asr"
	"github.com/petalvoice/petal/internal/audio"
	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/controller"
	"github.com/petalvoice/petal/internal/engine"
	"github.com/petalvoice/petal/internal/httpserver"
	"github.com/petalvoice/petal/internal/llm"
	"github.com/petalvoice/petal/internal/store"
	"github.com/petalvoice/petal/internal/tts"
)

type writerSink struct {
	w io.Writer
}

func (s writerSink) WritePCM(pcm []byte) error {
	_, err := s.w.Write(pcm)
	return err
}

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("PETAL_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	st, err := store.Open(cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	queue := controller.NewFrameQueue(cfg.Audio.QueueSize)
	seg := audio.NewSegmenter(audio.SegmenterConfig{
		NoiseGateThreshold: cfg.Audio.NoiseGateThreshold,
		FrameDuration:      cfg.Audio.FrameDuration,
		SilenceFrames:      cfg.Audio.SilenceFrames(),
	}, audio.NewEnergyVAD(cfg.Audio.NoiseGateThreshold), log)

	transcriber := asr.NewClient(cfg.ASR, log)
	defer transcriber.Close()

	var dialogue engine.Dialogue
	if cfg.LLM.Provider == "cerebras" {
		dialogue = llm.NewCerebrasClient(cfg.LLM, log)
	} else {
		dialogue = llm.NewClient(cfg.LLM, log)
	}

	var synthesizer engine.Synthesizer
	if cfg.TTS.Provider == "deepgram" {
		synthesizer = tts.NewCloudEngine(cfg.TTS, writerSink{w: os.Stdout}, log)
	} else {
		synthesizer = tts.NewEngine(cfg.TTS, writerSink{w: os.Stdout}, log)
	}

	ctrl := controller.New(cfg, controller.Deps{
		Queue:       queue,
		Segmenter:   seg,
		Classifier:  audio.NewEnergyVAD(cfg.Audio.NoiseGateThreshold),
		Transcriber: transcriber,
		Dialogue:    dialogue,
		Synthesizer: synthesizer,
		Store:       st,
	}, log)

	srv := httpserver.New(cfg.HTTP, st, func() string { return string(ctrl.Mode()) }, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	// Capture ends at stdin EOF; that also ends the conversation.
	go func() {
		capture := audio.NewCapture(os.Stdin, cfg.Audio.FrameSize(), log)
		if err := capture.Run(ctx, queue.Push); err != nil {
			log.Error().Err(err).Msg("capture failed")
		}
		cancel()
	}()

	if err := ctrl.Run(ctx); err != nil {
		log.Error().Err(err).Msg("controller stopped with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("stopped")
}
