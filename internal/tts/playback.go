package tts

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// playback tracks the speaking and interrupt state shared by every
// synthesizer backend. The cooldown absorbs repeated interrupt triggers so
// the agent's own playback cannot re-trigger itself.
type playback struct {
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu            sync.Mutex
	speaking      bool
	stop          bool
	lastInterrupt time.Time
}

func newPlayback(cooldown time.Duration, log zerolog.Logger) playback {
	return playback{
		cooldown: cooldown,
		log:      log,
		now:      time.Now,
	}
}

func (p *playback) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speaking = true
	p.stop = false
}

func (p *playback) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speaking = false
	p.stop = false
}

// Speaking reports whether playback is in progress.
func (p *playback) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Interrupt requests that playback stop. Returns false when suppressed by
// the engine-internal cooldown, so callers can tell a real stop from an
// absorbed duplicate trigger.
func (p *playback) Interrupt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastInterrupt) < p.cooldown {
		p.log.Info().Msg("interrupt suppressed, cooldown active")
		return false
	}
	p.stop = true
	p.lastInterrupt = now
	p.log.Info().Msg("speech interrupted")
	return true
}

func (p *playback) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop
}
