// Package controller runs the conversation mode state machine. It owns the
// turn-taking protocol: waking on the wake phrase, segmenting and
// transcribing user speech, driving the per-turn mood/difficulty/strategy
// pipeline, and letting the user interrupt the agent's own speech.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/audio"
	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/engine"
	"github.com/petalvoice/petal/internal/llm"
	"github.com/petalvoice/petal/internal/metrics"
	"github.com/petalvoice/petal/internal/mood"
	"github.com/petalvoice/petal/internal/reinforce"
	"github.com/petalvoice/petal/internal/session"
	"github.com/petalvoice/petal/internal/store"
	"github.com/petalvoice/petal/internal/strategy"
)

// Mode is the turn-taking state.
type Mode string

const (
	ModeResting   Mode = "resting"
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
)

const (
	welcomeLine = "Hello! I am here to play and learn with you."
	goodbyeLine = "Goodbye! Have a lovely day."

	// Appended to the recorded reply when playback was cut short, so the
	// dialogue engine never believes it said more than the user heard.
	interruptionMarker = "[interrupted by user]"

	// Exchanges kept in the rolling dialogue history.
	maxHistoryTurns = 6

	defaultConcept = "general"
)

// Store is the slice of the persistent store the controller drives.
type Store interface {
	GetOrCreateProfile(userID string) (store.Profile, error)
	GetLearningProgress(userID, concept string) (store.LearningProgress, error)
	RecordEmotionalMetric(userID, concept string, m mood.Mood) error
	RecordRecovery(userID, concept string) error
	ReinforcementPreference(userID string) (string, error)
	SaveReinforcementPreference(userID, style string, totalEvents int) error
}

// Deps are the collaborators the controller orchestrates. Classifier must be
// a separate instance from the segmenter's: barge-in peeking runs
// out-of-band and must not disturb the segmenter's hysteresis state.
type Deps struct {
	Queue       *FrameQueue
	Segmenter   *audio.Segmenter
	Classifier  audio.Classifier
	Transcriber engine.Transcriber
	Dialogue    engine.Dialogue
	Synthesizer engine.Synthesizer
	Store       Store
}

type exchange struct {
	user  string
	agent string
}

// Controller is the top-level orchestrator. Single-owner: all state except
// the mode flag is touched only by the control loop goroutine.
type Controller struct {
	cfg config.Config
	log zerolog.Logger
	now func() time.Time

	queue *FrameQueue
	seg   *audio.Segmenter
	vad   audio.Classifier

	asr   engine.Transcriber
	dlg   engine.Dialogue
	tts   engine.Synthesizer
	store Store

	est      *mood.Estimator
	sess     *session.State
	selector *strategy.Selector
	adapter  *reinforce.Adapter

	modeMu sync.Mutex
	mode   Mode

	history       []exchange
	lastStyle     string
	lastMood      mood.Mood
	lastInterrupt time.Time
}

// New builds a controller in the resting state.
func New(cfg config.Config, deps Deps, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		log:      log.With().Str("component", "controller").Logger(),
		now:      time.Now,
		queue:    deps.Queue,
		seg:      deps.Segmenter,
		vad:      deps.Classifier,
		asr:      deps.Transcriber,
		dlg:      deps.Dialogue,
		tts:      deps.Synthesizer,
		store:    deps.Store,
		mode:     ModeResting,
		lastMood: mood.Neutral,
	}
}

// Mode returns the current turn-taking state.
func (c *Controller) Mode() Mode {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.mode
}

func (c *Controller) setMode(m Mode) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	if m == c.mode {
		return
	}
	c.log.Info().Str("from", string(c.mode)).Str("to", string(m)).Msg("mode transition")
	c.mode = m
}

// Run consumes frames until the shutdown phrase is heard or ctx is
// cancelled. It returns nil on a clean shutdown; in both cases the session's
// reinforcement metrics are persisted first.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().
		Str("wake_phrase", c.cfg.App.WakePhrase).
		Str("shutdown_phrase", c.cfg.App.ShutdownPhrase).
		Msg("resting, waiting for wake phrase")

	for {
		f, ok := c.queue.Pop(ctx)
		if !ok {
			c.endSession()
			return nil
		}

		utt, closed := c.seg.Push(f)
		if !closed {
			continue
		}

		stop := metrics.Timer("transcribe")
		text, err := c.asr.Transcribe(ctx, utt.Samples())
		stop()
		if err != nil {
			metrics.EngineFailures.WithLabelValues("asr").Inc()
			c.log.Warn().Err(err).Msg("transcription failed, dropping utterance")
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if containsPhrase(text, c.cfg.App.ShutdownPhrase) {
			c.log.Info().Msg("shutdown phrase heard")
			c.speakReply(ctx, goodbyeLine, 0.9)
			c.endSession()
			return nil
		}

		switch c.Mode() {
		case ModeResting:
			if containsPhrase(text, c.cfg.App.WakePhrase) {
				c.wake(ctx)
			} else {
				c.log.Debug().Str("heard", text).Msg("ignored while resting")
			}
		case ModeListening:
			c.runTurn(ctx, text, utt)
		}
	}
}

func (c *Controller) wake(ctx context.Context) {
	c.startSession()
	c.setMode(ModeListening)
	c.log.Info().Msg("awake")
	c.speakReply(ctx, welcomeLine, 0.9)
}

func (c *Controller) startSession() {
	c.sess = session.New(c.cfg.Session, c.log)
	c.est = mood.NewEstimator(c.cfg.Mood.ConfidenceThreshold, c.log)
	c.selector = strategy.NewSelector(c.log)
	c.adapter = reinforce.NewAdapter(c.cfg.Reinforce, c.log)
	c.history = nil
	c.lastStyle = ""
	c.lastMood = mood.Neutral

	userID := c.cfg.App.UserID
	if _, err := c.store.GetOrCreateProfile(userID); err != nil {
		c.log.Warn().Err(err).Msg("profile load failed")
	}
	pref, err := c.store.ReinforcementPreference(userID)
	if err != nil {
		c.log.Warn().Err(err).Msg("reinforcement preference load failed")
	}
	c.adapter.SetUser(userID, pref)
	c.log.Info().Str("session", c.sess.ID).Msg("session started")
}

func (c *Controller) endSession() {
	if c.sess == nil || c.adapter == nil {
		return
	}
	_ = c.adapter.Persist(c.store)
	c.log.Info().
		Str("session", c.sess.ID).
		Int("turns", c.sess.TurnCount).
		Msg("session ended")
	c.sess = nil
}

func (c *Controller) concept() string {
	if c.sess != nil && c.sess.Concept != "" {
		return c.sess.Concept
	}
	return defaultConcept
}

// runTurn drives one complete turn: mood, streaks, difficulty gate,
// regulation, reinforcement, strategy, generation, validation, persistence,
// speech.
func (c *Controller) runTurn(ctx context.Context, text string, utt audio.Utterance) {
	if c.sess.Expired() {
		c.log.Info().Str("session", c.sess.ID).Msg("session expired, starting a new one")
		c.endSession()
		c.startSession()
	}
	userID := c.cfg.App.UserID

	stop := metrics.Timer("mood")
	reading := c.est.Analyze(text, utt.Frames, utt.Duration)
	stop()
	if reading.Mood != c.lastMood {
		metrics.MoodTransitions.WithLabelValues(string(reading.Mood)).Inc()
		c.lastMood = reading.Mood
	}

	prevFrustration := c.sess.ConsecutiveFrustration
	c.sess.PreDecision(reading)

	switch {
	case c.sess.ShouldDecreaseDifficulty():
		c.sess.ChangeDifficulty(-1)
		metrics.DifficultyChanges.WithLabelValues("decrease").Inc()
	case c.sess.ShouldIncreaseDifficulty():
		c.sess.ChangeDifficulty(+1)
		metrics.DifficultyChanges.WithLabelValues("increase").Inc()
	}

	reg := session.ComputeRegulation(c.sess)

	stable := reading.Mood == mood.Neutral || reading.Mood == mood.Happy
	if c.lastStyle != "" {
		c.adapter.RecordOutcome(c.lastStyle, stable)
	}
	if prevFrustration >= c.cfg.Session.FrustrationTurns && c.sess.ConsecutiveStability > 0 {
		if err := c.store.RecordRecovery(userID, c.concept()); err != nil {
			c.log.Warn().Err(err).Msg("failed to record recovery")
		}
	}

	style := c.adapter.Style(reg)
	strat := c.selector.Select(reading)

	mastery := -1
	if p, err := c.store.GetLearningProgress(userID, c.concept()); err == nil {
		mastery = p.MasteryLevel
	} else {
		c.log.Warn().Err(err).Msg("learning progress load failed")
	}
	summary := session.BuildSummary(c.sess, mastery, style)

	reply, barged := c.generate(ctx, text, summary, strat, style)
	if barged {
		metrics.BargeInsTotal.Inc()
		c.log.Info().Msg("barge-in during generation, reply discarded")
		return
	}
	validated := ValidateResponse(reply, strat.ResponseLengthLimit)
	if validated != reply {
		c.log.Debug().Msg("reply simplified by validation")
	}

	c.sess.PostUpdate(text, validated)
	if err := c.store.RecordEmotionalMetric(userID, c.concept(), reading.Mood); err != nil {
		c.log.Warn().Err(err).Msg("failed to record emotional metric")
	}
	c.lastStyle = style
	metrics.TurnsTotal.Inc()

	spoken, interrupted := c.speakReply(ctx, validated, strat.TTSSpeed)
	if interrupted {
		metrics.BargeInsTotal.Inc()
		if spoken == "" {
			spoken = interruptionMarker
		} else {
			spoken += " " + interruptionMarker
		}
	}
	c.appendExchange(text, spoken)
}

// generate streams the reply while peeking the frame queue for a sustained
// speech run. A barge-in cancels generation and discards the partial reply;
// an engine failure yields the fixed fallback line, never an error upward.
func (c *Controller) generate(ctx context.Context, userText, summary string, strat strategy.Strategy, style string) (reply string, barged bool) {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var guidance []string
	if strat.PromptAddition != "" {
		guidance = append(guidance, strat.PromptAddition)
	}
	if p := reinforce.StylePrompts[style]; p != "" {
		guidance = append(guidance, p)
	}

	stop := metrics.Timer("generate")
	defer stop()

	chunks, errs := c.dlg.Generate(gctx, engine.GenerateRequest{
		SessionSummary: summary,
		Guidance:       guidance,
		History:        c.historyText(),
		UserText:       userText,
	})

	ticker := time.NewTicker(c.cfg.App.SpeakingPollPeriod)
	defer ticker.Stop()

	var b strings.Builder
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errs; err != nil {
					metrics.EngineFailures.WithLabelValues("dialogue").Inc()
					c.log.Warn().Err(err).Msg("dialogue engine failed, using fallback")
					return llm.Fallback, false
				}
				out := strings.TrimSpace(b.String())
				if out == "" {
					return llm.Fallback, false
				}
				return out, false
			}
			b.WriteString(chunk)
		case <-ticker.C:
			if c.queueHasSpeechRun() {
				cancel()
				return "", true
			}
		case <-ctx.Done():
			return llm.Fallback, false
		}
	}
}

// queueHasSpeechRun peeks the queue for BargeInFrames consecutive speech
// frames without consuming anything: the frames stay queued and become the
// interrupting utterance once the loop resumes listening.
func (c *Controller) queueHasSpeechRun() bool {
	frames := c.queue.Snapshot()
	if len(frames) < c.cfg.App.BargeInFrames {
		return false
	}
	run := 0
	for _, f := range frames {
		if c.isSpeechFrame(f) {
			run++
			if run >= c.cfg.App.BargeInFrames {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func (c *Controller) isSpeechFrame(f audio.Frame) bool {
	if f.RMS() <= c.cfg.Audio.NoiseGateThreshold {
		return false
	}
	ok, err := c.vad.IsSpeech(f)
	return err == nil && ok
}

// speakReply plays the reply sentence by sentence, polling the frame queue
// for a wake-word interruption between polls. It returns the text actually
// spoken and whether playback was interrupted. The segmenter is locked for
// the duration and the queue flushed afterwards, so the agent's own voice
// never becomes an utterance.
func (c *Controller) speakReply(ctx context.Context, text string, speed float64) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	c.setMode(ModeSpeaking)
	c.seg.SetLocked(true)
	defer func() {
		c.seg.SetLocked(false)
		if n := c.queue.Flush(); n > 0 {
			c.log.Debug().Int("frames", n).Msg("flushed capture queue after playback")
		}
		c.setMode(ModeListening)
	}()

	stop := metrics.Timer("synthesize")
	defer stop()

	type speakResult struct {
		completed bool
		err       error
	}

	var spoken []string
	interrupted := false
	spotRun := make([]audio.Frame, 0, c.cfg.App.BargeInFrames)

CHUNKS:
	for _, chunk := range splitSentences(text) {
		done := make(chan speakResult, 1)
		go func(chunk string) {
			completed, err := c.tts.Speak(ctx, chunk, speed)
			done <- speakResult{completed: completed, err: err}
		}(chunk)

		for {
			select {
			case res := <-done:
				if res.err != nil {
					metrics.EngineFailures.WithLabelValues("tts").Inc()
					c.log.Warn().Err(res.err).Msg("synthesis failed mid-reply")
					break CHUNKS
				}
				if !res.completed {
					interrupted = true
					break CHUNKS
				}
				spoken = append(spoken, chunk)
				continue CHUNKS
			case <-time.After(c.cfg.App.SpeakingPollPeriod):
				spotRun = c.pollWakeWord(ctx, spotRun)
			case <-ctx.Done():
				c.tts.Interrupt()
				<-done
				interrupted = true
				break CHUNKS
			}
		}
	}

	return strings.Join(spoken, " "), interrupted
}

// pollWakeWord drains the capture queue while the agent speaks. Frames are
// dropped (listening lock), but a sustained speech run is transcribed as a
// short spotting clip; hearing the wake phrase interrupts playback. While
// the interrupt cooldown is active no detection logic runs at all, so the
// agent's own playback cannot re-trigger it.
func (c *Controller) pollWakeWord(ctx context.Context, run []audio.Frame) []audio.Frame {
	suppressed := c.now().Sub(c.lastInterrupt) < c.cfg.App.InterruptCooldown

	for {
		f, ok := c.queue.TryPop()
		if !ok {
			return run
		}
		if suppressed {
			run = run[:0]
			continue
		}
		if !c.isSpeechFrame(f) {
			run = run[:0]
			continue
		}
		run = append(run, f)
		if len(run) < c.cfg.App.BargeInFrames {
			continue
		}

		clip := audio.Utterance{Frames: run}
		heard, err := c.asr.Transcribe(ctx, clip.Samples())
		run = run[:0]
		if err != nil {
			c.log.Warn().Err(err).Msg("wake-word spotting failed")
			continue
		}
		if !containsPhrase(heard, c.cfg.App.WakePhrase) {
			continue
		}
		if c.tts.Interrupt() {
			c.lastInterrupt = c.now()
			c.log.Info().Msg("wake word heard mid-speech, interrupting")
		}
	}
}

func (c *Controller) appendExchange(user, agent string) {
	c.history = append(c.history, exchange{user: user, agent: agent})
	if len(c.history) > maxHistoryTurns {
		c.history = c.history[len(c.history)-maxHistoryTurns:]
	}
}

func (c *Controller) historyText() string {
	var b strings.Builder
	for _, e := range c.history {
		fmt.Fprintf(&b, "User says: %s\nPetal says: %s\n", e.user, e.agent)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// containsPhrase reports whether phrase appears in text as whole words,
// ignoring case and punctuation.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(
		" "+normalizeWords(text)+" ",
		" "+normalizeWords(phrase)+" ",
	)
}

func normalizeWords(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
