// Package reinforce adapts the praise/encouragement style from aggregated
// session outcomes. It never reacts to a single event and changes style at
// most once per session.
package reinforce

import (
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/session"
)

// Reinforcement styles.
const (
	PraiseBased          = "praise_based"
	AchievementBased     = "achievement_based"
	CalmValidation       = "calm_validation"
	PlayfulEncouragement = "playful_encouragement"
)

// AllStyles lists the recognized styles in evaluation order.
var AllStyles = []string{PraiseBased, AchievementBased, CalmValidation, PlayfulEncouragement}

// StylePrompts are the per-style additions injected into the dialogue
// context, never spoken aloud.
var StylePrompts = map[string]string{
	PraiseBased: "Use warm praise when the child succeeds. " +
		"Example: 'Great job! You did it!' Keep praise genuine and calm.",
	AchievementBased: "Acknowledge specific achievements. " +
		"Example: 'You got that right! You are getting better at this.' " +
		"Focus on observable progress, not personality.",
	CalmValidation: "Use calm, steady validation. " +
		"Example: 'You are doing well. Let us keep going.' " +
		"Minimal excitement, maximum steadiness.",
	PlayfulEncouragement: "Use gentle, playful encouragement. " +
		"Example: 'That was fun! Want to try one more?' " +
		"Keep energy moderate, never hyperactive.",
}

func validStyle(style string) bool {
	_, ok := StylePrompts[style]
	return ok
}

// Metrics aggregates outcomes for one style within a session.
type Metrics struct {
	Style        string
	SuccessCount int
	TotalCount   int
}

// SuccessRate returns successes over uses, 0 for an unused style.
func (m Metrics) SuccessRate() float64 {
	if m.TotalCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TotalCount)
}

// Persister stores the session's winning style. Implemented by the
// persistent store.
type Persister interface {
	SaveReinforcementPreference(userID, style string, totalEvents int) error
}

// Adapter tracks per-style outcomes and adapts the active style once enough
// evidence accumulates. Owned by the control loop.
type Adapter struct {
	cfg config.ReinforceConfig
	log zerolog.Logger

	userID  string
	metrics map[string]*Metrics

	current string
	changed bool
	locked  bool
}

// NewAdapter builds an adapter starting from the configured baseline style
// (calm validation when the configured value is unrecognized).
func NewAdapter(cfg config.ReinforceConfig, log zerolog.Logger) *Adapter {
	baseline := cfg.BaselineStyle
	if !validStyle(baseline) {
		baseline = CalmValidation
	}
	m := make(map[string]*Metrics, len(AllStyles))
	for _, s := range AllStyles {
		m[s] = &Metrics{Style: s}
	}
	return &Adapter{
		cfg:     cfg,
		log:     log.With().Str("component", "reinforce").Logger(),
		metrics: m,
		current: baseline,
	}
}

// SetUser sets the active user and, when the stored preference is a
// recognized style, adopts it as the starting style.
func (a *Adapter) SetUser(userID, preferredStyle string) {
	a.userID = userID
	if validStyle(preferredStyle) {
		a.current = preferredStyle
	}
	a.log.Info().Str("user", userID).Str("baseline", a.current).Msg("reinforcement user set")
}

// Style returns the active style, adapting it at most once per session when
// the evidence threshold is met.
func (a *Adapter) Style(reg session.Regulation) string {
	if a.locked {
		return a.current
	}

	if a.TotalEvents() >= a.cfg.MinEvents && !a.changed {
		if best := a.findBestStyle(); best != "" && best != a.current {
			old := a.current
			a.current = best
			a.changed = true
			a.locked = true
			a.log.Info().
				Str("from", old).
				Str("to", best).
				Int("events", a.TotalEvents()).
				Msg("reinforcement style adapted")
		}
	}
	return a.current
}

// Prompt returns the dialogue guidance for the active style.
func (a *Adapter) Prompt() string {
	return StylePrompts[a.current]
}

// RecordOutcome records one reinforcement event: which style was in effect
// and whether the child's following turn was stable. Unknown styles are
// ignored.
func (a *Adapter) RecordOutcome(style string, stable bool) {
	m, ok := a.metrics[style]
	if !ok {
		return
	}
	m.TotalCount++
	if stable {
		m.SuccessCount++
	}
	a.log.Debug().
		Str("style", style).
		Int("success", m.SuccessCount).
		Int("total", m.TotalCount).
		Msg("reinforcement outcome")
}

// TotalEvents returns the event count across all styles this session.
func (a *Adapter) TotalEvents() int {
	total := 0
	for _, m := range a.metrics {
		total += m.TotalCount
	}
	return total
}

// findBestStyle picks the highest success rate among styles with enough
// uses, requiring a meaningful improvement over the incumbent.
func (a *Adapter) findBestStyle() string {
	var best *Metrics
	for _, s := range AllStyles {
		m := a.metrics[s]
		if m.TotalCount < a.cfg.MinStyleUses {
			continue
		}
		if best == nil || m.SuccessRate() > best.SuccessRate() {
			best = m
		}
	}
	if best == nil {
		return ""
	}

	current := a.metrics[a.current]
	if current.TotalCount >= a.cfg.MinStyleUses {
		if best.SuccessRate()-current.SuccessRate() < a.cfg.ImprovementThreshold {
			return ""
		}
	}
	return best.Style
}

// Persist writes the session's winning style and total event count. Called
// once at session end, never mid-session.
func (a *Adapter) Persist(p Persister) error {
	if p == nil || a.userID == "" {
		return nil
	}
	if err := p.SaveReinforcementPreference(a.userID, a.current, a.TotalEvents()); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist reinforcement metrics")
		return err
	}
	a.log.Info().Str("user", a.userID).Str("style", a.current).Msg("reinforcement metrics persisted")
	return nil
}
