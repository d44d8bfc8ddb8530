package reinforce

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/session"
)

func testReinforceCfg() config.ReinforceConfig {
	return config.ReinforceConfig{
		MinEvents:            5,
		MinStyleUses:         3,
		ImprovementThreshold: 0.15,
		BaselineStyle:        CalmValidation,
	}
}

func newTestAdapter() *Adapter {
	a := NewAdapter(testReinforceCfg(), zerolog.Nop())
	a.SetUser("user-1", "")
	return a
}

type fakePersister struct {
	userID string
	style  string
	events int
	err    error
	calls  int
}

func (f *fakePersister) SaveReinforcementPreference(userID, style string, totalEvents int) error {
	f.calls++
	f.userID, f.style, f.events = userID, style, totalEvents
	return f.err
}

func TestStyle_NoChangeBelowMinEvents(t *testing.T) {
	a := newTestAdapter()
	for i := 0; i < 4; i++ {
		a.RecordOutcome(PraiseBased, true)
	}
	assert.Equal(t, CalmValidation, a.Style(session.Regulation{}))
}

func TestStyle_AdaptsToClearlyBetterStyle(t *testing.T) {
	a := newTestAdapter()
	// Praise succeeded every time; the calm baseline did not.
	for i := 0; i < 3; i++ {
		a.RecordOutcome(PraiseBased, true)
	}
	for i := 0; i < 3; i++ {
		a.RecordOutcome(CalmValidation, false)
	}

	got := a.Style(session.Regulation{})
	assert.Equal(t, PraiseBased, got)
}

func TestStyle_RequiresMeaningfulImprovement(t *testing.T) {
	a := newTestAdapter()
	// Praise: 2/3. Calm (current): 2/3. No 0.15 edge, no switch.
	a.RecordOutcome(PraiseBased, true)
	a.RecordOutcome(PraiseBased, true)
	a.RecordOutcome(PraiseBased, false)
	a.RecordOutcome(CalmValidation, true)
	a.RecordOutcome(CalmValidation, true)
	a.RecordOutcome(CalmValidation, false)

	assert.Equal(t, CalmValidation, a.Style(session.Regulation{}))
}

func TestStyle_ChangesAtMostOncePerSession(t *testing.T) {
	a := newTestAdapter()
	for i := 0; i < 3; i++ {
		a.RecordOutcome(PraiseBased, true)
	}
	for i := 0; i < 3; i++ {
		a.RecordOutcome(CalmValidation, false)
	}
	require.Equal(t, PraiseBased, a.Style(session.Regulation{}))

	// Even if another style now outperforms, the lock holds.
	for i := 0; i < 10; i++ {
		a.RecordOutcome(PlayfulEncouragement, true)
		a.RecordOutcome(PraiseBased, false)
	}
	assert.Equal(t, PraiseBased, a.Style(session.Regulation{}))
}

func TestStyle_CandidatesNeedMinimumUses(t *testing.T) {
	a := newTestAdapter()
	// Plenty of total events, but no single style reaches 3 uses except
	// the underperforming current one.
	a.RecordOutcome(PraiseBased, true)
	a.RecordOutcome(PraiseBased, true)
	a.RecordOutcome(AchievementBased, true)
	for i := 0; i < 3; i++ {
		a.RecordOutcome(CalmValidation, false)
	}
	assert.Equal(t, CalmValidation, a.Style(session.Regulation{}))
}

func TestRecordOutcome_IgnoresUnknownStyle(t *testing.T) {
	a := newTestAdapter()
	a.RecordOutcome("sarcastic", true)
	assert.Zero(t, a.TotalEvents())
}

func TestSetUser_AdoptsStoredPreference(t *testing.T) {
	a := NewAdapter(testReinforceCfg(), zerolog.Nop())
	a.SetUser("user-1", AchievementBased)
	assert.Equal(t, AchievementBased, a.Style(session.Regulation{}))

	b := NewAdapter(testReinforceCfg(), zerolog.Nop())
	b.SetUser("user-1", "hypnosis")
	assert.Equal(t, CalmValidation, b.Style(session.Regulation{}))
}

func TestPrompt_MatchesActiveStyle(t *testing.T) {
	a := newTestAdapter()
	assert.Equal(t, StylePrompts[CalmValidation], a.Prompt())
}

func TestPersist_WritesWinnerAndTotal(t *testing.T) {
	a := newTestAdapter()
	for i := 0; i < 3; i++ {
		a.RecordOutcome(PraiseBased, true)
	}
	for i := 0; i < 3; i++ {
		a.RecordOutcome(CalmValidation, false)
	}
	a.Style(session.Regulation{})

	p := &fakePersister{}
	require.NoError(t, a.Persist(p))
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "user-1", p.userID)
	assert.Equal(t, PraiseBased, p.style)
	assert.Equal(t, 6, p.events)

	p.err = errors.New("disk full")
	assert.Error(t, a.Persist(p))
}

func TestPersist_NoUserIsNoOp(t *testing.T) {
	a := NewAdapter(testReinforceCfg(), zerolog.Nop())
	p := &fakePersister{}
	require.NoError(t, a.Persist(p))
	assert.Zero(t, p.calls)
}
