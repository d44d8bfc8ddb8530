// Package store persists cross-session aggregates in a local sqlite file:
// user profiles, per-concept mastery, emotional counters, and reinforcement
// preferences. Only counts, levels, and timestamps are stored; transcripts
// and emotional narratives never reach disk.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/mood"
)

// Profile holds persistent user preferences.
type Profile struct {
	UserID                   string
	BaselineInstructionDepth int
	PreferredTopics          string
	PreferredTTSSpeed        float64
}

// LearningProgress tracks per-concept mastery.
type LearningProgress struct {
	UserID              string
	Concept             string
	MasteryLevel        int // 0-5
	HighestSuccessLevel int
	AttemptCount        int
	LastSuccess         time.Time
}

// EmotionalMetrics aggregates emotional counts per concept.
type EmotionalMetrics struct {
	UserID      string
	Concept     string
	Frustration int
	Recovery    int
	Stability   int
	LastUpdated time.Time
}

// Store wraps the sqlite database. All writes pass through a single mutex so
// mid-turn metric writes never interleave with end-of-session persistence,
// regardless of driver-level guarantees. The lock is never held across a
// call into an external engine.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
	now func() time.Time

	decayRate     float64
	decayInterval time.Duration
}

// Open opens or creates the database, runs migrations, and applies startup
// decay. Any failure is returned rather than operating on a partial schema.
func Open(cfg config.StoreConfig, log zerolog.Logger) (*Store, error) {
	return open(cfg, log, time.Now)
}

func open(cfg config.StoreConfig, log zerolog.Logger, now func() time.Time) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:            db,
		log:           log.With().Str("component", "store").Logger(),
		now:           now,
		decayRate:     cfg.DecayRate,
		decayInterval: cfg.DecayInterval,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := s.applyStartupDecay(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply startup decay: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		baseline_instruction_depth INTEGER DEFAULT 2,
		preferred_topics TEXT DEFAULT '',
		preferred_tts_speed REAL DEFAULT 0.9
	);
	CREATE TABLE IF NOT EXISTS learning_progress (
		user_id TEXT NOT NULL,
		concept_name TEXT NOT NULL,
		mastery_level INTEGER DEFAULT 0,
		highest_success_level INTEGER DEFAULT 0,
		attempt_count INTEGER DEFAULT 0,
		last_success_timestamp REAL DEFAULT 0.0,
		PRIMARY KEY (user_id, concept_name)
	);
	CREATE TABLE IF NOT EXISTS emotional_metrics (
		user_id TEXT NOT NULL,
		concept_name TEXT NOT NULL,
		frustration_count INTEGER DEFAULT 0,
		recovery_count INTEGER DEFAULT 0,
		neutral_stability_count INTEGER DEFAULT 0,
		last_updated REAL DEFAULT 0.0,
		PRIMARY KEY (user_id, concept_name)
	);
	CREATE TABLE IF NOT EXISTS decay_log (
		id INTEGER PRIMARY KEY,
		last_decay_timestamp REAL DEFAULT 0.0
	);
	CREATE TABLE IF NOT EXISTS reinforcement_metrics (
		user_id TEXT PRIMARY KEY,
		preferred_style TEXT DEFAULT 'calm_validation',
		total_events INTEGER DEFAULT 0,
		last_updated REAL DEFAULT 0.0
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// GetOrCreateProfile returns the user's profile, creating a default one on
// first contact.
func (s *Store) GetOrCreateProfile(userID string) (Profile, error) {
	p := Profile{UserID: userID}
	err := s.db.QueryRow(
		`SELECT baseline_instruction_depth, preferred_topics, preferred_tts_speed
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.BaselineInstructionDepth, &p.PreferredTopics, &p.PreferredTTSSpeed)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO user_profiles (user_id) VALUES (?)`, userID); err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	s.log.Info().Str("user", userID).Msg("created user profile")
	return Profile{
		UserID:                   userID,
		BaselineInstructionDepth: 2,
		PreferredTTSSpeed:        0.9,
	}, nil
}

// GetLearningProgress returns per-concept progress, creating an empty record
// on first use.
func (s *Store) GetLearningProgress(userID, concept string) (LearningProgress, error) {
	p, err := s.queryProgress(userID, concept)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return LearningProgress{}, fmt.Errorf("query learning progress: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO learning_progress (user_id, concept_name) VALUES (?, ?)`,
		userID, concept,
	); err != nil {
		return LearningProgress{}, fmt.Errorf("create learning progress: %w", err)
	}
	return LearningProgress{UserID: userID, Concept: concept}, nil
}

func (s *Store) queryProgress(userID, concept string) (LearningProgress, error) {
	p := LearningProgress{UserID: userID, Concept: concept}
	var lastSuccess float64
	err := s.db.QueryRow(
		`SELECT mastery_level, highest_success_level, attempt_count, last_success_timestamp
		 FROM learning_progress WHERE user_id = ? AND concept_name = ?`,
		userID, concept,
	).Scan(&p.MasteryLevel, &p.HighestSuccessLevel, &p.AttemptCount, &lastSuccess)
	if err != nil {
		return LearningProgress{}, err
	}
	if lastSuccess > 0 {
		p.LastSuccess = time.Unix(int64(lastSuccess), 0)
	}
	return p, nil
}

// RecordAttempt records a learning attempt. The attempt count always
// increments; mastery increments only on success and never exceeds 5.
func (s *Store) RecordAttempt(userID, concept string, success bool) (LearningProgress, error) {
	p, err := s.GetLearningProgress(userID, concept)
	if err != nil {
		return LearningProgress{}, err
	}

	p.AttemptCount++
	if success {
		if p.MasteryLevel < 5 {
			p.MasteryLevel++
		}
		if p.MasteryLevel > p.HighestSuccessLevel {
			p.HighestSuccessLevel = p.MasteryLevel
		}
		p.LastSuccess = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var lastSuccess float64
	if !p.LastSuccess.IsZero() {
		lastSuccess = float64(p.LastSuccess.Unix())
	}
	if _, err := s.db.Exec(
		`UPDATE learning_progress
		 SET mastery_level = ?, highest_success_level = ?, attempt_count = ?, last_success_timestamp = ?
		 WHERE user_id = ? AND concept_name = ?`,
		p.MasteryLevel, p.HighestSuccessLevel, p.AttemptCount, lastSuccess, userID, concept,
	); err != nil {
		return LearningProgress{}, fmt.Errorf("record attempt: %w", err)
	}

	s.log.Info().
		Str("concept", concept).
		Int("mastery", p.MasteryLevel).
		Int("attempts", p.AttemptCount).
		Bool("success", success).
		Msg("learning attempt recorded")
	return p, nil
}

// RecordEmotionalMetric increments the aggregated counter matching the mood
// category. Moods outside the frustration and stability categories are not
// counted.
func (s *Store) RecordEmotionalMetric(userID, concept string, m mood.Mood) error {
	var column string
	switch m {
	case mood.Frustrated, mood.Sad:
		column = "frustration_count"
	case mood.Neutral, mood.Happy:
		column = "neutral_stability_count"
	default:
		return nil
	}
	return s.incrementMetric(userID, concept, column)
}

// RecordRecovery records a frustration-to-stability transition.
func (s *Store) RecordRecovery(userID, concept string) error {
	return s.incrementMetric(userID, concept, "recovery_count")
}

func (s *Store) incrementMetric(userID, concept, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO emotional_metrics (user_id, concept_name) VALUES (?, ?)`,
		userID, concept,
	); err != nil {
		return fmt.Errorf("ensure emotional metrics row: %w", err)
	}
	if _, err := s.db.Exec(
		fmt.Sprintf(`UPDATE emotional_metrics SET %s = %s + 1, last_updated = ?
		 WHERE user_id = ? AND concept_name = ?`, column, column),
		float64(s.now().Unix()), userID, concept,
	); err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// EmotionalMetrics returns the aggregated counters for one concept. A
// missing row reads as all zeros.
func (s *Store) EmotionalMetrics(userID, concept string) (EmotionalMetrics, error) {
	m := EmotionalMetrics{UserID: userID, Concept: concept}
	var lastUpdated float64
	err := s.db.QueryRow(
		`SELECT frustration_count, recovery_count, neutral_stability_count, last_updated
		 FROM emotional_metrics WHERE user_id = ? AND concept_name = ?`,
		userID, concept,
	).Scan(&m.Frustration, &m.Recovery, &m.Stability, &lastUpdated)
	if err == sql.ErrNoRows {
		return m, nil
	}
	if err != nil {
		return EmotionalMetrics{}, fmt.Errorf("query emotional metrics: %w", err)
	}
	if lastUpdated > 0 {
		m.LastUpdated = time.Unix(int64(lastUpdated), 0)
	}
	return m, nil
}

// SaveReinforcementPreference writes the session's winning style and total
// event count.
func (s *Store) SaveReinforcementPreference(userID, style string, totalEvents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO reinforcement_metrics
		 (user_id, preferred_style, total_events, last_updated)
		 VALUES (?, ?, ?, ?)`,
		userID, style, totalEvents, float64(s.now().Unix()),
	); err != nil {
		return fmt.Errorf("save reinforcement preference: %w", err)
	}
	return nil
}

// ReinforcementPreference returns the stored preferred style, or "" when the
// user has none yet.
func (s *Store) ReinforcementPreference(userID string) (string, error) {
	var style string
	err := s.db.QueryRow(
		`SELECT preferred_style FROM reinforcement_metrics WHERE user_id = ?`, userID,
	).Scan(&style)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query reinforcement preference: %w", err)
	}
	return style, nil
}

// ConceptLearning is one learning row of the caregiver summary.
type ConceptLearning struct {
	Concept  string `json:"concept"`
	Mastery  int    `json:"mastery"`
	Attempts int    `json:"attempts"`
	Highest  int    `json:"highest"`
}

// ConceptStability is one emotional row of the caregiver summary.
type ConceptStability struct {
	Concept          string `json:"concept"`
	FrustrationCount int    `json:"frustration_count"`
	RecoveryCount    int    `json:"recovery_count"`
	StabilityCount   int    `json:"stability_count"`
}

// UserSummary is the structured caregiver view: counts and levels only, no
// transcripts, no emotional labels.
type UserSummary struct {
	UserID             string             `json:"user_id"`
	Learning           []ConceptLearning  `json:"learning"`
	EmotionalStability []ConceptStability `json:"emotional_stability"`
}

// UserSummary aggregates all per-concept rows for one user.
func (s *Store) UserSummary(userID string) (UserSummary, error) {
	out := UserSummary{
		UserID:             userID,
		Learning:           []ConceptLearning{},
		EmotionalStability: []ConceptStability{},
	}

	rows, err := s.db.Query(
		`SELECT concept_name, mastery_level, attempt_count, highest_success_level
		 FROM learning_progress WHERE user_id = ? ORDER BY concept_name`, userID)
	if err != nil {
		return UserSummary{}, fmt.Errorf("query learning rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l ConceptLearning
		if err := rows.Scan(&l.Concept, &l.Mastery, &l.Attempts, &l.Highest); err != nil {
			return UserSummary{}, fmt.Errorf("scan learning row: %w", err)
		}
		out.Learning = append(out.Learning, l)
	}
	if err := rows.Err(); err != nil {
		return UserSummary{}, err
	}

	metricRows, err := s.db.Query(
		`SELECT concept_name, frustration_count, recovery_count, neutral_stability_count
		 FROM emotional_metrics WHERE user_id = ? ORDER BY concept_name`, userID)
	if err != nil {
		return UserSummary{}, fmt.Errorf("query emotional rows: %w", err)
	}
	defer metricRows.Close()
	for metricRows.Next() {
		var c ConceptStability
		if err := metricRows.Scan(&c.Concept, &c.FrustrationCount, &c.RecoveryCount, &c.StabilityCount); err != nil {
			return UserSummary{}, fmt.Errorf("scan emotional row: %w", err)
		}
		out.EmotionalStability = append(out.EmotionalStability, c)
	}
	if err := metricRows.Err(); err != nil {
		return UserSummary{}, err
	}

	return out, nil
}

// applyStartupDecay compounds the configured decay over every full interval
// elapsed since the last run, then advances the bookkeeping timestamp. A
// first run only initializes the timestamp.
func (s *Store) applyStartupDecay() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last float64
	err := s.db.QueryRow(`SELECT last_decay_timestamp FROM decay_log WHERE id = 1`).Scan(&last)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(
			`INSERT INTO decay_log (id, last_decay_timestamp) VALUES (1, ?)`,
			float64(s.now().Unix()),
		)
		return err
	}
	if err != nil {
		return err
	}

	elapsed := s.now().Sub(time.Unix(int64(last), 0))
	periods := int(elapsed / s.decayInterval)
	if periods <= 0 {
		return nil
	}

	factor := math.Pow(s.decayRate, float64(periods))
	if _, err := s.db.Exec(
		`UPDATE emotional_metrics SET
			frustration_count = CAST(frustration_count * ? AS INTEGER),
			recovery_count = CAST(recovery_count * ? AS INTEGER),
			neutral_stability_count = CAST(neutral_stability_count * ? AS INTEGER)`,
		factor, factor, factor,
	); err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`UPDATE decay_log SET last_decay_timestamp = ? WHERE id = 1`,
		float64(s.now().Unix()),
	); err != nil {
		return err
	}

	s.log.Info().Int("periods", periods).Float64("factor", factor).Msg("applied emotional metric decay")
	return nil
}
