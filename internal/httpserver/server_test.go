package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/store"
)

type fakeSummaries struct {
	summary store.UserSummary
	err     error
}

func (f fakeSummaries) UserSummary(userID string) (store.UserSummary, error) {
	if f.err != nil {
		return store.UserSummary{}, f.err
	}
	s := f.summary
	s.UserID = userID
	return s, nil
}

func newTestServer(src SummarySource) *Server {
	return New(config.HTTPConfig{Address: ":0"}, src, func() string { return "listening" }, zerolog.Nop())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(fakeSummaries{})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"mode":"listening"`) {
		t.Fatalf("health body missing mode: %s", w.Body.String())
	}
}

func TestSummary(t *testing.T) {
	srv := newTestServer(fakeSummaries{
		summary: store.UserSummary{
			Learning: []store.ConceptLearning{
				{Concept: "counting", Mastery: 3, Attempts: 12, Highest: 3},
			},
			EmotionalStability: []store.ConceptStability{
				{Concept: "counting", FrustrationCount: 2, RecoveryCount: 1, StabilityCount: 9},
			},
		},
	})

	r := httptest.NewRequest(http.MethodGet, "/api/summary/kid-1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got store.UserSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if got.UserID != "kid-1" {
		t.Fatalf("expected user id from path, got %q", got.UserID)
	}
	if len(got.Learning) != 1 || got.Learning[0].Mastery != 3 {
		t.Fatalf("unexpected learning rows: %+v", got.Learning)
	}
	if got.EmotionalStability[0].RecoveryCount != 1 {
		t.Fatalf("unexpected stability rows: %+v", got.EmotionalStability)
	}
}

func TestSummary_StoreErrorIs500(t *testing.T) {
	srv := newTestServer(fakeSummaries{err: errors.New("db closed")})
	r := httptest.NewRequest(http.MethodGet, "/api/summary/kid-1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "db closed") {
		t.Fatalf("internal error detail must not leak: %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(fakeSummaries{})
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
