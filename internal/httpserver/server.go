// Package httpserver exposes the caregiver-facing HTTP surface: health,
// structured progress summaries, and Prometheus metrics. It serves
// aggregates only; transcripts and emotional narratives are never exposed.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/store"
)

// SummarySource provides per-user aggregate summaries. Implemented by the
// persistent store.
type SummarySource interface {
	UserSummary(userID string) (store.UserSummary, error)
}

// Server bundles the router and its dependencies.
type Server struct {
	e    *echo.Echo
	addr string
	log  zerolog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

// New constructs the server. mode reports the controller's current
// turn-taking state for the health endpoint; pass nil when no controller is
// attached.
func New(cfg config.HTTPConfig, summaries SummarySource, mode func() string, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		e:    e,
		addr: cfg.Address,
		log:  log.With().Str("component", "httpserver").Logger(),
	}

	e.GET("/healthz", func(c echo.Context) error {
		resp := healthResponse{Status: "ok"}
		if mode != nil {
			resp.Mode = mode()
		}
		return c.JSON(http.StatusOK, resp)
	})

	e.GET("/api/summary/:user", func(c echo.Context) error {
		userID := c.Param("user")
		summary, err := summaries.UserSummary(userID)
		if err != nil {
			s.log.Error().Err(err).Str("user", userID).Msg("summary query failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "summary unavailable"})
		}
		return c.JSON(http.StatusOK, summary)
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves until Shutdown is called. It returns http.ErrServerClosed on
// a clean shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	return s.e.Start(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
