// Package statusapi exposes the coordinator's read-only status snapshot
// and an operator abort control over plain HTTP, using
// github.com/labstack/echo/v4 the same way rustyguts-bken/server/api.go
// runs its own REST surface on a port separate from the core signalling
// path (SPEC_FULL.md §3.2).
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fieldops/pagingcore/internal/coordinator"
	"github.com/fieldops/pagingcore/internal/external"
)

// Server hosts the status/control HTTP surface.
type Server struct {
	coord  *coordinator.Coordinator
	logger external.Logger
	echo   *echo.Echo
}

// New constructs a Server and registers its routes. coord must already be
// wired and about to be (or already) run.
func New(coord *coordinator.Coordinator, logger external.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{coord: coord, logger: logger, echo: e}
	e.GET("/health", s.handleHealth)
	e.GET("/status", s.handleStatus)
	e.POST("/abort", s.handleAbort)
	return s
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Error("statusapi: server error", "err", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		s.logger.Warn("statusapi: shutdown", "err", err)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// statusResponse mirrors coordinator.Stats with JSON tags; kept as a
// distinct type so the wire format doesn't silently change shape if
// Stats ever gains an internal-only field.
type statusResponse struct {
	State               string `json:"state"`
	ActiveSessionID     string `json:"active_session_id,omitempty"`
	SessionsStarted     uint64 `json:"sessions_started"`
	SessionsSaved       uint64 `json:"sessions_saved"`
	SessionsAborted     uint64 `json:"sessions_aborted"`
	BatchesSealed       uint64 `json:"batches_sealed"`
	SaveFailures        uint64 `json:"save_failures"`
	SaveQueueDepth      int    `json:"save_queue_depth"`
	HardwareTransitions uint64 `json:"hardware_transitions"`
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.coord.Stats()
	return c.JSON(http.StatusOK, statusResponse{
		State:               st.State,
		ActiveSessionID:     st.ActiveSessionID,
		SessionsStarted:     st.SessionsStarted,
		SessionsSaved:       st.SessionsSaved,
		SessionsAborted:     st.SessionsAborted,
		BatchesSealed:       st.BatchesSealed,
		SaveFailures:        st.SaveFailures,
		SaveQueueDepth:      st.SaveQueueDepth,
		HardwareTransitions: st.HardwareTransitions,
	})
}

// handleAbort discards whatever session is in progress without saving it
// (spec.md §4.8's operator override). Idempotent: aborting an idle
// coordinator is a no-op.
func (s *Server) handleAbort(c echo.Context) error {
	s.coord.Abort()
	return c.NoContent(http.StatusNoContent)
}

// jsonErrorHandler gives every error response a consistent {"error": msg}
// body, following rustyguts-bken/server/api.go's own handler of the same
// name.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}
