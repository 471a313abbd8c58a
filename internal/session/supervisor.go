package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/daikw/aituberduel/internal/overlay"
)

// Supervisor restarts sessions until one finishes normally or the
// context ends. Every failure, stall restarts included, gets a fresh
// session after a short cooldown.
type Supervisor struct {
	orch  *Orchestrator
	clock *Clock
	cfg   Config
}

// NewSupervisor wraps an orchestrator in restart-forever semantics.
func NewSupervisor(orch *Orchestrator, clock *Clock, cfg Config) *Supervisor {
	return &Supervisor{orch: orch, clock: clock, cfg: cfg}
}

// Run drives sessions back to back. It returns nil both on a normal
// finite-mode completion and on context cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	sessionNo := 1
	for {
		s.clock.ClearRestart()
		s.clock.Mark()
		overlay.SessionsStarted.Inc()

		err := s.orch.RunSession(ctx, sessionNo)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		log.Warn().Int("session", sessionNo).Err(err).Msg("Session ended, restarting")
		overlay.Restarts.Inc()
		sessionNo++

		if err := sleepCtx(ctx, s.cfg.RestartWait); err != nil {
			return nil
		}
	}
}
