package game

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
)

// Timers are the optional per-phase deadlines. A zero duration disables the
// timer for that phase; Reveal paces the steps of the results sequence.
type Timers struct {
	Draw   time.Duration `mapstructure:"draw"`
	Guess  time.Duration `mapstructure:"guess"`
	Vote   time.Duration `mapstructure:"vote"`
	Reveal time.Duration `mapstructure:"reveal"`
}

func (t Timers) forPhase(p domain.Phase) time.Duration {
	switch p {
	case domain.PhaseDrawings:
		return t.Draw
	case domain.PhaseGuesses:
		return t.Guess
	case domain.PhaseGuessVotes:
		return t.Vote
	case domain.PhaseResults:
		return t.Reveal
	default:
		return 0
	}
}

var errStaleTimer = stderrors.New("stale timer")

// schedule arms the deadline for the phase the snapshot shows. The timer
// carries the phase and its start time so a fire after the session has moved
// on is a no-op.
func (svc *Service) schedule(snap *domain.Snapshot) {
	d := svc.c.Timers.forPhase(snap.Phase)
	if d <= 0 {
		return
	}

	sessionID, phase, startedAt := snap.SessionID, snap.Phase, snap.PhaseStartedAt
	time.AfterFunc(d, func() {
		svc.expire(sessionID, phase, startedAt)
	})
}

// expire force-completes the phase the timer was armed for, through the same
// path the host's advance takes.
func (svc *Service) expire(sessionID string, phase domain.Phase, startedAt time.Time) {
	ctx := context.Background()

	tx := &txn{}
	snap, err := svc.c.Registry.Update(sessionID, func(s *domain.Session) error {
		if s.Phase != phase || !s.PhaseStartedAt.Equal(startedAt) {
			return errStaleTimer
		}

		if s.Phase == domain.PhaseResults {
			return svc.advanceReveal(ctx, s, tx)
		}

		svc.forceCompletePhase(s, tx)
		return nil
	})
	if err != nil {
		if !stderrors.Is(err, errStaleTimer) && errors.Convert(err).Code != errors.CodeNotFound {
			slog.ErrorContext(ctx, "game: phase timer expiry failed",
				"session_id", sessionID,
				"phase", phase,
				"error", err,
			)
		}
		return
	}

	slog.InfoContext(ctx, "game: phase timer expired",
		"session_id", sessionID,
		"phase", phase,
	)
	svc.commit(ctx, snap, tx)
}
