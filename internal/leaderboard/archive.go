package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/event"
)

// Archive persists per-round score deltas so finished games survive the
// in-memory registry. It is optional: with no database the subscription is
// never installed.
type Archive struct {
	db *pgxpool.Pool
}

func NewArchive(eb *event.Bus, db *pgxpool.Pool) *Archive {
	a := &Archive{db: db}
	if db == nil {
		return a
	}

	eb.Subscribe(domain.EventNameRoundScored, func(ctx context.Context, e event.Event) error {
		return a.Record(ctx, e.(domain.EventRoundScored))
	})

	return a
}

// Record inserts one row per player delta of the scored round.
func (a *Archive) Record(ctx context.Context, e domain.EventRoundScored) error {
	if a.db == nil || len(e.Deltas) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, d := range e.Deltas {
		b.Queue(`
			INSERT INTO score_records (session_id, round, player_id, player_name, delta)
			VALUES ($1, $2, $3, $4, $5)`,
			e.SessionID, e.Round, d.PlayerID, d.PlayerName, d.Delta,
		)
	}

	if err := a.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("archive round scores: session=%s round=%d: %w", e.SessionID, e.Round, err)
	}

	return nil
}
