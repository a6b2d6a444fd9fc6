package game_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/game"
)

func TestService_PhaseTimer(t *testing.T) {
	t.Parallel()

	svc := makeService(t, func(c *game.Config) {
		c.Timers = game.Timers{Draw: 50 * time.Millisecond}
	})

	ref, players := setup(t, svc, nil, "alice", "bob")
	start(t, svc, ref, players["alice"])

	// nobody draws: the deadline force-completes the phase
	require.Eventually(t, func() bool {
		snap, err := svc.Snapshot(context.Background(), ref)
		require.NoError(t, err)
		return snap.Phase != domain.PhaseDrawings
	}, time.Second, 10*time.Millisecond)

	snap, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)

	// with zero drawings the round cascades straight through to results
	assert.Equal(t, domain.PhaseResults, snap.Phase)
	assert.Equal(t, 0, snap.Counts.Drawings)
	require.NotNil(t, snap.Reveal)
	assert.Equal(t, domain.RevealScores, snap.Reveal.Stage)
}

func TestService_PhaseTimer_staleAfterAdvance(t *testing.T) {
	t.Parallel()

	svc := makeService(t, func(c *game.Config) {
		c.Timers = game.Timers{Draw: 80 * time.Millisecond}
	})

	ref, players := setup(t, svc, nil, "alice", "bob")
	start(t, svc, ref, players["alice"])

	// everyone draws before the deadline, advancing the phase; when the
	// stale timer fires it must not touch the session again
	snap := drawAll(t, svc, ref, players)
	require.Equal(t, domain.PhaseGuesses, snap.Phase)

	time.Sleep(150 * time.Millisecond)

	after, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseGuesses, after.Phase)
	assert.Equal(t, snap.Version, after.Version)
}
