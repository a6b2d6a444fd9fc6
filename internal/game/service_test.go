package game_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
	"github.com/namvu/sketchwire/internal/event"
	"github.com/namvu/sketchwire/internal/game"
	"github.com/namvu/sketchwire/internal/registry"
)

// stubPrompts hands out "prompt-1", "prompt-2", ... in order, honoring
// exclusions, so assignments are predictable.
type stubPrompts struct {
	size int
}

func (s stubPrompts) Draw(ctx context.Context, n int, category string, exclude map[string]struct{}) ([]string, error) {
	var out []string
	for i := 1; i <= s.size && len(out) < n; i++ {
		text := "prompt-" + strconv.Itoa(i)
		if _, used := exclude[text]; used {
			continue
		}
		out = append(out, text)
	}
	return out, nil
}

func makeService(t *testing.T, opts ...func(*game.Config)) *game.Service {
	t.Helper()

	c := game.Config{
		EventBus: event.NewBus(),
		Prompts:  stubPrompts{size: 100},
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Registry == nil {
		c.Registry = registry.New(registry.Config{Snapshot: game.NewSnapshotBuilder(c.Rules)})
	}

	return game.NewService(c)
}

type creds struct {
	id    int
	token string
}

func join(t *testing.T, svc *game.Service, ref, name string) creds {
	t.Helper()

	resp, err := svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: name})
	require.NoError(t, err)
	return creds{id: resp.PlayerID, token: resp.AuthToken}
}

// setup creates a session, joins the named players (first one is host) and
// returns the session id with each player's credentials.
func setup(t *testing.T, svc *game.Service, settings *domain.Settings, names ...string) (string, map[string]creds) {
	t.Helper()

	snap, err := svc.CreateSession(context.Background(), game.CreateSessionRequest{Settings: settings})
	require.NoError(t, err)

	players := make(map[string]creds, len(names))
	for _, name := range names {
		players[name] = join(t, svc, snap.SessionID, name)
	}

	return snap.SessionID, players
}

func start(t *testing.T, svc *game.Service, ref string, host creds) *domain.Snapshot {
	t.Helper()

	snap, err := svc.Start(context.Background(), game.StartRequest{SessionRef: ref, PlayerID: host.id, AuthToken: host.token})
	require.NoError(t, err)
	return snap
}

func drawAll(t *testing.T, svc *game.Service, ref string, players map[string]creds) *domain.Snapshot {
	t.Helper()

	var snap *domain.Snapshot
	for name, p := range players {
		prompt, err := svc.PlayerPrompt(context.Background(), game.PlayerPromptRequest{SessionRef: ref, PlayerID: p.id, AuthToken: p.token})
		require.NoError(t, err)

		snap, err = svc.SubmitDrawing(context.Background(), game.SubmitDrawingRequest{
			SessionRef: ref,
			PlayerID:   p.id,
			AuthToken:  p.token,
			Prompt:     prompt,
			Image:      []byte("drawing by " + name),
		})
		require.NoError(t, err)
	}
	return snap
}

func guess(t *testing.T, svc *game.Service, ref string, p creds, drawingIndex int, text string) *domain.Snapshot {
	t.Helper()

	snap, err := svc.SubmitGuess(context.Background(), game.SubmitGuessRequest{
		SessionRef:   ref,
		PlayerID:     p.id,
		AuthToken:    p.token,
		DrawingIndex: &drawingIndex,
		Text:         text,
	})
	require.NoError(t, err)
	return snap
}

func vote(t *testing.T, svc *game.Service, ref string, p creds, drawingIndex int, text string) *domain.Snapshot {
	t.Helper()

	snap, err := svc.SubmitVote(context.Background(), game.SubmitVoteRequest{
		SessionRef:   ref,
		PlayerID:     p.id,
		AuthToken:    p.token,
		DrawingIndex: &drawingIndex,
		Text:         text,
	})
	require.NoError(t, err)
	return snap
}

// guessAll fills every pending guess with a per-player lie and returns the
// snapshot after the phase resolves.
func guessAll(t *testing.T, svc *game.Service, ref string, players map[string]creds) *domain.Snapshot {
	t.Helper()

	snap, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseGuesses, snap.Phase)

	byID := make(map[int]creds, len(players))
	for _, p := range players {
		byID[p.id] = p
	}

	for _, a := range snap.GuessAssignments {
		snap = guess(t, svc, ref, byID[a.PlayerID], a.DrawingIndex, fmt.Sprintf("lie-%d-%d", a.PlayerID, a.DrawingIndex))
	}
	return snap
}

// voteAll makes every pending voter pick the true prompt.
func voteAll(t *testing.T, svc *game.Service, ref string, players map[string]creds) *domain.Snapshot {
	t.Helper()

	snap, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseGuessVotes, snap.Phase)

	byID := make(map[int]creds, len(players))
	for _, p := range players {
		byID[p.id] = p
	}

	for _, a := range snap.VoteAssignments {
		p := byID[a.PlayerID]
		var err error
		snap, err = svc.SubmitVote(context.Background(), game.SubmitVoteRequest{
			SessionRef:   ref,
			PlayerID:     p.id,
			AuthToken:    p.token,
			DrawingIndex: &a.DrawingIndex,
			OptionID:     "prompt",
		})
		require.NoError(t, err)
	}
	return snap
}

func advance(t *testing.T, svc *game.Service, ref string, host creds) *domain.Snapshot {
	t.Helper()

	snap, err := svc.Advance(context.Background(), game.AdvanceRequest{SessionRef: ref, PlayerID: host.id, AuthToken: host.token})
	require.NoError(t, err)
	return snap
}

func TestService_CreateSession(t *testing.T) {
	t.Parallel()

	svc := makeService(t)

	t.Run("defaults", func(t *testing.T) {
		snap, err := svc.CreateSession(context.Background(), game.CreateSessionRequest{})
		require.NoError(t, err)

		assert.Equal(t, domain.PhaseLobby, snap.Phase)
		assert.Equal(t, 1, snap.Settings.Rounds)
		assert.True(t, snap.CanJoin)
		assert.Len(t, snap.JoinCode, 6)
	})

	t.Run("rounds out of range", func(t *testing.T) {
		_, err := svc.CreateSession(context.Background(), game.CreateSessionRequest{
			Settings: &domain.Settings{Rounds: 11},
		})
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	})

	t.Run("resolvable by join code", func(t *testing.T) {
		snap, err := svc.CreateSession(context.Background(), game.CreateSessionRequest{})
		require.NoError(t, err)

		got, err := svc.Snapshot(context.Background(), snap.JoinCode)
		require.NoError(t, err)
		assert.Equal(t, snap.SessionID, got.SessionID)
	})
}

func TestService_Join(t *testing.T) {
	t.Parallel()

	t.Run("first player becomes host", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")

		snap, err := svc.Snapshot(context.Background(), ref)
		require.NoError(t, err)

		assert.Equal(t, players["alice"].id, snap.HostID)
		require.Len(t, snap.Players, 2)
		assert.True(t, snap.Players[0].IsHost)
		assert.False(t, snap.Players[1].IsHost)
	})

	t.Run("rejoin by name reclaims the seat", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")

		resp, err := svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "Bob"})
		require.NoError(t, err)

		assert.True(t, resp.Rejoined)
		assert.Equal(t, players["bob"].id, resp.PlayerID)
		assert.Equal(t, players["bob"].token, resp.AuthToken)
		assert.Len(t, resp.Snapshot.Players, 2)
	})

	t.Run("rejoin works after the game starts", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])

		resp, err := svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "bob"})
		require.NoError(t, err)
		assert.True(t, resp.Rejoined)
	})

	t.Run("new names rejected after start", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])

		_, err := svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "carol"})
		require.Error(t, err)
		assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase))
	})

	t.Run("locked lobby", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice")

		_, err := svc.UpdateSettings(context.Background(), game.UpdateSettingsRequest{
			SessionRef: ref,
			PlayerID:   players["alice"].id,
			AuthToken:  players["alice"].token,
			Settings:   domain.Settings{Rounds: 1, LobbyLocked: true},
		})
		require.NoError(t, err)

		_, err = svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "bob"})
		assert.True(t, errors.HasReason(err, errors.ReasonLobbyLocked))
	})

	t.Run("full lobby", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, _ := setup(t, svc, &domain.Settings{Rounds: 1, MaxPlayers: 2}, "alice", "bob")

		_, err := svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "carol"})
		assert.True(t, errors.HasReason(err, errors.ReasonLobbyFull))
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, _ := setup(t, svc, nil, "alice")

		_, err := svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "   "})
		assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	})
}

func TestService_UpdateSettings(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob")

	t.Run("non-host forbidden", func(t *testing.T) {
		_, err := svc.UpdateSettings(context.Background(), game.UpdateSettingsRequest{
			SessionRef: ref,
			PlayerID:   players["bob"].id,
			AuthToken:  players["bob"].token,
			Settings:   domain.Settings{Rounds: 2},
		})
		assert.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
	})

	t.Run("bad token", func(t *testing.T) {
		_, err := svc.UpdateSettings(context.Background(), game.UpdateSettingsRequest{
			SessionRef: ref,
			PlayerID:   players["alice"].id,
			AuthToken:  "wrong",
			Settings:   domain.Settings{Rounds: 2},
		})
		assert.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("max_players below roster", func(t *testing.T) {
		_, err := svc.UpdateSettings(context.Background(), game.UpdateSettingsRequest{
			SessionRef: ref,
			PlayerID:   players["alice"].id,
			AuthToken:  players["alice"].token,
			Settings:   domain.Settings{Rounds: 1, MaxPlayers: 1},
		})
		assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	})

	t.Run("host updates", func(t *testing.T) {
		snap, err := svc.UpdateSettings(context.Background(), game.UpdateSettingsRequest{
			SessionRef: ref,
			PlayerID:   players["alice"].id,
			AuthToken:  players["alice"].token,
			Settings:   domain.Settings{Rounds: 3, MaxPlayers: 6},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, snap.Settings.Rounds)
	})
}

func TestService_Kick(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob", "carol")
	host := players["alice"]

	t.Run("host cannot be kicked", func(t *testing.T) {
		_, err := svc.Kick(context.Background(), game.KickRequest{
			SessionRef: ref, PlayerID: host.id, AuthToken: host.token, TargetID: host.id,
		})
		assert.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
	})

	t.Run("non-host cannot kick", func(t *testing.T) {
		_, err := svc.Kick(context.Background(), game.KickRequest{
			SessionRef: ref, PlayerID: players["bob"].id, AuthToken: players["bob"].token, TargetID: players["carol"].id,
		})
		assert.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
	})

	t.Run("kicked player cannot rejoin", func(t *testing.T) {
		snap, err := svc.Kick(context.Background(), game.KickRequest{
			SessionRef: ref, PlayerID: host.id, AuthToken: host.token, TargetID: players["carol"].id,
		})
		require.NoError(t, err)
		assert.Len(t, snap.Players, 2)

		_, err = svc.Join(context.Background(), game.JoinRequest{SessionRef: ref, Name: "Carol"})
		assert.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
	})
}

func TestService_Start(t *testing.T) {
	t.Parallel()

	t.Run("needs two players", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice")

		_, err := svc.Start(context.Background(), game.StartRequest{
			SessionRef: ref, PlayerID: players["alice"].id, AuthToken: players["alice"].token,
		})
		assert.True(t, errors.HasReason(err, errors.ReasonNotEnoughPlayers))
	})

	t.Run("host only", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")

		_, err := svc.Start(context.Background(), game.StartRequest{
			SessionRef: ref, PlayerID: players["bob"].id, AuthToken: players["bob"].token,
		})
		assert.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
	})

	t.Run("assigns a distinct prompt per player", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob", "carol")
		snap := start(t, svc, ref, players["alice"])

		assert.Equal(t, domain.PhaseDrawings, snap.Phase)
		assert.Equal(t, 1, snap.RoundNumber)
		assert.Equal(t, 3, snap.Counts.Prompts)
		assert.False(t, snap.CanJoin)

		seen := make(map[string]struct{})
		for _, p := range players {
			prompt, err := svc.PlayerPrompt(context.Background(), game.PlayerPromptRequest{
				SessionRef: ref, PlayerID: p.id, AuthToken: p.token,
			})
			require.NoError(t, err)
			_, dup := seen[prompt]
			assert.False(t, dup, "prompt %q assigned twice", prompt)
			seen[prompt] = struct{}{}
		}
	})

	t.Run("cannot start twice", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])

		_, err := svc.Start(context.Background(), game.StartRequest{
			SessionRef: ref, PlayerID: players["alice"].id, AuthToken: players["alice"].token,
		})
		assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase))
	})

	t.Run("prompt failure leaves the lobby untouched", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t, func(c *game.Config) {
			c.Prompts = stubPrompts{size: 0}
		})
		ref, players := setup(t, svc, nil, "alice", "bob")

		_, err := svc.Start(context.Background(), game.StartRequest{
			SessionRef: ref, PlayerID: players["alice"].id, AuthToken: players["alice"].token,
		})
		require.Error(t, err)

		snap, err := svc.Snapshot(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseLobby, snap.Phase)
		assert.Zero(t, snap.TotalRounds)
		assert.Zero(t, snap.RoundNumber)
		assert.True(t, snap.CanJoin)

		events, err := svc.Events(context.Background(), ref)
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, domain.RecordGameStarted, e.Type)
		}
	})
}

func TestService_SubmitDrawing(t *testing.T) {
	t.Parallel()

	t.Run("prompt must match the assignment", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])

		_, err := svc.SubmitDrawing(context.Background(), game.SubmitDrawingRequest{
			SessionRef: ref,
			PlayerID:   players["alice"].id,
			AuthToken:  players["alice"].token,
			Prompt:     "not my prompt",
			Image:      []byte("img"),
		})
		assert.True(t, errors.HasReason(err, errors.ReasonPromptMismatch))
	})

	t.Run("resubmission overwrites before the phase advances", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])

		alice := players["alice"]
		prompt, err := svc.PlayerPrompt(context.Background(), game.PlayerPromptRequest{
			SessionRef: ref, PlayerID: alice.id, AuthToken: alice.token,
		})
		require.NoError(t, err)

		for _, img := range []string{"first", "second"} {
			snap, err := svc.SubmitDrawing(context.Background(), game.SubmitDrawingRequest{
				SessionRef: ref, PlayerID: alice.id, AuthToken: alice.token,
				Prompt: prompt, Image: []byte(img),
			})
			require.NoError(t, err)
			assert.Equal(t, 1, snap.Counts.Drawings)
			assert.Equal(t, domain.PhaseDrawings, snap.Phase)
		}
	})

	t.Run("last drawing moves the session to guesses", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])

		snap := drawAll(t, svc, ref, players)
		assert.Equal(t, domain.PhaseGuesses, snap.Phase)
		assert.Len(t, snap.GuessAssignments, 2)
	})
}

func TestService_SubmitGuess(t *testing.T) {
	t.Parallel()

	t.Run("own drawing is off limits", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])
		snap := drawAll(t, svc, ref, players)

		var own int
		for _, a := range snap.GuessAssignments {
			if a.PlayerID == players["alice"].id {
				// alice's own drawing is the other index
				own = 1 - a.DrawingIndex
			}
		}

		_, err := svc.SubmitGuess(context.Background(), game.SubmitGuessRequest{
			SessionRef:   ref,
			PlayerID:     players["alice"].id,
			AuthToken:    players["alice"].token,
			DrawingIndex: &own,
			Text:         "a lie",
		})
		assert.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
	})

	t.Run("defaults to the first pending assignment", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		start(t, svc, ref, players["alice"])
		drawAll(t, svc, ref, players)

		snap, err := svc.SubmitGuess(context.Background(), game.SubmitGuessRequest{
			SessionRef: ref,
			PlayerID:   players["alice"].id,
			AuthToken:  players["alice"].token,
			Text:       "a lie",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Counts.Guesses)

		for _, a := range snap.GuessAssignments {
			assert.NotEqual(t, players["alice"].id, a.PlayerID)
		}
	})

	t.Run("all guesses recorded moves the session to voting", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob", "carol")
		start(t, svc, ref, players["alice"])
		drawAll(t, svc, ref, players)

		snap := guessAll(t, svc, ref, players)
		assert.Equal(t, domain.PhaseGuessVotes, snap.Phase)
		assert.Len(t, snap.VoteAssignments, 6)
	})

	t.Run("resubmission overwrites before the phase advances", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob", "carol")
		alice := players["alice"]
		start(t, svc, ref, alice)
		snap := drawAll(t, svc, ref, players)

		var idx int
		for _, a := range snap.GuessAssignments {
			if a.PlayerID == alice.id {
				idx = a.DrawingIndex
				break
			}
		}

		snap = guess(t, svc, ref, alice, idx, "first lie")
		require.Equal(t, 1, snap.Counts.Guesses)

		snap = guess(t, svc, ref, alice, idx, "second lie")
		assert.Equal(t, 1, snap.Counts.Guesses)
		assert.Equal(t, domain.PhaseGuesses, snap.Phase)

		// only the final text reaches the ballot
		snap = guessAll(t, svc, ref, players)
		require.Equal(t, domain.PhaseGuessVotes, snap.Phase)

		for _, a := range snap.VoteAssignments {
			if a.DrawingIndex != idx {
				continue
			}
			var texts []string
			for _, o := range a.Options {
				texts = append(texts, o.Text)
			}
			assert.Contains(t, texts, "second lie")
			assert.NotContains(t, texts, "first lie")
		}
	})
}

func TestService_VoteOptions(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob", "carol")
	alice, bob, carol := players["alice"], players["bob"], players["carol"]
	start(t, svc, ref, alice)
	drawAll(t, svc, ref, players)

	snap, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseGuesses, snap.Phase)

	drawingOf := make(map[int]int)
	for _, a := range snap.GuessAssignments {
		drawingOf[a.DrawingOwner] = a.DrawingIndex
	}

	// alice's drawing: bob and carol submit the same lie (dedup case).
	// bob's drawing: alice guesses the true prompt (fold case), carol lies.
	// carol's drawing: one lie each.
	guess(t, svc, ref, bob, drawingOf[alice.id], "shared lie")
	guess(t, svc, ref, carol, drawingOf[alice.id], "shared lie")
	guess(t, svc, ref, alice, drawingOf[bob.id], snapPrompt(t, svc, ref, bob))
	guess(t, svc, ref, carol, drawingOf[bob.id], "carol-lie")
	guess(t, svc, ref, alice, drawingOf[carol.id], "alice-lie")
	snap = guess(t, svc, ref, bob, drawingOf[carol.id], "bob-lie")
	require.Equal(t, domain.PhaseGuessVotes, snap.Phase)

	optionsFor := func(drawingIndex int) []domain.VoteOption {
		for _, a := range snap.VoteAssignments {
			if a.DrawingIndex == drawingIndex {
				return a.Options
			}
		}
		return nil
	}

	t.Run("duplicate guesses fold into one option owned by the first author", func(t *testing.T) {
		options := optionsFor(drawingOf[alice.id])
		require.Len(t, options, 2)

		for _, o := range options {
			switch o.Type {
			case domain.OptionPrompt:
				assert.Equal(t, "prompt", o.ID)
				assert.Equal(t, alice.id, o.OwnerID)
			case domain.OptionGuess:
				assert.Equal(t, "shared lie", o.Text)
				assert.Equal(t, bob.id, o.OwnerID)
			}
		}
	})

	t.Run("a guess equal to the prompt folds into the prompt option", func(t *testing.T) {
		options := optionsFor(drawingOf[bob.id])
		require.Len(t, options, 2)

		for _, o := range options {
			if o.Type == domain.OptionGuess {
				assert.Equal(t, "carol-lie", o.Text)
			}
		}
	})

	t.Run("every voter sees the same ballot order", func(t *testing.T) {
		ballots := make(map[int][]domain.VoteOption)
		for _, a := range snap.VoteAssignments {
			if prev, ok := ballots[a.DrawingIndex]; ok {
				assert.Equal(t, prev, a.Options)
				continue
			}
			ballots[a.DrawingIndex] = a.Options
		}

		again, err := svc.Snapshot(context.Background(), ref)
		require.NoError(t, err)
		for _, a := range again.VoteAssignments {
			assert.Equal(t, ballots[a.DrawingIndex], a.Options)
		}
	})

	t.Run("voting for your own guess is rejected", func(t *testing.T) {
		idx := drawingOf[carol.id]
		_, err := svc.SubmitVote(context.Background(), game.SubmitVoteRequest{
			SessionRef:   ref,
			PlayerID:     bob.id,
			AuthToken:    bob.token,
			DrawingIndex: &idx,
			Text:         "bob-lie",
		})
		assert.True(t, errors.HasReason(err, errors.ReasonInvalidVoteChoice))
	})

	t.Run("unknown choice is rejected", func(t *testing.T) {
		idx := drawingOf[carol.id]
		_, err := svc.SubmitVote(context.Background(), game.SubmitVoteRequest{
			SessionRef:   ref,
			PlayerID:     bob.id,
			AuthToken:    bob.token,
			DrawingIndex: &idx,
			Text:         "definitely not an option",
		})
		assert.True(t, errors.HasReason(err, errors.ReasonInvalidVoteChoice))
	})
}

func TestService_SubmitVote_overwrite(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob", "carol")
	alice, bob, carol := players["alice"], players["bob"], players["carol"]
	start(t, svc, ref, alice)
	drawAll(t, svc, ref, players)
	snap := guessAll(t, svc, ref, players)
	require.Equal(t, domain.PhaseGuessVotes, snap.Phase)

	var idx int
	for _, a := range snap.VoteAssignments {
		if a.PlayerID == alice.id && a.DrawingOwner == bob.id {
			idx = a.DrawingIndex
			break
		}
	}

	// alice first falls for carol's lie, then switches to the true prompt
	snap = vote(t, svc, ref, alice, idx, fmt.Sprintf("lie-%d-%d", carol.id, idx))
	require.Equal(t, 1, snap.Counts.Votes)

	var err error
	snap, err = svc.SubmitVote(context.Background(), game.SubmitVoteRequest{
		SessionRef:   ref,
		PlayerID:     alice.id,
		AuthToken:    alice.token,
		DrawingIndex: &idx,
		OptionID:     "prompt",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counts.Votes)
	assert.Equal(t, domain.PhaseGuessVotes, snap.Phase)

	snap = voteAll(t, svc, ref, players)
	require.Equal(t, domain.PhaseResults, snap.Phase)

	// everyone's final vote is the prompt: two correct votes plus the clean
	// drawer bonus each, and carol's abandoned lie earns nothing
	for _, entry := range snap.Scores {
		assert.Equal(t, 3000, entry.Score, "player %s", entry.PlayerName)
	}
}

func TestService_Scoring(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob", "carol")
	alice, bob, carol := players["alice"], players["bob"], players["carol"]
	start(t, svc, ref, players["alice"])
	drawAll(t, svc, ref, players)

	snap, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)

	// drawAll iterates a map, so look up each player's drawing index from
	// the assignments instead of assuming submission order.
	drawingOf := make(map[int]int)
	for _, a := range snap.GuessAssignments {
		drawingOf[a.DrawingOwner] = a.DrawingIndex
	}

	// Guesses: on alice's drawing bob and carol lie; on bob's and carol's
	// drawings everyone lies too.
	guess(t, svc, ref, bob, drawingOf[alice.id], "bob-lie-a")
	guess(t, svc, ref, carol, drawingOf[alice.id], "carol-lie-a")
	guess(t, svc, ref, alice, drawingOf[bob.id], "alice-lie-b")
	guess(t, svc, ref, carol, drawingOf[bob.id], "carol-lie-b")
	guess(t, svc, ref, alice, drawingOf[carol.id], "alice-lie-c")
	snap = guess(t, svc, ref, bob, drawingOf[carol.id], "bob-lie-c")
	require.Equal(t, domain.PhaseGuessVotes, snap.Phase)

	// Votes:
	// alice's drawing: bob correct, carol picks bob's lie.
	// bob's drawing: alice and carol both correct (clean bonus for bob).
	// carol's drawing: alice picks bob's lie, bob correct.
	vote(t, svc, ref, bob, drawingOf[alice.id], snapPrompt(t, svc, ref, alice))
	vote(t, svc, ref, carol, drawingOf[alice.id], "bob-lie-a")
	vote(t, svc, ref, alice, drawingOf[bob.id], snapPrompt(t, svc, ref, bob))
	vote(t, svc, ref, carol, drawingOf[bob.id], snapPrompt(t, svc, ref, bob))
	vote(t, svc, ref, alice, drawingOf[carol.id], "bob-lie-c")
	snap = vote(t, svc, ref, bob, drawingOf[carol.id], snapPrompt(t, svc, ref, carol))

	require.Equal(t, domain.PhaseResults, snap.Phase)
	require.NotEmpty(t, snap.Scores)

	// alice: drawer +500 (1 fooled) + correct vote +1000          = 1500
	// bob: correct votes +2000 + fooled carol +500 + fooled alice
	//      +500 + clean drawer bonus +1000                        = 4000
	// carol: drawer +500 (1 fooled) + correct vote +1000          = 1500
	want := map[string]int{"alice": 1500, "bob": 4000, "carol": 1500}
	for _, entry := range snap.Scores {
		assert.Equal(t, want[entry.PlayerName], entry.Score, "player %s", entry.PlayerName)
	}
	assert.Equal(t, "bob", snap.Scores[0].PlayerName)
}

func snapPrompt(t *testing.T, svc *game.Service, ref string, p creds) string {
	t.Helper()

	prompt, err := svc.PlayerPrompt(context.Background(), game.PlayerPromptRequest{
		SessionRef: ref, PlayerID: p.id, AuthToken: p.token,
	})
	require.NoError(t, err)
	return prompt
}

func TestService_RevealWalk(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob")
	host := players["alice"]
	start(t, svc, ref, host)
	drawAll(t, svc, ref, players)
	guessAll(t, svc, ref, players)
	snap := voteAll(t, svc, ref, players)

	require.Equal(t, domain.PhaseResults, snap.Phase)
	require.NotNil(t, snap.Reveal)
	assert.Equal(t, 0, snap.Reveal.DrawingIndex)
	assert.Equal(t, domain.RevealGuesses, snap.Reveal.Stage)
	assert.NotEmpty(t, snap.Reveal.Guesses)
	assert.Empty(t, snap.Reveal.Votes)

	snap = advance(t, svc, ref, host)
	assert.Equal(t, domain.RevealVotes, snap.Reveal.Stage)
	assert.NotEmpty(t, snap.Reveal.Votes)
	assert.NotEmpty(t, snap.Reveal.ScoreDeltas)

	snap = advance(t, svc, ref, host)
	assert.Equal(t, 1, snap.Reveal.DrawingIndex)
	assert.Equal(t, domain.RevealGuesses, snap.Reveal.Stage)

	snap = advance(t, svc, ref, host)
	assert.Equal(t, domain.RevealVotes, snap.Reveal.Stage)

	snap = advance(t, svc, ref, host)
	assert.Equal(t, domain.RevealScores, snap.Reveal.Stage)
	assert.NotEmpty(t, snap.Reveal.ScoreDeltas)

	// single round: past the tally the game completes
	snap = advance(t, svc, ref, host)
	assert.Equal(t, domain.PhaseComplete, snap.Phase)

	_, err := svc.Advance(context.Background(), game.AdvanceRequest{SessionRef: ref, PlayerID: host.id, AuthToken: host.token})
	assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase))
}

func TestService_Results_betweenRounds(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, &domain.Settings{Rounds: 2}, "alice", "bob")
	host := players["alice"]

	_, err := svc.Results(context.Background(), ref)
	assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase), "no results before any round is scored")

	start(t, svc, ref, host)
	_, err = svc.Results(context.Background(), ref)
	assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase), "no results while round one is unscored")

	drawAll(t, svc, ref, players)
	guessAll(t, svc, ref, players)
	snap := voteAll(t, svc, ref, players)
	require.Equal(t, domain.PhaseResults, snap.Phase)

	// walk the reveal past round one into round two's drawings
	for snap.Phase == domain.PhaseResults {
		snap = advance(t, svc, ref, host)
	}
	require.Equal(t, domain.PhaseDrawings, snap.Phase)
	require.Equal(t, 2, snap.RoundNumber)

	// round one's summary stays available while round two is played
	resp, err := svc.Results(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Round)
	assert.Len(t, resp.Results, 2)
	assert.Len(t, resp.Scores, 2)
}

func TestService_ForceComplete(t *testing.T) {
	t.Parallel()

	t.Run("drawings: absent drawings are dropped", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob", "carol")
		host := players["alice"]
		start(t, svc, ref, host)

		// only alice draws
		prompt := snapPrompt(t, svc, ref, host)
		_, err := svc.SubmitDrawing(context.Background(), game.SubmitDrawingRequest{
			SessionRef: ref, PlayerID: host.id, AuthToken: host.token,
			Prompt: prompt, Image: []byte("img"),
		})
		require.NoError(t, err)

		snap, err := svc.ForceComplete(context.Background(), game.ForceCompleteRequest{SessionRef: ref})
		require.NoError(t, err)

		assert.Equal(t, domain.PhaseGuesses, snap.Phase)
		assert.Equal(t, 1, snap.Counts.Drawings)
		assert.Len(t, snap.GuessAssignments, 2)
	})

	t.Run("guesses: missing guesses become placeholder lies", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		host := players["alice"]
		start(t, svc, ref, host)
		drawAll(t, svc, ref, players)

		snap, err := svc.ForceComplete(context.Background(), game.ForceCompleteRequest{SessionRef: ref})
		require.NoError(t, err)

		assert.Equal(t, domain.PhaseGuessVotes, snap.Phase)
		assert.Equal(t, 2, snap.Counts.Guesses)
	})

	t.Run("votes: missing votes default to the true prompt", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, players := setup(t, svc, nil, "alice", "bob")
		host := players["alice"]
		start(t, svc, ref, host)
		drawAll(t, svc, ref, players)
		guessAll(t, svc, ref, players)

		snap, err := svc.ForceComplete(context.Background(), game.ForceCompleteRequest{SessionRef: ref})
		require.NoError(t, err)

		assert.Equal(t, domain.PhaseResults, snap.Phase)
		assert.Equal(t, 2, snap.Counts.Votes)
		// everyone voted the prompt: each drawer takes the clean bonus
		// and each voter scored
		for _, entry := range snap.Scores {
			assert.Equal(t, 2000, entry.Score)
		}
	})

	t.Run("lobby has nothing to force", func(t *testing.T) {
		t.Parallel()

		svc := makeService(t)
		ref, _ := setup(t, svc, nil, "alice", "bob")

		_, err := svc.ForceComplete(context.Background(), game.ForceCompleteRequest{SessionRef: ref})
		assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase))
	})
}

func TestService_ExactlyOnceTransition(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob", "carol", "dave")
	host := players["alice"]
	start(t, svc, ref, host)

	// Everyone submits their drawing concurrently, several times each. No
	// matter how the submissions interleave, the drawings phase must
	// resolve into guesses exactly once.
	var wg sync.WaitGroup
	for name, p := range players {
		prompt := snapPrompt(t, svc, ref, p)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(name string, p creds, i int) {
				defer wg.Done()
				_, err := svc.SubmitDrawing(context.Background(), game.SubmitDrawingRequest{
					SessionRef: ref, PlayerID: p.id, AuthToken: p.token,
					Prompt: prompt, Image: []byte(fmt.Sprintf("%s-%d", name, i)),
				})
				if err != nil {
					// later submissions may land after the phase advanced
					assert.True(t, errors.HasReason(err, errors.ReasonWrongPhase), "unexpected error: %v", err)
				}
			}(name, p, i)
		}
	}
	wg.Wait()

	snap, err := svc.Snapshot(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseGuesses, snap.Phase)
	assert.Equal(t, 4, snap.Counts.Drawings)

	events, err := svc.Events(context.Background(), ref)
	require.NoError(t, err)

	transitions := 0
	for _, e := range events {
		if e.Type == domain.RecordPhaseAdvanced && e.Detail == "drawings -> guesses" {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions, "drawings must resolve exactly once")
}

func TestService_EndToEnd_TwoPlayersOneRound(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, nil, "alice", "bob")
	host := players["alice"]

	start(t, svc, ref, host)
	drawAll(t, svc, ref, players)
	guessAll(t, svc, ref, players)
	snap := voteAll(t, svc, ref, players)
	require.Equal(t, domain.PhaseResults, snap.Phase)

	for snap.Phase == domain.PhaseResults {
		snap = advance(t, svc, ref, host)
	}
	require.Equal(t, domain.PhaseComplete, snap.Phase)

	results, err := svc.Results(context.Background(), ref)
	require.NoError(t, err)
	assert.Len(t, results.Results, 2)
	assert.Len(t, results.Scores, 2)

	events, err := svc.Events(context.Background(), ref)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.RecordSessionCreated, events[0].Type)
	assert.Equal(t, domain.RecordGameCompleted, events[len(events)-2].Type)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq, "event log must be gapless")
	}
}

func TestService_EndToEnd_FourPlayersTwoRounds(t *testing.T) {
	t.Parallel()

	svc := makeService(t)
	ref, players := setup(t, svc, &domain.Settings{Rounds: 2}, "alice", "bob", "carol", "dave")
	host := players["alice"]

	snap := start(t, svc, ref, host)
	require.Equal(t, 2, snap.TotalRounds)

	usedPrompts := make(map[string]struct{})
	for round := 1; round <= 2; round++ {
		require.Equal(t, round, snap.RoundNumber)
		require.Equal(t, domain.PhaseDrawings, snap.Phase)

		// prompts never repeat across rounds while the pool lasts
		for _, p := range players {
			prompt := snapPrompt(t, svc, ref, p)
			_, dup := usedPrompts[prompt]
			assert.False(t, dup, "prompt %q reused", prompt)
			usedPrompts[prompt] = struct{}{}
		}

		drawAll(t, svc, ref, players)
		guessAll(t, svc, ref, players)
		snap = voteAll(t, svc, ref, players)
		require.Equal(t, domain.PhaseResults, snap.Phase)

		for snap.Phase == domain.PhaseResults && snap.RoundNumber == round {
			snap = advance(t, svc, ref, host)
		}
	}

	require.Equal(t, domain.PhaseComplete, snap.Phase)
	assert.Len(t, snap.Scores, 4)

	for _, entry := range snap.Scores {
		assert.Greater(t, entry.Score, 0)
	}
}
