package game

import (
	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/registry"
)

// NewSnapshotBuilder returns the read-model builder the registry publishes
// after every committed mutation. The builder runs under the session's write
// lock and copies everything it exposes.
func NewSnapshotBuilder(rules ScoreRules) registry.SnapshotFunc {
	rules = rules.orDefault()

	return func(s *domain.Session) *domain.Snapshot {
		snap := &domain.Snapshot{
			SessionID:      s.ID,
			JoinCode:       s.JoinCode,
			Phase:          s.Phase,
			PhaseStartedAt: s.PhaseStartedAt,
			Version:        len(s.Events),
			TotalRounds:    s.TotalRounds,
			HostID:         s.HostID,
			Settings:       s.Settings,
			CanJoin:        s.CanJoin(),
			Players:        make([]domain.PlayerInfo, 0, len(s.Players)),
		}

		for _, p := range s.Players {
			snap.Players = append(snap.Players, domain.PlayerInfo{
				ID:        p.ID,
				Name:      p.Name,
				IsHost:    s.IsHost(p.ID),
				HasAvatar: len(p.Avatar) > 0,
			})
		}

		r := s.CurrentRound()
		if r == nil {
			return snap
		}

		snap.RoundNumber = r.Number
		snap.Counts = domain.Counts{
			Prompts:  len(r.Prompts),
			Drawings: len(r.Drawings),
			Guesses:  len(r.Guesses),
			Votes:    len(r.Votes),
		}

		switch s.Phase {
		case domain.PhaseGuesses:
			snap.GuessAssignments = pendingGuesses(s, r)
		case domain.PhaseGuessVotes:
			snap.VoteAssignments = pendingVotes(s, r)
		case domain.PhaseResults:
			snap.Reveal = buildReveal(s, r, rules)
			snap.Results = buildResults(s, r, rules)
		}

		if anyRoundScored(s) {
			snap.Scores = totalScores(s, rules)
		}
		if s.Phase == domain.PhaseComplete {
			snap.Results = buildResults(s, s.CurrentRound(), rules)
		}

		return snap
	}
}

func lastScoredRound(s *domain.Session) *domain.Round {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		if s.Rounds[i].Scored {
			return &s.Rounds[i]
		}
	}
	return nil
}

func anyRoundScored(s *domain.Session) bool {
	for i := range s.Rounds {
		if s.Rounds[i].Scored {
			return true
		}
	}
	return false
}

// buildReveal exposes only what the current reveal step has disclosed.
func buildReveal(s *domain.Session, r *domain.Round, rules ScoreRules) *domain.Reveal {
	rev := &domain.Reveal{
		DrawingIndex: r.RevealIndex,
		Stage:        r.RevealStage,
	}

	if r.RevealStage == domain.RevealScores {
		rev.ScoreDeltas = roundDeltas(s, r, rules)
		return rev
	}

	if r.RevealIndex < 0 || r.RevealIndex >= len(r.Drawings) {
		return rev
	}

	d := r.Drawings[r.RevealIndex]
	rev.DrawingOwner = d.PlayerID
	rev.Prompt = d.Prompt
	rev.Guesses = guessInfos(s, r, r.RevealIndex)

	if r.RevealStage == domain.RevealVotes {
		rev.Votes = voteInfos(s, r, r.RevealIndex)
		rev.ScoreDeltas = drawingDeltas(s, r, r.RevealIndex, rules)
	}

	return rev
}

// buildResults is the full per-drawing breakdown of a scored round.
func buildResults(s *domain.Session, r *domain.Round, rules ScoreRules) []domain.DrawingResult {
	if r == nil || !r.Scored {
		return nil
	}

	out := make([]domain.DrawingResult, 0, len(r.Drawings))
	for i, d := range r.Drawings {
		out = append(out, domain.DrawingResult{
			DrawingIndex: i,
			DrawingOwner: d.PlayerID,
			OwnerName:    playerName(s, d.PlayerID),
			Prompt:       d.Prompt,
			Guesses:      guessInfos(s, r, i),
			Votes:        voteInfos(s, r, i),
			ScoreDeltas:  drawingDeltas(s, r, i, rules),
		})
	}
	return out
}

func guessInfos(s *domain.Session, r *domain.Round, drawingIndex int) []domain.GuessInfo {
	var out []domain.GuessInfo
	for _, g := range r.Guesses {
		if g.DrawingIndex != drawingIndex {
			continue
		}
		out = append(out, domain.GuessInfo{
			PlayerID:   g.GuesserID,
			PlayerName: playerName(s, g.GuesserID),
			Text:       g.Text,
		})
	}
	return out
}

func voteInfos(s *domain.Session, r *domain.Round, drawingIndex int) []domain.VoteInfo {
	var out []domain.VoteInfo
	for _, v := range r.Votes {
		if v.DrawingIndex != drawingIndex {
			continue
		}
		out = append(out, domain.VoteInfo{
			PlayerID:   v.VoterID,
			PlayerName: playerName(s, v.VoterID),
			Text:       v.Text,
			Type:       v.Type,
		})
	}
	return out
}
