package game

import (
	"fmt"
	"sort"

	"github.com/namvu/sketchwire/internal/domain"
)

// ScoreRules are the point values applied when a round is scored. The shape
// of scoring is fixed; only the values are tunable.
type ScoreRules struct {
	CorrectVote      int `mapstructure:"correct_vote"`
	FooledVoter      int `mapstructure:"fooled_voter"`
	DrawerPerFooled  int `mapstructure:"drawer_per_fooled"`
	DrawerCleanBonus int `mapstructure:"drawer_clean_bonus"`
}

func DefaultScoreRules() ScoreRules {
	return ScoreRules{
		CorrectVote:      1000,
		FooledVoter:      500,
		DrawerPerFooled:  500,
		DrawerCleanBonus: 1000,
	}
}

func (r ScoreRules) orDefault() ScoreRules {
	if r == (ScoreRules{}) {
		return DefaultScoreRules()
	}
	return r
}

// drawingDeltas computes the point changes one drawing produced: correct
// voters score, guess authors score per voter they fooled, and the drawer
// scores per fooled voter or takes the clean bonus when nobody picked a lie.
func drawingDeltas(s *domain.Session, r *domain.Round, drawingIndex int, rules ScoreRules) []domain.ScoreDelta {
	if drawingIndex < 0 || drawingIndex >= len(r.Drawings) {
		return nil
	}

	byPlayer := make(map[int]*domain.ScoreDelta)
	add := func(playerID, delta int, reason string) {
		if playerID <= 0 || delta == 0 {
			return
		}
		d, ok := byPlayer[playerID]
		if !ok {
			d = &domain.ScoreDelta{PlayerID: playerID, PlayerName: playerName(s, playerID)}
			byPlayer[playerID] = d
		}
		d.Delta += delta
		if reason != "" {
			d.Reasons = append(d.Reasons, reason)
		}
	}

	fooled := 0
	for _, v := range r.Votes {
		if v.DrawingIndex != drawingIndex {
			continue
		}
		switch v.Type {
		case domain.OptionPrompt:
			add(v.VoterID, rules.CorrectVote, "Correct vote")
		case domain.OptionGuess:
			if ownerID := guessOwner(r, drawingIndex, v.Text); ownerID != 0 {
				fooled++
				add(ownerID, rules.FooledVoter, "Fooled "+playerName(s, v.VoterID))
			}
		}
	}

	drawer := r.Drawings[drawingIndex].PlayerID
	if fooled == 0 {
		add(drawer, rules.DrawerCleanBonus, "No one picked a lie")
	} else {
		add(drawer, rules.DrawerPerFooled*fooled, fmt.Sprintf("%d players picked lies", fooled))
	}

	out := make([]domain.ScoreDelta, 0, len(byPlayer))
	for _, d := range byPlayer {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Delta == out[j].Delta {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].Delta > out[j].Delta
	})
	return out
}

// roundDeltas merges the per-drawing deltas of one round into per-player
// totals, ordered by delta descending.
func roundDeltas(s *domain.Session, r *domain.Round, rules ScoreRules) []domain.ScoreDelta {
	byPlayer := make(map[int]*domain.ScoreDelta)
	for i := range r.Drawings {
		for _, d := range drawingDeltas(s, r, i, rules) {
			m, ok := byPlayer[d.PlayerID]
			if !ok {
				m = &domain.ScoreDelta{PlayerID: d.PlayerID, PlayerName: d.PlayerName}
				byPlayer[d.PlayerID] = m
			}
			m.Delta += d.Delta
			m.Reasons = append(m.Reasons, d.Reasons...)
		}
	}

	out := make([]domain.ScoreDelta, 0, len(byPlayer))
	for _, d := range byPlayer {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Delta == out[j].Delta {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].Delta > out[j].Delta
	})
	return out
}

// totalScores folds every scored round into cumulative per-player totals,
// sorted by score descending then join order. Players start at zero.
func totalScores(s *domain.Session, rules ScoreRules) []domain.ScoreEntry {
	totals := make(map[int]int, len(s.Players))
	for _, p := range s.Players {
		totals[p.ID] = 0
	}

	for i := range s.Rounds {
		r := &s.Rounds[i]
		if !r.Scored {
			continue
		}
		for _, d := range roundDeltas(s, r, rules) {
			totals[d.PlayerID] += d.Delta
		}
	}

	out := make([]domain.ScoreEntry, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, domain.ScoreEntry{PlayerID: p.ID, PlayerName: p.Name, Score: totals[p.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func playerName(s *domain.Session, playerID int) string {
	if p := s.FindPlayer(playerID); p != nil {
		return p.Name
	}
	return fmt.Sprintf("Player %d", playerID)
}
