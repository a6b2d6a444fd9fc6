package game

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
)

const (
	voteOptionIDPrompt      = "prompt"
	voteOptionIDGuessPrefix = "guess-"
)

// PromptSource supplies up to n prompt texts for a category, excluding texts
// already used by the session. Returning fewer than n is not an error.
type PromptSource interface {
	Draw(ctx context.Context, n int, category string, exclude map[string]struct{}) ([]string, error)
}

// assignPrompts gives every player one prompt for the current round. Prompts
// are drawn without replacement across the whole session; only when the pool
// runs dry may a text repeat, and even then no two players share a prompt
// within one round unless the pool is smaller than the roster.
func (svc *Service) assignPrompts(ctx context.Context, s *domain.Session) error {
	r := s.CurrentRound()
	if r == nil || len(r.Prompts) > 0 {
		return errors.Internal(fmt.Errorf("game: prompts already assigned"))
	}

	n := len(s.Players)
	texts, err := svc.c.Prompts.Draw(ctx, n, s.Settings.PromptCategory, s.UsedPrompts)
	if err != nil {
		return errors.Internal(fmt.Errorf("game: draw prompts: %w", err))
	}

	if len(texts) < n {
		// Pool exhausted: allow reuse across rounds, still distinct in-round.
		more, err := svc.c.Prompts.Draw(ctx, n-len(texts), s.Settings.PromptCategory, textSet(texts))
		if err != nil {
			return errors.Internal(fmt.Errorf("game: draw prompts: %w", err))
		}
		texts = append(texts, more...)
	}
	if len(texts) == 0 {
		return errors.Internal(fmt.Errorf("game: prompt pool is empty"))
	}

	for i, p := range s.Players {
		text := texts[i%len(texts)]
		r.Prompts = append(r.Prompts, domain.PromptAssignment{PlayerID: p.ID, Text: text})
		s.UsedPrompts[text] = struct{}{}
	}

	return nil
}

func textSet(texts []string) map[string]struct{} {
	m := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		m[t] = struct{}{}
	}
	return m
}

// pendingGuesses lists the (drawing, guesser) pairs still missing a guess:
// every player owes one guess per drawing they do not own. Order follows
// drawing submission order, then roster order.
func pendingGuesses(s *domain.Session, r *domain.Round) []domain.GuessAssignment {
	var out []domain.GuessAssignment
	for i := range r.Drawings {
		for _, p := range s.Players {
			if p.ID == r.Drawings[i].PlayerID || r.HasGuess(i, p.ID) {
				continue
			}
			out = append(out, domain.GuessAssignment{
				PlayerID:     p.ID,
				DrawingIndex: i,
				DrawingOwner: r.Drawings[i].PlayerID,
			})
		}
	}
	return out
}

// pendingVotes lists the (drawing, voter) pairs still missing a vote, with
// the option set each voter must choose from.
func pendingVotes(s *domain.Session, r *domain.Round) []domain.VoteAssignment {
	var out []domain.VoteAssignment
	for i := range r.Drawings {
		var options []domain.VoteOption
		for _, p := range s.Players {
			if p.ID == r.Drawings[i].PlayerID || r.HasVote(i, p.ID) {
				continue
			}
			if options == nil {
				options = voteOptions(r, i)
			}
			out = append(out, domain.VoteAssignment{
				PlayerID:     p.ID,
				DrawingIndex: i,
				DrawingOwner: r.Drawings[i].PlayerID,
				Options:      options,
			})
		}
	}
	return out
}

// voteOptions builds the ballot for a drawing: the true prompt plus every
// distinct guess text. A guess equal to the prompt folds into the prompt
// option; duplicate guesses keep their first author. Order is shuffled
// deterministically per drawing so clients cannot infer the prompt from
// position, yet every voter sees the same ballot.
func voteOptions(r *domain.Round, drawingIndex int) []domain.VoteOption {
	if drawingIndex < 0 || drawingIndex >= len(r.Drawings) {
		return nil
	}

	prompt := r.Drawings[drawingIndex].Prompt
	seen := map[string]struct{}{prompt: {}}
	options := []domain.VoteOption{{
		ID:      voteOptionIDPrompt,
		Text:    prompt,
		Type:    domain.OptionPrompt,
		OwnerID: r.Drawings[drawingIndex].PlayerID,
	}}

	for _, g := range r.Guesses {
		if g.DrawingIndex != drawingIndex {
			continue
		}
		if _, dup := seen[g.Text]; dup {
			continue
		}
		seen[g.Text] = struct{}{}
		options = append(options, domain.VoteOption{
			ID:      voteOptionIDGuessPrefix + strconv.Itoa(g.GuesserID),
			Text:    g.Text,
			Type:    domain.OptionGuess,
			OwnerID: g.GuesserID,
		})
	}

	if len(options) > 1 {
		seed := prompt + ":" + strconv.Itoa(drawingIndex)
		sort.Slice(options, func(i, j int) bool {
			left := optionOrderKey(seed, options[i].ID+":"+options[i].Text)
			right := optionOrderKey(seed, options[j].ID+":"+options[j].Text)
			if left == right {
				return options[i].ID < options[j].ID
			}
			return left < right
		})
	}

	return options
}

func optionOrderKey(seed, option string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(option))
	return h.Sum64()
}

// selectVoteOption resolves a voter's choice by option id, or by exact text
// when no id is given.
func selectVoteOption(options []domain.VoteOption, choiceID, choiceText string) (domain.VoteOption, bool) {
	if id := strings.TrimSpace(choiceID); id != "" {
		for _, o := range options {
			if o.ID == id {
				return o, true
			}
		}
		return domain.VoteOption{}, false
	}

	if text := strings.TrimSpace(choiceText); text != "" {
		for _, o := range options {
			if o.Text == text {
				return o, true
			}
		}
	}
	return domain.VoteOption{}, false
}

// guessOwner returns the first author of the given guess text on a drawing.
func guessOwner(r *domain.Round, drawingIndex int, text string) int {
	for _, g := range r.Guesses {
		if g.DrawingIndex == drawingIndex && g.Text == text {
			return g.GuesserID
		}
	}
	return 0
}

// fillMissingGuesses appends a placeholder lie for every pending pair, used
// when the host or a timer force-completes the guesses phase.
func fillMissingGuesses(s *domain.Session, r *domain.Round) int {
	pending := pendingGuesses(s, r)
	for _, p := range pending {
		text := placeholderGuess(r, p.DrawingIndex, p.PlayerID)
		r.Guesses = append(r.Guesses, domain.Guess{
			DrawingIndex: p.DrawingIndex,
			GuesserID:    p.PlayerID,
			Text:         text,
		})
	}
	return len(pending)
}

func placeholderGuess(r *domain.Round, drawingIndex, playerID int) string {
	base := "Auto guess " + strconv.Itoa(playerID)
	text := base
	for suffix := 2; hasGuessText(r, drawingIndex, text) || text == r.Drawings[drawingIndex].Prompt; suffix++ {
		text = fmt.Sprintf("%s #%d", base, suffix)
	}
	return text
}

func hasGuessText(r *domain.Round, drawingIndex int, text string) bool {
	for _, g := range r.Guesses {
		if g.DrawingIndex == drawingIndex && g.Text == text {
			return true
		}
	}
	return false
}

// fillMissingVotes defaults every pending pair to the true prompt.
func fillMissingVotes(s *domain.Session, r *domain.Round) int {
	pending := pendingVotes(s, r)
	for _, p := range pending {
		r.Votes = append(r.Votes, domain.Vote{
			DrawingIndex: p.DrawingIndex,
			VoterID:      p.PlayerID,
			OptionID:     voteOptionIDPrompt,
			Text:         r.Drawings[p.DrawingIndex].Prompt,
			Type:         domain.OptionPrompt,
		})
	}
	return len(pending)
}
