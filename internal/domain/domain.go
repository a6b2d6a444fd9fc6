package domain

import (
	"strings"
	"time"
)

// Phase is a stage of the round cycle. Phases advance in a fixed order and
// never skip: lobby -> drawings -> guesses -> guesses-votes -> results, then
// either back to drawings for the next round or to complete.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseDrawings   Phase = "drawings"
	PhaseGuesses    Phase = "guesses"
	PhaseGuessVotes Phase = "guesses-votes"
	PhaseResults    Phase = "results"
	PhaseComplete   Phase = "complete"
)

// RevealStage is a sub-step within the results phase, exposed through
// repeated advance calls: per drawing the guesses are shown, then the votes,
// and after the last drawing the round tally.
type RevealStage string

const (
	RevealGuesses RevealStage = "guesses"
	RevealVotes   RevealStage = "votes"
	RevealScores  RevealStage = "scores"
)

type VoteOptionType string

const (
	OptionPrompt VoteOptionType = "prompt"
	OptionGuess  VoteOptionType = "guess"
)

// Settings are host-tunable while the session is in the lobby.
type Settings struct {
	Rounds         int    `json:"rounds"`
	MaxPlayers     int    `json:"max_players"`
	LobbyLocked    bool   `json:"lobby_locked"`
	PromptCategory string `json:"prompt_category,omitempty"`
}

// Player is a seat in a session. The auth token is issued at join and never
// rotates; every mutating command must present it.
type Player struct {
	ID        int
	Name      string
	Avatar    []byte
	AuthToken string
	JoinedAt  time.Time
}

// PromptAssignment binds one player to the prompt they must draw this round.
type PromptAssignment struct {
	PlayerID int
	Text     string
}

// Drawing is a submitted image together with the prompt it was drawn for.
type Drawing struct {
	PlayerID int
	Prompt   string
	Image    []byte
}

// Guess is one player's fake prompt for a drawing they do not own.
type Guess struct {
	DrawingIndex int
	GuesserID    int
	Text         string
}

// VoteOption is a selectable answer during voting: either the drawing's true
// prompt or one of the distinct guesses submitted for it.
type VoteOption struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Type    VoteOptionType `json:"type"`
	OwnerID int            `json:"owner_id"`
}

// Vote records the option a voter chose for a drawing.
type Vote struct {
	DrawingIndex int
	VoterID      int
	OptionID     string
	Text         string
	Type         VoteOptionType
}

// Round holds everything produced during one round of play.
type Round struct {
	Number      int
	Prompts     []PromptAssignment
	Drawings    []Drawing
	Guesses     []Guess
	Votes       []Vote
	RevealIndex int
	RevealStage RevealStage
	Scored      bool
}

// Session is one play-through of the game. It exclusively owns its players,
// rounds and event log; nothing here outlives the session. All mutation goes
// through the registry's serialized update path.
type Session struct {
	ID             string
	JoinCode       string
	Phase          Phase
	PhaseStartedAt time.Time
	Settings       Settings
	TotalRounds    int
	HostID         int
	Players        []Player
	Rounds         []Round
	UsedPrompts    map[string]struct{}
	KickedNames    map[string]struct{}
	Events         []EventRecord
	CreatedAt      time.Time
}

// CurrentRound returns the round in progress, or nil before the first start.
func (s *Session) CurrentRound() *Round {
	if len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// FindPlayer returns the player with the given id, or nil.
func (s *Session) FindPlayer(id int) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// FindPlayerByName matches case-insensitively; join reclaims seats by name.
func (s *Session) FindPlayerByName(name string) *Player {
	for i := range s.Players {
		if strings.EqualFold(s.Players[i].Name, name) {
			return &s.Players[i]
		}
	}
	return nil
}

// IsHost reports whether the player holds the host seat (join order 0).
func (s *Session) IsHost(playerID int) bool {
	return playerID != 0 && playerID == s.HostID
}

// CanJoin reports whether a new player may take a seat right now.
func (s *Session) CanJoin() bool {
	if s.Phase != PhaseLobby || s.Settings.LobbyLocked {
		return false
	}
	return s.Settings.MaxPlayers == 0 || len(s.Players) < s.Settings.MaxPlayers
}

// FindDrawing returns the index of the player's drawing this round, or -1.
func (r *Round) FindDrawing(playerID int) int {
	for i := range r.Drawings {
		if r.Drawings[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// PromptFor returns the prompt assigned to the player this round.
func (r *Round) PromptFor(playerID int) (string, bool) {
	for _, p := range r.Prompts {
		if p.PlayerID == playerID {
			return p.Text, true
		}
	}
	return "", false
}

// HasGuess reports whether the player already guessed on the drawing.
func (r *Round) HasGuess(drawingIndex, playerID int) bool {
	for _, g := range r.Guesses {
		if g.DrawingIndex == drawingIndex && g.GuesserID == playerID {
			return true
		}
	}
	return false
}

// HasVote reports whether the player already voted on the drawing.
func (r *Round) HasVote(drawingIndex, playerID int) bool {
	for _, v := range r.Votes {
		if v.DrawingIndex == drawingIndex && v.VoterID == playerID {
			return true
		}
	}
	return false
}
