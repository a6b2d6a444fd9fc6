package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is one entry of a session's append-only log. Seq increases
// monotonically within a session; readers see records in append order.
type EventRecord struct {
	Seq      int       `json:"seq"`
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	PlayerID int       `json:"player_id,omitempty"`
	Round    int       `json:"round,omitempty"`
	Phase    Phase     `json:"phase,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Event log record types.
const (
	RecordSessionCreated  = "session.created"
	RecordPlayerJoined    = "player.joined"
	RecordPlayerRejoined  = "player.rejoined"
	RecordPlayerKicked    = "player.kicked"
	RecordAvatarUpdated   = "avatar.updated"
	RecordSettingsUpdated = "settings.updated"
	RecordGameStarted     = "game.started"
	RecordPromptsAssigned = "prompts.assigned"
	RecordDrawingReceived = "drawing.submitted"
	RecordGuessReceived   = "guess.submitted"
	RecordVoteReceived    = "vote.submitted"
	RecordPhaseAdvanced   = "phase.advanced"
	RecordRoundScored     = "round.scored"
	RecordGameCompleted   = "game.completed"
)

// Bus event names.
const (
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNamePhaseAdvanced      = "phase.advanced"
	EventNameRoundScored        = "round.scored"
)

// Score is one player's cumulative total within a session.
type Score struct {
	SessionID  string
	PlayerID   int
	PlayerName string
	TotalScore decimal.Decimal
	UpdateTime time.Time
}

// Leaderboard lists players and their cumulative scores within a session,
// sorted by score in descending order.
type Leaderboard struct {
	SessionID string
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerName string
	Score      float64
}

type EventScoreUpdated struct {
	Score Score
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventPhaseAdvanced struct {
	SessionID string
	Round     int
	From      Phase
	To        Phase
}

func (EventPhaseAdvanced) Name() string { return EventNamePhaseAdvanced }

type EventRoundScored struct {
	SessionID string
	Round     int
	Deltas    []ScoreDelta
}

func (EventRoundScored) Name() string { return EventNameRoundScored }
