package domain

import "time"

// Snapshot is the immutable read model of a session. One is published
// atomically after every committed mutation; readers never observe a
// partially applied command.
type Snapshot struct {
	SessionID      string    `json:"session_id"`
	JoinCode       string    `json:"join_code"`
	Phase          Phase     `json:"phase"`
	PhaseStartedAt time.Time `json:"phase_started_at"`
	Version        int       `json:"version"`

	RoundNumber int      `json:"round_number"`
	TotalRounds int      `json:"total_rounds"`
	HostID      int      `json:"host_id"`
	Settings    Settings `json:"settings"`
	CanJoin     bool     `json:"can_join"`

	Players []PlayerInfo `json:"players"`
	Counts  Counts       `json:"counts"`

	GuessAssignments []GuessAssignment `json:"guess_assignments,omitempty"`
	VoteAssignments  []VoteAssignment  `json:"vote_assignments,omitempty"`

	Reveal  *Reveal         `json:"reveal,omitempty"`
	Results []DrawingResult `json:"results,omitempty"`
	Scores  []ScoreEntry    `json:"scores,omitempty"`
}

type PlayerInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"is_host"`
	HasAvatar bool   `json:"has_avatar"`
}

type Counts struct {
	Prompts  int `json:"prompts"`
	Drawings int `json:"drawings"`
	Guesses  int `json:"guesses"`
	Votes    int `json:"votes"`
}

// GuessAssignment is one unit of outstanding guess work: the named player
// still owes a guess for the indexed drawing.
type GuessAssignment struct {
	PlayerID     int `json:"player_id"`
	DrawingIndex int `json:"drawing_index"`
	DrawingOwner int `json:"drawing_owner"`
}

// VoteAssignment is one unit of outstanding vote work, carrying the option
// set the voter must choose from.
type VoteAssignment struct {
	PlayerID     int          `json:"player_id"`
	DrawingIndex int          `json:"drawing_index"`
	DrawingOwner int          `json:"drawing_owner"`
	Options      []VoteOption `json:"options"`
}

// Reveal is the currently disclosed step of the results sequence.
type Reveal struct {
	DrawingIndex int          `json:"drawing_index"`
	Stage        RevealStage  `json:"stage"`
	DrawingOwner int          `json:"drawing_owner,omitempty"`
	Prompt       string       `json:"prompt,omitempty"`
	Guesses      []GuessInfo  `json:"guesses,omitempty"`
	Votes        []VoteInfo   `json:"votes,omitempty"`
	ScoreDeltas  []ScoreDelta `json:"score_deltas,omitempty"`
}

type GuessInfo struct {
	PlayerID   int    `json:"player_id"`
	PlayerName string `json:"player_name"`
	Text       string `json:"text"`
}

type VoteInfo struct {
	PlayerID   int            `json:"player_id"`
	PlayerName string         `json:"player_name"`
	Text       string         `json:"text"`
	Type       VoteOptionType `json:"type"`
}

// DrawingResult is the full per-drawing breakdown shown once a round reaches
// the results phase.
type DrawingResult struct {
	DrawingIndex int          `json:"drawing_index"`
	DrawingOwner int          `json:"drawing_owner"`
	OwnerName    string       `json:"owner_name"`
	Prompt       string       `json:"prompt"`
	Guesses      []GuessInfo  `json:"guesses"`
	Votes        []VoteInfo   `json:"votes"`
	ScoreDeltas  []ScoreDelta `json:"score_deltas"`
}

type ScoreEntry struct {
	PlayerID   int    `json:"player_id"`
	PlayerName string `json:"player_name"`
	Score      int    `json:"score"`
}

type ScoreDelta struct {
	PlayerID   int      `json:"player_id"`
	PlayerName string   `json:"player_name"`
	Delta      int      `json:"delta"`
	Reasons    []string `json:"reasons,omitempty"`
}
