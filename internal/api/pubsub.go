package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/namvu/sketchwire/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		PlayerName string `json:"player_name"`
		Score      string `json:"score"`
	}

	PhaseChange struct {
		SessionID string `json:"session_id"`
		Round     int    `json:"round"`
		From      string `json:"from"`
		To        string `json:"to"`
	}
)

// PublishLeaderboardUpdated pushes the new standings to the session's pubsub
// channel so connected clients refresh without polling.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := Leaderboard{
		SessionID: l.SessionID,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			PlayerName: entry.PlayerName,
			Score:      strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	return a.publishNotification(ctx, l.SessionID, e.Name(), data)
}

// PublishPhaseAdvanced notifies the session channel of every phase change.
func (a *API) PublishPhaseAdvanced(ctx context.Context, e domain.EventPhaseAdvanced) error {
	return a.publishNotification(ctx, e.SessionID, e.Name(), PhaseChange{
		SessionID: e.SessionID,
		Round:     e.Round,
		From:      string(e.From),
		To:        string(e.To),
	})
}

func (a *API) publishNotification(ctx context.Context, sessionID, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:game:%s", a.prefix, sessionID), b).Err()
}
