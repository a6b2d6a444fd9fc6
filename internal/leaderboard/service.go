package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
	"github.com/namvu/sketchwire/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps a cumulative per-session leaderboard in a Redis sorted set,
// fed by score events from the game engine.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns the leaderboard for a session, including all players and their scores.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.SessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: session=%s", req.SessionID))
	}

	scores := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		scores = append(scores, domain.LeaderboardEntry{
			PlayerName: z.Member.(string),
			Score:      z.Score,
		})
	}

	return &domain.Leaderboard{
		SessionID: req.SessionID,
		Entries:   scores,
	}, nil
}

// UpdateLeaderboard overwrites the player's score in the leaderboard.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	sc := e.Score

	// TODO: retry on error
	if err := s.redis.ZAdd(ctx, s.getLeaderboardKey(sc.SessionID), redis.Z{
		Score:  sc.TotalScore.InexactFloat64(),
		Member: sc.PlayerName,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, sc)
}

// schedulePublishLeaderboard publishes the leaderboard changes after a certain interval.
// A round being scored updates every player's total at once, so batching the
// published events keeps subscribers from seeing one partial leaderboard per player.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sc domain.Score) error {
	// This is a simple way to prevent multiple instances of the service from publishing the leaderboard.
	// But it's not perfect and can be improved.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(sc.SessionID), sc.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, sc)
}

func (s *Service) publishLeaderboard(ctx context.Context, sc domain.Score) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		SessionID: sc.SessionID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", sc.SessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(sc.SessionID), sc.UpdateTime.UnixMilli(), publishInterval).Err()
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
