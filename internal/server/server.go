package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/namvu/sketchwire/internal/api"
	"github.com/namvu/sketchwire/internal/event"
	"github.com/namvu/sketchwire/internal/game"
	"github.com/namvu/sketchwire/internal/leaderboard"
	"github.com/namvu/sketchwire/internal/prompts"
	"github.com/namvu/sketchwire/internal/registry"
	"github.com/namvu/sketchwire/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	// Postgres is optional: with no Addr the prompt library falls back to
	// its built-in list and score archiving is disabled.
	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Game struct {
		Rounds      int
		MaxPlayers  int
		MaxSessions int
		ReapMinutes int

		Scoring game.ScoreRules

		Timers struct {
			DrawSeconds   int
			GuessSeconds  int
			VoteSeconds   int
			RevealSeconds int
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	registry *registry.Registry

	service struct {
		game        *game.Service
		leaderboard *leaderboard.Service
		archive     *leaderboard.Archive
	}

	http *http.Server
	stop chan struct{}
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c, stop: make(chan struct{})}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	if s.c.Postgres.Addr == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	rules := s.c.Game.Scoring
	s.registry = registry.New(registry.Config{
		Snapshot:    game.NewSnapshotBuilder(rules),
		MaxSessions: s.c.Game.MaxSessions,
	})

	gc := game.Config{
		Registry: s.registry,
		EventBus: s.eb,
		Prompts:  prompts.NewLibrary(s.infra.postgres),
		Rules:    rules,
		Timers: game.Timers{
			Draw:   time.Duration(s.c.Game.Timers.DrawSeconds) * time.Second,
			Guess:  time.Duration(s.c.Game.Timers.GuessSeconds) * time.Second,
			Vote:   time.Duration(s.c.Game.Timers.VoteSeconds) * time.Second,
			Reveal: time.Duration(s.c.Game.Timers.RevealSeconds) * time.Second,
		},
	}
	gc.Defaults.Rounds = s.c.Game.Rounds
	gc.Defaults.MaxPlayers = s.c.Game.MaxPlayers
	s.service.game = game.NewService(gc)

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.archive = leaderboard.NewArchive(s.eb, s.infra.postgres)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		Game:         s.service.game,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		s.reapLoop(ctx)
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// reapLoop drops completed sessions so the registry doesn't grow without
// bound. Finished games stay queryable until the reap age passes.
func (s *Server) reapLoop(ctx context.Context) {
	age := time.Duration(s.c.Game.ReapMinutes) * time.Minute
	if age <= 0 {
		age = time.Hour
	}

	t := time.NewTicker(time.Minute)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if n := s.registry.Reap(age); n > 0 {
				slog.InfoContext(ctx, fmt.Sprintf("server: reaped %d completed sessions", n))
			}
		}
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(s.stop)
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
