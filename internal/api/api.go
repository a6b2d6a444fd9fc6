package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
	"github.com/namvu/sketchwire/internal/event"
	"github.com/namvu/sketchwire/internal/game"
	"github.com/namvu/sketchwire/internal/leaderboard"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Game         *game.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// API is the HTTP surface of the engine. Every game command maps to one
// route; collaborators get push notifications over Redis pubsub.
type API struct {
	gs *game.Service
	ls *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		gs:     c.Game,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	g := c.Engine.Group("/api")
	g.POST("/games", a.createSession)
	g.GET("/games", a.listSessions)
	g.GET("/games/:gameID", a.getSnapshot)
	g.POST("/games/:gameID/join", a.join)
	g.POST("/games/:gameID/avatar", a.updateAvatar)
	g.POST("/games/:gameID/settings", a.updateSettings)
	g.POST("/games/:gameID/kick", a.kick)
	g.POST("/games/:gameID/start", a.start)
	g.GET("/games/:gameID/players/:playerID/prompt", a.getPrompt)
	g.POST("/games/:gameID/drawings", a.submitDrawing)
	g.GET("/games/:gameID/drawings/:index", a.getDrawing)
	g.POST("/games/:gameID/guesses", a.submitGuess)
	g.POST("/games/:gameID/votes", a.submitVote)
	g.POST("/games/:gameID/advance", a.advance)
	g.POST("/games/:gameID/force-complete", a.forceComplete)
	g.GET("/games/:gameID/results", a.getResults)
	g.GET("/games/:gameID/events", a.getEvents)
	g.GET("/games/:gameID/leaderboard", a.getLeaderboard)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNamePhaseAdvanced, func(ctx context.Context, e event.Event) error {
		return a.PublishPhaseAdvanced(ctx, e.(domain.EventPhaseAdvanced))
	})

	return a
}

func abortError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func (a *API) createSession(c *gin.Context) {
	var req game.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}

	snap, err := a.gs.CreateSession(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, snap)
}

func (a *API) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": a.gs.ListSessions(c.Request.Context())})
}

func (a *API) getSnapshot(c *gin.Context) {
	snap, err := a.gs.Snapshot(c.Request.Context(), c.Param("gameID"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) join(c *gin.Context) {
	var req game.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	resp, err := a.gs.Join(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) updateAvatar(c *gin.Context) {
	var req game.UpdateAvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.UpdateAvatar(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) updateSettings(c *gin.Context) {
	var req game.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) kick(c *gin.Context) {
	var req game.KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.Kick(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) start(c *gin.Context) {
	var req game.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.Start(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) getPrompt(c *gin.Context) {
	playerID, err := strconv.Atoi(c.Param("playerID"))
	if err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid player id %q", c.Param("playerID"))))
		return
	}

	prompt, err := a.gs.PlayerPrompt(c.Request.Context(), game.PlayerPromptRequest{
		SessionRef: c.Param("gameID"),
		PlayerID:   playerID,
		AuthToken:  c.Query("auth_token"),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

func (a *API) submitDrawing(c *gin.Context) {
	var req game.SubmitDrawingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.SubmitDrawing(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) getDrawing(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid drawing index %q", c.Param("index"))))
		return
	}

	image, err := a.gs.DrawingImage(c.Request.Context(), game.DrawingImageRequest{
		SessionRef:   c.Param("gameID"),
		DrawingIndex: index,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", image)
}

func (a *API) submitGuess(c *gin.Context) {
	var req game.SubmitGuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.SubmitGuess(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) submitVote(c *gin.Context) {
	var req game.SubmitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.SubmitVote(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) advance(c *gin.Context) {
	var req game.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err), errors.WithMessagef("invalid request body")))
		return
	}
	req.SessionRef = c.Param("gameID")

	snap, err := a.gs.Advance(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) forceComplete(c *gin.Context) {
	snap, err := a.gs.ForceComplete(c.Request.Context(), game.ForceCompleteRequest{
		SessionRef: c.Param("gameID"),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) getResults(c *gin.Context) {
	resp, err := a.gs.Results(c.Request.Context(), c.Param("gameID"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) getEvents(c *gin.Context) {
	events, err := a.gs.Events(c.Request.Context(), c.Param("gameID"))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (a *API) getLeaderboard(c *gin.Context) {
	id, err := a.gs.Resolve(c.Param("gameID"))
	if err != nil {
		abortError(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		SessionID: id,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}
