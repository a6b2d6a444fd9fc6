package game

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
	"github.com/namvu/sketchwire/internal/event"
	"github.com/namvu/sketchwire/internal/registry"
)

const (
	minPlayers = 2
	maxRounds  = 10
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchwire_commands_total",
		Help: "Commands processed, by command and outcome.",
	}, []string{"command", "status"})

	phaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchwire_phase_transitions_total",
		Help: "Phase transitions, by destination phase.",
	}, []string{"to"})
)

type Config struct {
	Registry *registry.Registry
	EventBus *event.Bus
	Prompts  PromptSource
	Rules    ScoreRules
	Timers   Timers
	Defaults domain.Settings
}

// Service is the game engine. Every command funnels through the registry's
// per-session update path, so commands on one session are strictly ordered
// and phase transitions happen exactly once.
type Service struct {
	c Config
}

func NewService(c Config) *Service {
	c.Rules = c.Rules.orDefault()
	if c.Defaults.Rounds == 0 {
		c.Defaults.Rounds = 1
	}

	return &Service{c: c}
}

// txn accumulates post-commit work while a mutation runs under the session
// lock: bus events publish and timers arm only after the update commits.
type txn struct {
	bus        []event.Event
	reschedule bool
}

func (t *txn) setPhase(s *domain.Session, to domain.Phase) {
	from := s.Phase
	s.Phase = to
	s.PhaseStartedAt = time.Now()
	record(s, domain.RecordPhaseAdvanced, 0, string(from)+" -> "+string(to))

	t.bus = append(t.bus, domain.EventPhaseAdvanced{
		SessionID: s.ID,
		Round:     roundNumber(s),
		From:      from,
		To:        to,
	})
	t.reschedule = true
	phaseTransitions.WithLabelValues(string(to)).Inc()
}

func (svc *Service) commit(ctx context.Context, snap *domain.Snapshot, tx *txn) {
	for _, e := range tx.bus {
		svc.c.EventBus.Publish(ctx, e)
	}
	if tx.reschedule {
		svc.schedule(snap)
	}
}

func record(s *domain.Session, typ string, playerID int, detail string) {
	s.Events = append(s.Events, domain.EventRecord{
		Seq:      len(s.Events) + 1,
		Type:     typ,
		Time:     time.Now(),
		PlayerID: playerID,
		Round:    roundNumber(s),
		Phase:    s.Phase,
		Detail:   detail,
	})
}

func roundNumber(s *domain.Session) int {
	if r := s.CurrentRound(); r != nil {
		return r.Number
	}
	return 0
}

func count(command string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	commandsTotal.WithLabelValues(command, status).Inc()
}

// Resolve maps a session reference, either a session id or a join code, to
// the session id.
func (svc *Service) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}

	return svc.c.Registry.ResolveJoinCode(strings.ToUpper(ref))
}

func authenticate(s *domain.Session, playerID int, token string) (*domain.Player, error) {
	p := s.FindPlayer(playerID)
	if p == nil || subtle.ConstantTimeCompare([]byte(p.AuthToken), []byte(token)) != 1 {
		return nil, errors.Unauthorized("invalid player credentials")
	}

	return p, nil
}

func requireHost(s *domain.Session, playerID int) error {
	if !s.IsHost(playerID) {
		return errors.Forbidden("only the host may do this")
	}

	return nil
}

type CreateSessionRequest struct {
	Settings *domain.Settings `json:"settings,omitempty"`
}

// CreateSession opens a new lobby and returns its first snapshot.
func (svc *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("create_session", err) }()

	settings := svc.c.Defaults
	if req.Settings != nil {
		settings = *req.Settings
		if settings.Rounds == 0 {
			settings.Rounds = svc.c.Defaults.Rounds
		}
	}
	if err := validateSettings(settings, 0); err != nil {
		return nil, err
	}

	return svc.c.Registry.Create(func(s *domain.Session) {
		s.Settings = settings
		record(s, domain.RecordSessionCreated, 0, "")
	})
}

func validateSettings(settings domain.Settings, roster int) error {
	if settings.Rounds < 1 || settings.Rounds > maxRounds {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("rounds must be between 1 and %d, got %d", maxRounds, settings.Rounds))
	}
	if settings.MaxPlayers < 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("max_players must not be negative"))
	}
	if settings.MaxPlayers != 0 && settings.MaxPlayers < roster {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("max_players %d is below the current roster of %d", settings.MaxPlayers, roster))
	}

	return nil
}

type JoinRequest struct {
	SessionRef string `json:"-"`
	Name       string `json:"name"`
	Avatar     []byte `json:"avatar,omitempty"`
}

type JoinResponse struct {
	Snapshot  *domain.Snapshot `json:"snapshot"`
	PlayerID  int              `json:"player_id"`
	AuthToken string           `json:"auth_token"`
	Rejoined  bool             `json:"rejoined"`
}

// Join takes a seat in the lobby. Joining with a name already on the roster
// reclaims that seat and returns its original credentials, so a dropped
// client can reconnect in any phase.
func (svc *Service) Join(ctx context.Context, req JoinRequest) (resp *JoinResponse, err error) {
	defer func() { count("join", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name must not be empty"))
	}

	resp = &JoinResponse{}
	snap, err := svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, kicked := s.KickedNames[strings.ToLower(name)]; kicked {
			return errors.Forbidden("player %q was removed from this session", name)
		}

		if p := s.FindPlayerByName(name); p != nil {
			if len(req.Avatar) > 0 {
				p.Avatar = req.Avatar
			}
			resp.PlayerID = p.ID
			resp.AuthToken = p.AuthToken
			resp.Rejoined = true
			record(s, domain.RecordPlayerRejoined, p.ID, name)
			return nil
		}

		if s.Phase != domain.PhaseLobby {
			return errors.WrongPhase(s.Phase, "can only join during the lobby")
		}
		if s.Settings.LobbyLocked {
			return errors.LobbyLocked()
		}
		if s.Settings.MaxPlayers != 0 && len(s.Players) >= s.Settings.MaxPlayers {
			return errors.LobbyFull(s.Settings.MaxPlayers)
		}

		p := domain.Player{
			ID:        nextPlayerID(s),
			Name:      name,
			Avatar:    req.Avatar,
			AuthToken: uuid.NewString(),
			JoinedAt:  time.Now(),
		}
		s.Players = append(s.Players, p)
		if s.HostID == 0 {
			s.HostID = p.ID
		}

		resp.PlayerID = p.ID
		resp.AuthToken = p.AuthToken
		record(s, domain.RecordPlayerJoined, p.ID, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.Snapshot = snap
	return resp, nil
}

// nextPlayerID stays monotonic even after kicks so ids never recycle.
func nextPlayerID(s *domain.Session) int {
	max := 0
	for _, p := range s.Players {
		if p.ID > max {
			max = p.ID
		}
	}
	for _, e := range s.Events {
		if e.PlayerID > max {
			max = e.PlayerID
		}
	}
	return max + 1
}

type UpdateAvatarRequest struct {
	SessionRef string `json:"-"`
	PlayerID   int    `json:"player_id"`
	AuthToken  string `json:"auth_token"`
	Avatar     []byte `json:"avatar"`
}

func (svc *Service) UpdateAvatar(ctx context.Context, req UpdateAvatarRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("update_avatar", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}
	if len(req.Avatar) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("avatar must not be empty"))
	}

	return svc.c.Registry.Update(id, func(s *domain.Session) error {
		p, err := authenticate(s, req.PlayerID, req.AuthToken)
		if err != nil {
			return err
		}

		p.Avatar = req.Avatar
		record(s, domain.RecordAvatarUpdated, p.ID, "")
		return nil
	})
}

type UpdateSettingsRequest struct {
	SessionRef string          `json:"-"`
	PlayerID   int             `json:"player_id"`
	AuthToken  string          `json:"auth_token"`
	Settings   domain.Settings `json:"settings"`
}

// UpdateSettings replaces the session settings. Host-only, lobby-only.
func (svc *Service) UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("update_settings", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	return svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if err := requireHost(s, req.PlayerID); err != nil {
			return err
		}
		if s.Phase != domain.PhaseLobby {
			return errors.WrongPhase(s.Phase, "settings are only editable in the lobby")
		}
		if err := validateSettings(req.Settings, len(s.Players)); err != nil {
			return err
		}

		s.Settings = req.Settings
		record(s, domain.RecordSettingsUpdated, req.PlayerID, "")
		return nil
	})
}

type KickRequest struct {
	SessionRef string `json:"-"`
	PlayerID   int    `json:"player_id"`
	AuthToken  string `json:"auth_token"`
	TargetID   int    `json:"target_id"`
}

// Kick removes a player from the lobby. Kicked names cannot rejoin.
func (svc *Service) Kick(ctx context.Context, req KickRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("kick", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	return svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if err := requireHost(s, req.PlayerID); err != nil {
			return err
		}
		if s.Phase != domain.PhaseLobby {
			return errors.WrongPhase(s.Phase, "players can only be kicked in the lobby")
		}
		if req.TargetID == s.HostID {
			return errors.Forbidden("the host cannot be kicked")
		}

		target := s.FindPlayer(req.TargetID)
		if target == nil {
			return errors.NotFound("player %d is not in this session", req.TargetID)
		}

		s.KickedNames[strings.ToLower(target.Name)] = struct{}{}
		name := target.Name
		for i := range s.Players {
			if s.Players[i].ID == req.TargetID {
				s.Players = append(s.Players[:i], s.Players[i+1:]...)
				break
			}
		}
		record(s, domain.RecordPlayerKicked, req.TargetID, name)
		return nil
	})
}

type StartRequest struct {
	SessionRef string `json:"-"`
	PlayerID   int    `json:"player_id"`
	AuthToken  string `json:"auth_token"`
}

// Start locks in the roster and settings, assigns prompts for round one and
// moves the session to the drawings phase.
func (svc *Service) Start(ctx context.Context, req StartRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("start", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	tx := &txn{}
	snap, err = svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if err := requireHost(s, req.PlayerID); err != nil {
			return err
		}
		if s.Phase != domain.PhaseLobby {
			return errors.WrongPhase(s.Phase, "the game has already started")
		}
		if len(s.Players) < minPlayers {
			return errors.NotEnoughPlayers(len(s.Players), minPlayers)
		}

		s.TotalRounds = s.Settings.Rounds
		record(s, domain.RecordGameStarted, req.PlayerID, "")
		if err := svc.startRound(ctx, s, tx); err != nil {
			// a failed start must leave the lobby untouched
			s.TotalRounds = 0
			s.Events = s.Events[:len(s.Events)-1]
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.commit(ctx, snap, tx)
	return snap, nil
}

func (svc *Service) startRound(ctx context.Context, s *domain.Session, tx *txn) error {
	s.Rounds = append(s.Rounds, domain.Round{Number: len(s.Rounds) + 1})
	if err := svc.assignPrompts(ctx, s); err != nil {
		s.Rounds = s.Rounds[:len(s.Rounds)-1]
		return err
	}

	record(s, domain.RecordPromptsAssigned, 0, "")
	tx.setPhase(s, domain.PhaseDrawings)
	return nil
}

type PlayerPromptRequest struct {
	SessionRef string
	PlayerID   int
	AuthToken  string
}

// PlayerPrompt returns the prompt the player must draw this round. It is
// visible only to its assignee.
func (svc *Service) PlayerPrompt(ctx context.Context, req PlayerPromptRequest) (prompt string, err error) {
	defer func() { count("get_prompt", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return "", err
	}

	err = svc.c.Registry.Read(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}

		r := s.CurrentRound()
		if r == nil {
			return errors.WrongPhase(s.Phase, "no round in progress")
		}

		text, ok := r.PromptFor(req.PlayerID)
		if !ok {
			return errors.NotFound("no prompt assigned to player %d", req.PlayerID)
		}
		prompt = text
		return nil
	})
	if err != nil {
		return "", err
	}

	return prompt, nil
}

type SubmitDrawingRequest struct {
	SessionRef string `json:"-"`
	PlayerID   int    `json:"player_id"`
	AuthToken  string `json:"auth_token"`
	Prompt     string `json:"prompt"`
	Image      []byte `json:"image"`
}

// SubmitDrawing records a player's drawing for their assigned prompt.
// Resubmitting before the phase advances overwrites the earlier image. When
// the last outstanding drawing lands the session moves to guesses in the
// same mutation.
func (svc *Service) SubmitDrawing(ctx context.Context, req SubmitDrawingRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("submit_drawing", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}
	if len(req.Image) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("image must not be empty"))
	}

	tx := &txn{}
	snap, err = svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if s.Phase != domain.PhaseDrawings {
			return errors.WrongPhase(s.Phase, "drawings are not being accepted")
		}

		r := s.CurrentRound()
		assigned, ok := r.PromptFor(req.PlayerID)
		if !ok {
			return errors.NotFound("no prompt assigned to player %d", req.PlayerID)
		}
		if strings.TrimSpace(req.Prompt) != assigned {
			return errors.PromptMismatch(req.Prompt)
		}

		if i := r.FindDrawing(req.PlayerID); i >= 0 {
			r.Drawings[i].Image = req.Image
		} else {
			r.Drawings = append(r.Drawings, domain.Drawing{
				PlayerID: req.PlayerID,
				Prompt:   assigned,
				Image:    req.Image,
			})
		}

		record(s, domain.RecordDrawingReceived, req.PlayerID, "")
		svc.advanceIfResolved(s, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.commit(ctx, snap, tx)
	return snap, nil
}

// pendingDrawers lists roster players who have not submitted this round.
func pendingDrawers(s *domain.Session, r *domain.Round) []int {
	var out []int
	for _, p := range s.Players {
		if r.FindDrawing(p.ID) < 0 {
			out = append(out, p.ID)
		}
	}
	return out
}

// advanceIfResolved performs every transition the session is ready for:
// drawings resolve into guesses, guesses into voting, and voting scores the
// round and opens the reveal. Because it runs inside the serialized update,
// each transition happens exactly once no matter how many submissions race.
func (svc *Service) advanceIfResolved(s *domain.Session, tx *txn) {
	for {
		r := s.CurrentRound()
		if r == nil {
			return
		}

		switch s.Phase {
		case domain.PhaseDrawings:
			if len(pendingDrawers(s, r)) > 0 {
				return
			}
			tx.setPhase(s, domain.PhaseGuesses)

		case domain.PhaseGuesses:
			if len(pendingGuesses(s, r)) > 0 {
				return
			}
			tx.setPhase(s, domain.PhaseGuessVotes)

		case domain.PhaseGuessVotes:
			if len(pendingVotes(s, r)) > 0 {
				return
			}
			svc.scoreRound(s, r, tx)
			r.RevealIndex = 0
			r.RevealStage = domain.RevealGuesses
			if len(r.Drawings) == 0 {
				r.RevealStage = domain.RevealScores
			}
			tx.setPhase(s, domain.PhaseResults)
			return

		default:
			return
		}
	}
}

func (svc *Service) scoreRound(s *domain.Session, r *domain.Round, tx *txn) {
	r.Scored = true
	record(s, domain.RecordRoundScored, 0, "")

	deltas := roundDeltas(s, r, svc.c.Rules)
	tx.bus = append(tx.bus, domain.EventRoundScored{
		SessionID: s.ID,
		Round:     r.Number,
		Deltas:    deltas,
	})

	now := time.Now()
	for _, entry := range totalScores(s, svc.c.Rules) {
		tx.bus = append(tx.bus, domain.EventScoreUpdated{Score: domain.Score{
			SessionID:  s.ID,
			PlayerID:   entry.PlayerID,
			PlayerName: entry.PlayerName,
			TotalScore: decimal.NewFromInt(int64(entry.Score)),
			UpdateTime: now,
		}})
	}
}

type SubmitGuessRequest struct {
	SessionRef   string `json:"-"`
	PlayerID     int    `json:"player_id"`
	AuthToken    string `json:"auth_token"`
	DrawingIndex *int   `json:"drawing_index,omitempty"`
	Text         string `json:"text"`
}

// SubmitGuess records a fake prompt for a drawing the player does not own.
// With no drawing_index the guess lands on the player's first pending
// assignment. Resubmitting overwrites.
func (svc *Service) SubmitGuess(ctx context.Context, req SubmitGuessRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("submit_guess", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("guess text must not be empty"))
	}

	tx := &txn{}
	snap, err = svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if s.Phase != domain.PhaseGuesses {
			return errors.WrongPhase(s.Phase, "guesses are not being accepted")
		}

		r := s.CurrentRound()
		drawingIndex, err := resolveTarget(s, r, req.PlayerID, req.DrawingIndex, false)
		if err != nil {
			return err
		}

		overwrote := false
		for i := range r.Guesses {
			if r.Guesses[i].DrawingIndex == drawingIndex && r.Guesses[i].GuesserID == req.PlayerID {
				r.Guesses[i].Text = text
				overwrote = true
				break
			}
		}
		if !overwrote {
			r.Guesses = append(r.Guesses, domain.Guess{
				DrawingIndex: drawingIndex,
				GuesserID:    req.PlayerID,
				Text:         text,
			})
		}

		record(s, domain.RecordGuessReceived, req.PlayerID, "")
		svc.advanceIfResolved(s, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.commit(ctx, snap, tx)
	return snap, nil
}

// resolveTarget picks the drawing a guess or vote applies to: an explicit
// index must be valid and not owned by the player; otherwise the first
// pending assignment is used.
func resolveTarget(s *domain.Session, r *domain.Round, playerID int, explicit *int, voting bool) (int, error) {
	if explicit != nil {
		i := *explicit
		if i < 0 || i >= len(r.Drawings) {
			return 0, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("drawing_index %d out of range", i))
		}
		if r.Drawings[i].PlayerID == playerID {
			return 0, errors.Forbidden("players cannot act on their own drawing")
		}
		return i, nil
	}

	if voting {
		for _, a := range pendingVotes(s, r) {
			if a.PlayerID == playerID {
				return a.DrawingIndex, nil
			}
		}
	} else {
		for _, a := range pendingGuesses(s, r) {
			if a.PlayerID == playerID {
				return a.DrawingIndex, nil
			}
		}
	}

	return 0, errors.NotFound("player %d has no pending assignment", playerID)
}

type SubmitVoteRequest struct {
	SessionRef   string `json:"-"`
	PlayerID     int    `json:"player_id"`
	AuthToken    string `json:"auth_token"`
	DrawingIndex *int   `json:"drawing_index,omitempty"`
	OptionID     string `json:"option_id,omitempty"`
	Text         string `json:"text,omitempty"`
}

// SubmitVote records which ballot option the voter believes is the true
// prompt. Voters cannot pick a lie they authored. When the last vote lands
// the round is scored and the reveal opens.
func (svc *Service) SubmitVote(ctx context.Context, req SubmitVoteRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("submit_vote", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	tx := &txn{}
	snap, err = svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if s.Phase != domain.PhaseGuessVotes {
			return errors.WrongPhase(s.Phase, "votes are not being accepted")
		}

		r := s.CurrentRound()
		drawingIndex, err := resolveTarget(s, r, req.PlayerID, req.DrawingIndex, true)
		if err != nil {
			return err
		}

		option, ok := selectVoteOption(voteOptions(r, drawingIndex), req.OptionID, req.Text)
		if !ok {
			return errors.InvalidVoteChoice("choice does not match any option for drawing %d", drawingIndex)
		}
		if option.Type == domain.OptionGuess && option.OwnerID == req.PlayerID {
			return errors.InvalidVoteChoice("players cannot vote for their own guess")
		}

		overwrote := false
		for i := range r.Votes {
			if r.Votes[i].DrawingIndex == drawingIndex && r.Votes[i].VoterID == req.PlayerID {
				r.Votes[i].OptionID = option.ID
				r.Votes[i].Text = option.Text
				r.Votes[i].Type = option.Type
				overwrote = true
				break
			}
		}
		if !overwrote {
			r.Votes = append(r.Votes, domain.Vote{
				DrawingIndex: drawingIndex,
				VoterID:      req.PlayerID,
				OptionID:     option.ID,
				Text:         option.Text,
				Type:         option.Type,
			})
		}

		record(s, domain.RecordVoteReceived, req.PlayerID, "")
		svc.advanceIfResolved(s, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.commit(ctx, snap, tx)
	return snap, nil
}

type AdvanceRequest struct {
	SessionRef string `json:"-"`
	PlayerID   int    `json:"player_id"`
	AuthToken  string `json:"auth_token"`
}

// Advance is the host's pacing control. In a work phase it force-completes
// the outstanding work; in results it steps the reveal, and past the last
// step it starts the next round or completes the game.
func (svc *Service) Advance(ctx context.Context, req AdvanceRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("advance", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	tx := &txn{}
	snap, err = svc.c.Registry.Update(id, func(s *domain.Session) error {
		if _, err := authenticate(s, req.PlayerID, req.AuthToken); err != nil {
			return err
		}
		if err := requireHost(s, req.PlayerID); err != nil {
			return err
		}

		return svc.advancePhase(ctx, s, tx)
	})
	if err != nil {
		return nil, err
	}

	svc.commit(ctx, snap, tx)
	return snap, nil
}

func (svc *Service) advancePhase(ctx context.Context, s *domain.Session, tx *txn) error {
	switch s.Phase {
	case domain.PhaseDrawings, domain.PhaseGuesses, domain.PhaseGuessVotes:
		svc.forceCompletePhase(s, tx)
		return nil

	case domain.PhaseResults:
		return svc.advanceReveal(ctx, s, tx)

	default:
		return errors.WrongPhase(s.Phase, "nothing to advance")
	}
}

// forceCompletePhase fills in the missing work of the current phase and then
// performs the normal transition: absent drawings are dropped from the
// round, missing guesses become placeholder lies, missing votes default to
// the true prompt.
func (svc *Service) forceCompletePhase(s *domain.Session, tx *txn) {
	r := s.CurrentRound()
	if r == nil {
		return
	}

	switch s.Phase {
	case domain.PhaseDrawings:
		tx.setPhase(s, domain.PhaseGuesses)
	case domain.PhaseGuesses:
		fillMissingGuesses(s, r)
	case domain.PhaseGuessVotes:
		fillMissingVotes(s, r)
	}

	svc.advanceIfResolved(s, tx)
}

func (svc *Service) advanceReveal(ctx context.Context, s *domain.Session, tx *txn) error {
	r := s.CurrentRound()

	switch r.RevealStage {
	case domain.RevealGuesses:
		r.RevealStage = domain.RevealVotes
		s.PhaseStartedAt = time.Now()
		tx.reschedule = true

	case domain.RevealVotes:
		if r.RevealIndex+1 < len(r.Drawings) {
			r.RevealIndex++
			r.RevealStage = domain.RevealGuesses
		} else {
			r.RevealStage = domain.RevealScores
		}
		s.PhaseStartedAt = time.Now()
		tx.reschedule = true

	case domain.RevealScores:
		if r.Number >= s.TotalRounds {
			record(s, domain.RecordGameCompleted, 0, "")
			tx.setPhase(s, domain.PhaseComplete)
			return nil
		}
		return svc.startRound(ctx, s, tx)
	}

	return nil
}

type ForceCompleteRequest struct {
	SessionRef string `json:"-"`
}

// ForceComplete is the operator hook behind the host's advance: it fills the
// current work phase and transitions, without player credentials. Phase
// timers go through the same path.
func (svc *Service) ForceComplete(ctx context.Context, req ForceCompleteRequest) (snap *domain.Snapshot, err error) {
	defer func() { count("force_complete_phase", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	tx := &txn{}
	snap, err = svc.c.Registry.Update(id, func(s *domain.Session) error {
		switch s.Phase {
		case domain.PhaseDrawings, domain.PhaseGuesses, domain.PhaseGuessVotes:
			svc.forceCompletePhase(s, tx)
			return nil
		default:
			return errors.WrongPhase(s.Phase, "no work phase to force-complete")
		}
	})
	if err != nil {
		return nil, err
	}

	svc.commit(ctx, snap, tx)
	return snap, nil
}

// Snapshot returns the last published read model without locking.
func (svc *Service) Snapshot(ctx context.Context, ref string) (snap *domain.Snapshot, err error) {
	defer func() { count("get_snapshot", err) }()

	id, err := svc.Resolve(ref)
	if err != nil {
		return nil, err
	}

	return svc.c.Registry.Snapshot(id)
}

type ResultsResponse struct {
	Round   int                    `json:"round"`
	Results []domain.DrawingResult `json:"results"`
	Scores  []domain.ScoreEntry    `json:"scores"`
}

// Results returns the scored breakdown of the most recently scored round
// together with cumulative totals. Available from the first scored round
// onward, including while a later round is being played.
func (svc *Service) Results(ctx context.Context, ref string) (resp *ResultsResponse, err error) {
	defer func() { count("get_results", err) }()

	id, err := svc.Resolve(ref)
	if err != nil {
		return nil, err
	}

	err = svc.c.Registry.Read(id, func(s *domain.Session) error {
		r := lastScoredRound(s)
		if r == nil {
			return errors.WrongPhase(s.Phase, "no round has been scored yet")
		}

		resp = &ResultsResponse{
			Round:   r.Number,
			Results: buildResults(s, r, svc.c.Rules),
			Scores:  totalScores(s, svc.c.Rules),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// Events returns a copy of the session's append-only event log.
func (svc *Service) Events(ctx context.Context, ref string) (out []domain.EventRecord, err error) {
	defer func() { count("get_events", err) }()

	id, err := svc.Resolve(ref)
	if err != nil {
		return nil, err
	}

	err = svc.c.Registry.Read(id, func(s *domain.Session) error {
		out = append([]domain.EventRecord(nil), s.Events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

type DrawingImageRequest struct {
	SessionRef   string
	DrawingIndex int
}

// DrawingImage returns the raw image bytes of a drawing in the current
// round. Images stay opaque to the engine.
func (svc *Service) DrawingImage(ctx context.Context, req DrawingImageRequest) (image []byte, err error) {
	defer func() { count("get_drawing", err) }()

	id, err := svc.Resolve(req.SessionRef)
	if err != nil {
		return nil, err
	}

	err = svc.c.Registry.Read(id, func(s *domain.Session) error {
		if s.Phase == domain.PhaseLobby || s.Phase == domain.PhaseDrawings {
			return errors.WrongPhase(s.Phase, "drawings are not visible yet")
		}

		r := s.CurrentRound()
		if req.DrawingIndex < 0 || req.DrawingIndex >= len(r.Drawings) {
			return errors.NotFound("no drawing at index %d", req.DrawingIndex)
		}

		image = append([]byte(nil), r.Drawings[req.DrawingIndex].Image...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return image, nil
}

// ListSessions returns one summary row per live session.
func (svc *Service) ListSessions(ctx context.Context) []registry.Summary {
	return svc.c.Registry.ListSummaries()
}
