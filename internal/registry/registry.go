package registry

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/namvu/sketchwire/internal/domain"
	"github.com/namvu/sketchwire/internal/errors"
)

// Join codes avoid 0/O/1/I to stay readable when shouted across a room.
const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sketchwire_sessions_active",
		Help: "Number of sessions currently held in the registry.",
	})

	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sketchwire_sessions_created_total",
		Help: "Total number of sessions created.",
	})
)

// SnapshotFunc builds the published read model from a session. The registry
// calls it while holding the session's write lock, so it may read freely but
// must not retain references into the session.
type SnapshotFunc func(*domain.Session) *domain.Snapshot

type Config struct {
	Snapshot    SnapshotFunc
	MaxSessions int
}

// Registry owns every live session. Each session has a single-writer handle:
// all mutation funnels through Update under the handle's lock, and every
// committed mutation publishes a fresh immutable snapshot. Reads never block
// on writers.
type Registry struct {
	c Config

	mu       sync.RWMutex
	sessions map[string]*handle
	byCode   map[string]string
}

type handle struct {
	mu   sync.Mutex
	sess *domain.Session
	snap atomic.Pointer[domain.Snapshot]
}

func New(c Config) *Registry {
	if c.Snapshot == nil {
		panic("registry: Config.Snapshot is required")
	}

	return &Registry{
		c:        c,
		sessions: make(map[string]*handle),
		byCode:   make(map[string]string),
	}
}

// Create allocates a session id and join code, lets seed fill in the rest,
// and publishes the first snapshot.
func (r *Registry) Create(seed func(*domain.Session)) (*domain.Snapshot, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("registry: new session id: %w", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.c.MaxSessions > 0 && len(r.sessions) >= r.c.MaxSessions {
		return nil, errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("session limit reached (max=%d)", r.c.MaxSessions))
	}

	code, err := r.newJoinCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &domain.Session{
		ID:          id.String(),
		JoinCode:    code,
		Phase:       domain.PhaseLobby,
		CreatedAt:   now,
		UsedPrompts: make(map[string]struct{}),
		KickedNames: make(map[string]struct{}),
	}
	sess.PhaseStartedAt = now
	if seed != nil {
		seed(sess)
	}

	h := &handle{sess: sess}
	snap := r.c.Snapshot(sess)
	h.snap.Store(snap)

	r.sessions[sess.ID] = h
	r.byCode[code] = sess.ID

	sessionsActive.Set(float64(len(r.sessions)))
	sessionsCreated.Inc()

	return snap, nil
}

// newJoinCode draws codes until one is free. Caller holds r.mu.
func (r *Registry) newJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	for attempt := 0; attempt < 100; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Internal(fmt.Errorf("registry: join code: %w", err))
		}

		code := make([]byte, joinCodeLength)
		for i, b := range buf {
			code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
		}

		if _, taken := r.byCode[string(code)]; !taken {
			return string(code), nil
		}
	}

	return "", errors.Internal(fmt.Errorf("registry: join code space exhausted"))
}

// Update applies fn to the session under its write lock. If fn returns an
// error the session keeps its previous published snapshot; otherwise a new
// snapshot is built and published before the lock is released, so commands on
// the same session observe each other in a strict order.
func (r *Registry) Update(sessionID string, fn func(*domain.Session) error) (*domain.Snapshot, error) {
	h, err := r.find(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := fn(h.sess); err != nil {
		return nil, err
	}

	snap := r.c.Snapshot(h.sess)
	h.snap.Store(snap)
	return snap, nil
}

// Read calls fn with the session under its lock, for reads that need state
// the snapshot deliberately omits (drawing bytes, auth tokens, the event
// log). fn must not mutate.
func (r *Registry) Read(sessionID string, fn func(*domain.Session) error) error {
	h, err := r.find(sessionID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return fn(h.sess)
}

// Snapshot returns the last published snapshot without taking any lock.
func (r *Registry) Snapshot(sessionID string) (*domain.Snapshot, error) {
	h, err := r.find(sessionID)
	if err != nil {
		return nil, err
	}

	return h.snap.Load(), nil
}

// ResolveJoinCode maps a join code to its session id.
func (r *Registry) ResolveJoinCode(code string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return "", errors.NotFound("no session with join code %q", code)
	}

	return id, nil
}

func (r *Registry) find(sessionID string) (*handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[sessionID]
	if !ok {
		return nil, errors.NotFound("session %s not found", sessionID)
	}

	return h, nil
}

// Summary is the lightweight listing row for operational endpoints.
type Summary struct {
	SessionID string       `json:"session_id"`
	JoinCode  string       `json:"join_code"`
	Phase     domain.Phase `json:"phase"`
	Players   int          `json:"players"`
	Round     int          `json:"round"`
	CreatedAt time.Time    `json:"created_at"`
}

// ListSummaries returns one row per live session, newest first.
func (r *Registry) ListSummaries() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.sessions))
	for _, h := range r.sessions {
		snap := h.snap.Load()
		out = append(out, Summary{
			SessionID: snap.SessionID,
			JoinCode:  snap.JoinCode,
			Phase:     snap.Phase,
			Players:   len(snap.Players),
			Round:     snap.RoundNumber,
			CreatedAt: h.sess.CreatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Remove drops a session and frees its join code.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	delete(r.byCode, h.sess.JoinCode)
	delete(r.sessions, sessionID)
	sessionsActive.Set(float64(len(r.sessions)))
}

// Reap removes completed sessions whose last phase change is older than age,
// and returns how many were removed.
func (r *Registry) Reap(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, h := range r.sessions {
		snap := h.snap.Load()
		if snap.Phase == domain.PhaseComplete && snap.PhaseStartedAt.Before(cutoff) {
			delete(r.byCode, snap.JoinCode)
			delete(r.sessions, id)
			n++
		}
	}

	if n > 0 {
		sessionsActive.Set(float64(len(r.sessions)))
	}

	return n
}
