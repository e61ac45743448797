package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/domain"
)

// PresenceRecorder receives best-effort liveness markers for active sessions,
// e.g. Redis keys other instances or ops tooling can inspect. Failures are
// the recorder's problem; the registry never blocks on it.
type PresenceRecorder interface {
	SessionCreated(sessionID, joinCode string)
	SessionEvicted(sessionID, joinCode string)
}

// Registry is the process-wide map from join code and session id to live
// sessions. Terminal sessions stay resolvable for a grace window so late
// calls surface ErrSessionTerminated instead of silently matching a reused
// code; after the window they are evicted and the code is freed.
type Registry struct {
	clock    clockwork.Clock
	grace    time.Duration
	presence PresenceRecorder
	log      zerolog.Logger

	mu     sync.RWMutex
	byCode map[string]*Session
	byID   map[string]*Session
	rnd    *rand.Rand
}

func NewRegistry(clock clockwork.Clock, grace time.Duration, presence PresenceRecorder, logger zerolog.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:    clock,
		grace:    grace,
		presence: presence,
		log:      logger.With().Str("component", "registry").Logger(),
		byCode:   make(map[string]*Session),
		byID:     make(map[string]*Session),
		rnd:      rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// Register allocates a session id and a join code unique among active
// sessions, builds the session, and tracks it. The build callback must wire
// the returned OnTerminal hook into the session config.
func (r *Registry) Register(build func(id, code string, onTerminal func(*Session)) *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	code := r.newCodeLocked()
	session := build(id, code, r.scheduleEvict)
	r.byCode[code] = session
	r.byID[id] = session

	if r.presence != nil {
		r.presence.SessionCreated(id, code)
	}
	r.log.Info().Str("session_id", id).Str("join_code", code).Msg("session registered")
	return session
}

// ResolveCode maps a 6-digit join code to its session.
func (r *Registry) ResolveCode(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byCode[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Get looks a session up by id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Count reports how many sessions are tracked, grace-period ones included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) newCodeLocked() string {
	for {
		code := fmt.Sprintf("%06d", r.rnd.Intn(1000000))
		if _, taken := r.byCode[code]; !taken {
			return code
		}
	}
}

// scheduleEvict runs as the session's OnTerminal hook.
func (r *Registry) scheduleEvict(s *Session) {
	r.clock.AfterFunc(r.grace, func() {
		r.mu.Lock()
		delete(r.byCode, s.JoinCode())
		delete(r.byID, s.ID())
		r.mu.Unlock()
		if r.presence != nil {
			r.presence.SessionEvicted(s.ID(), s.JoinCode())
		}
		r.log.Debug().Str("session_id", s.ID()).Str("join_code", s.JoinCode()).Msg("session evicted")
	})
}
