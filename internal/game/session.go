// Package game implements the live quiz-session engine: one authoritative
// actor per session drives timed question rounds over a roster of players,
// scores answers deterministically, and fans state deltas out to subscribers.
package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/domain"
)

// EffectsProvider is the external progression collaborator. Consumption is
// idempotent per effect instance: a token alters at most one question.
type EffectsProvider interface {
	ConsumeActiveEffect(ctx context.Context, playerID string) (domain.Effect, error)
}

// ResultsSink receives the frozen session outcome exactly once on FINISHED.
type ResultsSink interface {
	Persist(ctx context.Context, result domain.SessionResult) error
}

// SessionConfig carries everything a session needs at construction.
type SessionConfig struct {
	ID       string
	JoinCode string
	HostID   string
	Quiz     domain.Quiz
	Settings domain.Settings

	Clock        clockwork.Clock
	TickInterval time.Duration
	IdleWindow   time.Duration

	Scoring ScoringPolicy
	Effects EffectsProvider
	Results ResultsSink
	Logger  zerolog.Logger

	// OnTerminal runs inside the command loop right after the session reaches
	// FINISHED or CANCELLED; the registry uses it to schedule eviction.
	OnTerminal func(s *Session)
}

// Snapshot brings a joining or reconnecting client to consistency without
// replaying event history.
type Snapshot struct {
	SessionID     string                 `json:"sessionId"`
	JoinCode      string                 `json:"joinCode"`
	Status        domain.SessionStatus   `json:"status"`
	QuestionIndex int                    `json:"questionIndex"`
	QuestionCount int                    `json:"questionCount"`
	Question      *domain.PublicQuestion `json:"question,omitempty"`
	RemainingMs   int64                  `json:"remainingMs,omitempty"`
	Leaderboard   domain.Leaderboard     `json:"leaderboard"`
}

// Session is the core state machine. All mutations funnel through one command
// loop goroutine, so no per-field locking is needed: concurrent commands are
// totally ordered by enqueue time.
type Session struct {
	cfg   SessionConfig
	clock clockwork.Clock
	log   zerolog.Logger

	cmds chan func()
	done chan struct{}

	// Everything below is owned by the loop goroutine.
	status    domain.SessionStatus
	roster    *Roster
	round     *Round
	idx       int
	timer     *Timer
	idleTimer clockwork.Timer
	history   []domain.RoundStats
	ended     bool
	persisted bool

	statusVal atomic.Value // domain.SessionStatus, readable off-loop

	subMu   sync.Mutex
	subs    map[chan domain.Event]struct{}
	subsOff bool
}

const cmdBuffer = 64

// NewSession builds a WAITING session and starts its command loop.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Session{
		cfg:    cfg,
		clock:  cfg.Clock,
		log:    cfg.Logger.With().Str("session_id", cfg.ID).Str("join_code", cfg.JoinCode).Logger(),
		cmds:   make(chan func(), cmdBuffer),
		done:   make(chan struct{}),
		status: domain.StatusWaiting,
		roster: NewRoster(),
		subs:   make(map[chan domain.Event]struct{}),
	}
	s.statusVal.Store(domain.StatusWaiting)
	s.resetIdleWatch()
	go s.loop()
	return s
}

func (s *Session) ID() string       { return s.cfg.ID }
func (s *Session) JoinCode() string { return s.cfg.JoinCode }
func (s *Session) HostID() string   { return s.cfg.HostID }

// Status reads the session status without entering the command loop.
func (s *Session) Status() domain.SessionStatus {
	return s.statusVal.Load().(domain.SessionStatus)
}

// ---- command loop plumbing ----

func (s *Session) loop() {
	defer close(s.done)
	for !s.ended {
		s.execute(<-s.cmds)
	}
	// Reject commands already queued behind the terminating one: their state
	// guards all fail with ErrSessionTerminated now.
	for {
		select {
		case cmd := <-s.cmds:
			s.execute(cmd)
		default:
			return
		}
	}
}

// execute runs one command. A panic is an invariant violation inside the loop;
// it cancels this session only, never the process, and never continues with
// divergent state.
func (s *Session) execute(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("invariant violation in command loop")
			if !s.status.Terminal() {
				s.terminate(domain.StatusCancelled, "internal error")
			}
		}
	}()
	cmd()
}

// do enqueues fn and waits for its reply. Commands against a terminated
// session fail fast.
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.done:
		return domain.ErrSessionTerminated
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return domain.ErrSessionTerminated
		}
	}
}

// enqueue is the reply-less variant used by timer and watchdog callbacks; a
// firing is just another command so it can never race a concurrent pause.
func (s *Session) enqueue(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// tryEnqueue drops the command when the queue is full. Only tick broadcasts
// use it: losing one tick is harmless, while blocking the timer goroutine
// could stall a Pause waiting for it to exit.
func (s *Session) tryEnqueue(fn func()) {
	select {
	case s.cmds <- fn:
	default:
	}
}

// ---- broadcast fan-out ----

// Subscribe registers a participant event channel. Delivery is non-blocking:
// a slow subscriber has its oldest pending event dropped rather than stalling
// the loop or other subscribers.
func (s *Session) Subscribe() (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 16)
	s.subMu.Lock()
	if s.subsOff {
		s.subMu.Unlock()
		return nil, nil, domain.ErrSessionTerminated
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Session) broadcast(ev domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subsOff = true
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
}

// ---- host commands ----

// Start moves WAITING to IN_PROGRESS and opens round 0.
func (s *Session) Start(actorID string) error {
	return s.do(func() error {
		if err := s.requireHost(actorID); err != nil {
			return err
		}
		if s.status != domain.StatusWaiting {
			return s.stateError()
		}
		min := s.cfg.Settings.MinPlayers
		if min <= 0 {
			min = 1
		}
		if s.roster.Connected() < min {
			return domain.ErrInvalidState
		}
		s.setStatus(domain.StatusInProgress)
		s.openRound(0)
		return nil
	})
}

// Pause freezes the active timer, preserving remaining time.
func (s *Session) Pause(actorID string) error {
	return s.do(func() error {
		if err := s.requireHost(actorID); err != nil {
			return err
		}
		if s.status != domain.StatusInProgress {
			return s.stateError()
		}
		s.setStatus(domain.StatusPaused)
		if s.timer != nil {
			s.timer.Pause()
		}
		s.broadcast(domain.Event{Type: domain.EventGamePaused})
		return nil
	})
}

// Resume restarts the timer from the preserved remaining duration.
func (s *Session) Resume(actorID string) error {
	return s.do(func() error {
		if err := s.requireHost(actorID); err != nil {
			return err
		}
		if s.status != domain.StatusPaused {
			return s.stateError()
		}
		s.setStatus(domain.StatusInProgress)
		if s.timer != nil {
			round := s.round
			s.timer.Resume(s.tickFn(round), s.expireFn(round))
		}
		s.broadcast(domain.Event{Type: domain.EventGameResumed})
		return nil
	})
}

// Next advances past a closed round to the next question.
func (s *Session) Next(actorID string) error {
	return s.do(func() error {
		if err := s.requireHost(actorID); err != nil {
			return err
		}
		if s.status != domain.StatusInProgress {
			return s.stateError()
		}
		if s.round == nil || s.round.State() != RoundClosed {
			return domain.ErrInvalidState
		}
		s.openRound(s.idx + 1)
		return nil
	})
}

// End cancels the session from any non-terminal state.
func (s *Session) End(actorID string) error {
	return s.do(func() error {
		if err := s.requireHost(actorID); err != nil {
			return err
		}
		if s.status.Terminal() {
			return domain.ErrSessionTerminated
		}
		s.terminate(domain.StatusCancelled, "ended by host")
		return nil
	})
}

// Kick marks a player REMOVED: excluded from the live roster, kept in history.
func (s *Session) Kick(actorID, playerID string) error {
	return s.do(func() error {
		if err := s.requireHost(actorID); err != nil {
			return err
		}
		if s.status.Terminal() {
			return domain.ErrSessionTerminated
		}
		p, ok := s.roster.Get(playerID)
		if !ok {
			return domain.ErrPlayerNotFound
		}
		p.Status = domain.PlayerRemoved
		s.broadcast(domain.Event{Type: domain.EventPlayerKicked, Payload: domain.PlayerEventPayload{PlayerID: p.ID, DisplayName: p.DisplayName}})
		s.broadcastLeaderboard()
		s.maybeEarlyClose()
		s.watchIdle()
		return nil
	})
}

// ---- player commands ----

// Join adds a new player or reconnects a known one, returning the snapshot
// that brings the client to consistency.
func (s *Session) Join(playerID, displayName string) (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		if s.status.Terminal() {
			return domain.ErrSessionTerminated
		}
		if p, ok := s.roster.Get(playerID); ok {
			if p.Status == domain.PlayerRemoved {
				return domain.ErrPlayerRemoved
			}
			p.Status = domain.PlayerConnected
			s.stopIdleWatch()
			s.broadcast(domain.Event{Type: domain.EventPlayerJoined, Payload: domain.PlayerEventPayload{PlayerID: p.ID, DisplayName: p.DisplayName}})
			snap = s.snapshot()
			return nil
		}
		if s.status != domain.StatusWaiting && !s.cfg.Settings.AllowLateJoin {
			return domain.ErrLateJoinDisabled
		}
		if max := s.cfg.Settings.MaxPlayers; max > 0 && s.liveCount() >= max {
			return domain.ErrRosterFull
		}
		p, err := s.roster.Add(playerID, displayName)
		if err != nil {
			panic(err) // duplicate id: invariant violation, cancels the session
		}
		s.stopIdleWatch()
		s.broadcast(domain.Event{Type: domain.EventPlayerJoined, Payload: domain.PlayerEventPayload{PlayerID: p.ID, DisplayName: p.DisplayName}})
		s.broadcastLeaderboard()
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Disconnect marks a player DISCONNECTED; score and streak survive for
// reconnection within the session's lifetime.
func (s *Session) Disconnect(playerID string) {
	_ = s.do(func() error {
		p, ok := s.roster.Get(playerID)
		if !ok || p.Status != domain.PlayerConnected {
			return nil
		}
		p.Status = domain.PlayerDisconnected
		s.broadcast(domain.Event{Type: domain.EventPlayerLeft, Payload: domain.PlayerEventPayload{PlayerID: p.ID, DisplayName: p.DisplayName}})
		s.maybeEarlyClose()
		s.watchIdle()
		return nil
	})
}

// Submit records one player's answer and returns its scoring result. Rejected
// submissions are no-ops on session state.
func (s *Session) Submit(ctx context.Context, playerID string, sub domain.AnswerSubmission) (domain.ScoringResult, error) {
	var result domain.ScoringResult
	err := s.do(func() error {
		switch {
		case s.status == domain.StatusPaused:
			return domain.ErrGamePaused
		case s.status.Terminal():
			return domain.ErrSessionTerminated
		case s.status != domain.StatusInProgress:
			return domain.ErrInvalidState
		}
		p, ok := s.roster.Get(playerID)
		if !ok {
			return domain.ErrPlayerNotFound
		}
		if p.Status == domain.PlayerRemoved {
			return domain.ErrPlayerRemoved
		}
		round := s.round
		if round == nil || round.State() != RoundOpen {
			return domain.ErrRoundClosed
		}
		if sub.QuestionID != round.Question().ID {
			return domain.ErrQuestionNotFound
		}
		if round.HasAnswered(playerID) && !s.cfg.Settings.AllowRevision {
			return domain.ErrDuplicateAnswer
		}

		effect := s.lookupEffect(ctx, playerID)
		correct, err := round.Submit(playerID, sub.OptionID, sub.ElapsedMs)
		if err != nil {
			return err
		}

		out := s.cfg.Scoring.Score(correct, sub.ElapsedMs, round.TimeLimitMs(), p.Streak, round.Question().Points, effect)
		s.roster.ApplyOutcome(p, domain.AnswerRecord{
			QuestionID: sub.QuestionID,
			OptionID:   sub.OptionID,
			ElapsedMs:  sub.ElapsedMs,
			Correct:    out.Correct,
			Awarded:    out.Awarded,
			Effect:     out.Effect,
		}, out)

		s.broadcast(domain.Event{Type: domain.EventAnswerAcknowledged, Payload: domain.AnswerAcknowledgedPayload{PlayerID: playerID, QuestionID: sub.QuestionID}})
		s.broadcastLeaderboard()

		result = domain.ScoringResult{
			QuestionID: sub.QuestionID,
			Correct:    out.Correct,
			Awarded:    out.Awarded,
			Streak:     out.Streak,
			TotalScore: p.Score,
			Effect:     out.Effect,
		}
		s.maybeEarlyClose()
		return nil
	})
	return result, err
}

// CurrentSnapshot returns the state a freshly subscribed client should render.
func (s *Session) CurrentSnapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// ---- loop-internal helpers ----

func (s *Session) requireHost(actorID string) error {
	if actorID != s.cfg.HostID {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Session) stateError() error {
	if s.status.Terminal() {
		return domain.ErrSessionTerminated
	}
	return domain.ErrInvalidState
}

func (s *Session) setStatus(status domain.SessionStatus) {
	s.status = status
	s.statusVal.Store(status)
}

func (s *Session) liveCount() int {
	return s.roster.Live()
}

func (s *Session) lookupEffect(ctx context.Context, playerID string) domain.Effect {
	if s.cfg.Effects == nil {
		return domain.EffectNone
	}
	effect, err := s.cfg.Effects.ConsumeActiveEffect(ctx, playerID)
	if err != nil {
		s.log.Warn().Err(err).Str("player_id", playerID).Msg("effects lookup failed, scoring without effect")
		return domain.EffectNone
	}
	return effect
}

func (s *Session) openRound(i int) {
	if i >= len(s.cfg.Quiz.Questions) {
		s.terminate(domain.StatusFinished, "completed")
		return
	}
	s.idx = i
	q := s.cfg.Quiz.Questions[i]
	limit := q.TimeLimitMs
	if limit <= 0 {
		limit = s.cfg.Settings.DefaultTimeLimitMs
	}
	if limit <= 0 {
		limit = 20000
	}

	round := NewRound(q, i, limit, s.cfg.Settings.AllowRevision)
	round.Open(s.clock.Now())
	s.round = round

	s.timer = NewTimer(s.clock, time.Duration(limit)*time.Millisecond, s.cfg.TickInterval)
	s.timer.Start(s.tickFn(round), s.expireFn(round))

	s.broadcast(domain.Event{Type: domain.EventQuestionStarted, Payload: domain.QuestionStartedPayload{
		Index:       i,
		Total:       len(s.cfg.Quiz.Questions),
		Question:    q.Public(),
		TimeLimitMs: limit,
	}})
	s.log.Debug().Int("question_index", i).Int64("time_limit_ms", limit).Msg("round opened")
}

// tickFn and expireFn bind timer firings to the round they belong to, then
// enqueue them as commands; a stale firing for an already-advanced round is
// discarded by the guards.
func (s *Session) tickFn(round *Round) func(time.Duration) {
	return func(remaining time.Duration) {
		s.tryEnqueue(func() {
			if s.status != domain.StatusInProgress || s.round != round || round.State() != RoundOpen {
				return
			}
			s.broadcast(domain.Event{Type: domain.EventTimerTick, Payload: domain.TimerTickPayload{RemainingMs: remaining.Milliseconds()}})
		})
	}
}

func (s *Session) expireFn(round *Round) func() {
	return func() {
		s.enqueue(func() {
			if s.status != domain.StatusInProgress || s.round != round {
				return
			}
			s.closeRound()
		})
	}
}

func (s *Session) maybeEarlyClose() {
	if s.status != domain.StatusInProgress || s.round == nil || s.round.State() != RoundOpen {
		return
	}
	if s.round.AnsweredAll(s.roster.ConnectedIDs()) {
		s.closeRound()
	}
}

// closeRound runs the close-side effects exactly once, whether triggered by
// timer expiry or by every connected player having answered.
func (s *Session) closeRound() {
	if s.round == nil || !s.round.Close() {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	// Players with no answer on record get a forced-incorrect, zero-point,
	// streak-reset entry.
	for _, p := range s.roster.All() {
		if p.Status == domain.PlayerRemoved || s.round.HasAnswered(p.ID) {
			continue
		}
		s.roster.ApplyOutcome(p, domain.AnswerRecord{
			QuestionID: s.round.Question().ID,
			ElapsedMs:  s.round.TimeLimitMs(),
			Forced:     true,
		}, Outcome{Correct: false, Awarded: 0, Streak: 0})
	}

	stats := s.round.Stats()
	s.history = append(s.history, stats)
	payload := domain.RoundClosedPayload{Stats: stats}
	if s.cfg.Settings.ShowAnswersAfterSubmit {
		payload.CorrectOptionIDs = s.round.CorrectOptionIDs()
	}
	s.broadcast(domain.Event{Type: domain.EventRoundClosed, Payload: payload})
	s.broadcastLeaderboard()
	s.log.Debug().Int("question_index", s.idx).Int("responses", stats.Responses).Msg("round closed")

	if s.idx >= len(s.cfg.Quiz.Questions)-1 {
		s.terminate(domain.StatusFinished, "completed")
		return
	}
	if s.cfg.Settings.AutoAdvance {
		s.openRound(s.idx + 1)
	}
}

func (s *Session) broadcastLeaderboard() {
	s.broadcast(domain.Event{Type: domain.EventLeaderboardUpdated, Payload: s.roster.Leaderboard(s.cfg.ID, s.clock.Now())})
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:     s.cfg.ID,
		JoinCode:      s.cfg.JoinCode,
		Status:        s.status,
		QuestionIndex: s.idx,
		QuestionCount: len(s.cfg.Quiz.Questions),
		Leaderboard:   s.roster.Leaderboard(s.cfg.ID, s.clock.Now()),
	}
	if s.round != nil && s.round.State() == RoundOpen {
		pub := s.round.Question().Public()
		snap.Question = &pub
		if s.timer != nil {
			snap.RemainingMs = s.timer.Remaining().Milliseconds()
		}
	}
	return snap
}

// terminate finalizes the session in a terminal state. FINISHED persists the
// frozen results exactly once; CANCELLED does not.
func (s *Session) terminate(status domain.SessionStatus, reason string) {
	s.setStatus(status)
	s.ended = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.stopIdleWatch()

	final := s.roster.Leaderboard(s.cfg.ID, s.clock.Now())
	s.broadcast(domain.Event{Type: domain.EventGameEnded, Payload: domain.GameEndedPayload{Reason: reason, Leaderboard: final}})
	s.closeSubscribers()

	if status == domain.StatusFinished && !s.persisted {
		s.persisted = true
		s.persistResults()
	}

	s.log.Info().Str("status", string(status)).Str("reason", reason).Msg("session terminated")
	if s.cfg.OnTerminal != nil {
		s.cfg.OnTerminal(s)
	}
}

func (s *Session) persistResults() {
	if s.cfg.Results == nil {
		return
	}
	now := s.clock.Now()
	result := domain.SessionResult{
		SessionID:  s.cfg.ID,
		QuizID:     s.cfg.Quiz.ID,
		HostID:     s.cfg.HostID,
		JoinCode:   s.cfg.JoinCode,
		FinishedAt: now,
		Players:    s.roster.Results(s.cfg.ID, now),
		Rounds:     s.history,
	}
	if err := s.cfg.Results.Persist(context.Background(), result); err != nil {
		s.log.Error().Err(err).Msg("persist session results failed")
	}
}

// ---- idle watchdog ----

// watchIdle starts the auto-cancel countdown when no players are connected.
func (s *Session) watchIdle() {
	if s.status.Terminal() || s.roster.Connected() > 0 {
		return
	}
	s.resetIdleWatch()
}

func (s *Session) resetIdleWatch() {
	s.stopIdleWatch()
	if s.cfg.IdleWindow <= 0 {
		return
	}
	s.idleTimer = s.clock.AfterFunc(s.cfg.IdleWindow, func() {
		s.enqueue(func() {
			if s.status.Terminal() || s.roster.Connected() > 0 {
				return
			}
			s.terminate(domain.StatusCancelled, "idle")
		})
	})
}

func (s *Session) stopIdleWatch() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
