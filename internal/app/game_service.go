package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/game"
)

// QuizProvider loads quiz content (from cache/backing store). Called once per
// session, at creation; the engine never re-reads content mid-game.
type QuizProvider interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Defaults fill in engine parameters a host's settings leave unset.
type Defaults struct {
	TimeLimit    time.Duration
	TickInterval time.Duration
	IdleWindow   time.Duration
	MaxPlayers   int
	Scoring      game.ScoringPolicy
}

// SessionInfo is the host's handle on a freshly created session.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	JoinCode  string `json:"joinCode"`
}

// GameService contains the engine's use cases: host commands, player commands,
// and event subscriptions, all routed through the session registry.
type GameService struct {
	registry *game.Registry
	quizzes  QuizProvider
	effects  game.EffectsProvider
	results  game.ResultsSink
	clock    clockwork.Clock
	defaults Defaults
	log      zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGameService(registry *game.Registry, quizzes QuizProvider, effects game.EffectsProvider, results game.ResultsSink, clock clockwork.Clock, defaults Defaults, logger zerolog.Logger) *GameService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GameService{
		registry: registry,
		quizzes:  quizzes,
		effects:  effects,
		results:  results,
		clock:    clock,
		defaults: defaults,
		log:      logger,
		rnd:      rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// CreateSession fetches the quiz once, applies settings defaults and optional
// shuffling, and registers a WAITING session under a fresh join code.
func (s *GameService) CreateSession(ctx context.Context, hostID, quizID string, settings domain.Settings) (SessionInfo, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return SessionInfo{}, err
	}

	if settings.DefaultTimeLimitMs <= 0 {
		settings.DefaultTimeLimitMs = s.defaults.TimeLimit.Milliseconds()
	}
	if settings.MaxPlayers <= 0 {
		settings.MaxPlayers = s.defaults.MaxPlayers
	}
	if settings.MinPlayers <= 0 {
		settings.MinPlayers = 1
	}
	quiz = s.arrange(quiz, settings)

	session := s.registry.Register(func(id, code string, onTerminal func(*game.Session)) *game.Session {
		return game.NewSession(game.SessionConfig{
			ID:           id,
			JoinCode:     code,
			HostID:       hostID,
			Quiz:         quiz,
			Settings:     settings,
			Clock:        s.clock,
			TickInterval: s.defaults.TickInterval,
			IdleWindow:   s.defaults.IdleWindow,
			Scoring:      s.defaults.Scoring,
			Effects:      s.effects,
			Results:      s.results,
			Logger:       s.log,
			OnTerminal:   onTerminal,
		})
	})
	return SessionInfo{SessionID: session.ID(), JoinCode: session.JoinCode()}, nil
}

// arrange deep-copies the question list so shuffling never mutates cached
// quiz content shared across sessions.
func (s *GameService) arrange(quiz domain.Quiz, settings domain.Settings) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	for i := range questions {
		opts := make([]domain.Option, len(questions[i].Options))
		copy(opts, questions[i].Options)
		questions[i].Options = opts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.RandomizeQuestions {
		s.rnd.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if settings.RandomizeOptions {
		for i := range questions {
			opts := questions[i].Options
			s.rnd.Shuffle(len(opts), func(a, b int) {
				opts[a], opts[b] = opts[b], opts[a]
			})
		}
	}
	quiz.Questions = questions
	return quiz
}

// ResolveJoinCode maps a join code to a session id.
func (s *GameService) ResolveJoinCode(code string) (string, error) {
	session, err := s.registry.ResolveCode(code)
	if err != nil {
		return "", err
	}
	return session.ID(), nil
}

// Join adds or reconnects a player via join code and returns the snapshot
// that brings their client to consistency.
func (s *GameService) Join(_ context.Context, joinCode, playerID, displayName string) (game.Snapshot, error) {
	session, err := s.registry.ResolveCode(joinCode)
	if err != nil {
		return game.Snapshot{}, err
	}
	return session.Join(playerID, displayName)
}

// SubmitAnswer scores one player's answer on the session's command loop.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, playerID string, sub domain.AnswerSubmission) (domain.ScoringResult, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return domain.ScoringResult{}, err
	}
	return session.Submit(ctx, playerID, sub)
}

// Disconnect marks a player disconnected; their score and streak survive.
func (s *GameService) Disconnect(sessionID, playerID string) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return
	}
	session.Disconnect(playerID)
}

// Subscribe returns the session's ordered event stream. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(sessionID string) (<-chan domain.Event, func(), error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session.Subscribe()
}

// Snapshot returns the current session view for a reconnecting client.
func (s *GameService) Snapshot(sessionID string) (game.Snapshot, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return game.Snapshot{}, err
	}
	return session.CurrentSnapshot()
}

// Host commands. Each verifies the actor against the session's host identity.

func (s *GameService) Start(_ context.Context, sessionID, actorID string) error {
	return s.hostCommand(sessionID, actorID, (*game.Session).Start)
}

func (s *GameService) Pause(_ context.Context, sessionID, actorID string) error {
	return s.hostCommand(sessionID, actorID, (*game.Session).Pause)
}

func (s *GameService) Resume(_ context.Context, sessionID, actorID string) error {
	return s.hostCommand(sessionID, actorID, (*game.Session).Resume)
}

func (s *GameService) Next(_ context.Context, sessionID, actorID string) error {
	return s.hostCommand(sessionID, actorID, (*game.Session).Next)
}

func (s *GameService) End(_ context.Context, sessionID, actorID string) error {
	return s.hostCommand(sessionID, actorID, (*game.Session).End)
}

func (s *GameService) Kick(_ context.Context, sessionID, actorID, playerID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return session.Kick(actorID, playerID)
}

func (s *GameService) hostCommand(sessionID, actorID string, cmd func(*game.Session, string) error) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return cmd(session, actorID)
}
