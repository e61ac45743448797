package domain

// EventType identifies a one-way broadcast from a session to its participants.
type EventType string

const (
	EventQuestionStarted    EventType = "question-started"
	EventTimerTick          EventType = "timer-tick"
	EventAnswerAcknowledged EventType = "answer-acknowledged"
	EventRoundClosed        EventType = "round-closed"
	EventLeaderboardUpdated EventType = "leaderboard-updated"
	EventGamePaused         EventType = "game-paused"
	EventGameResumed        EventType = "game-resumed"
	EventGameEnded          EventType = "game-ended"
	EventPlayerJoined       EventType = "player-joined"
	EventPlayerLeft         EventType = "player-left"
	EventPlayerKicked       EventType = "player-kicked"
)

// Event is a single ordered state delta pushed to every subscriber.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// PublicOption is an option with the correctness flag stripped.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is the question payload broadcast to players.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Prompt  string         `json:"prompt"`
	Options []PublicOption `json:"options"`
	Points  int            `json:"points"`
}

// Public strips the correct-answer set from a question.
func (q Question) Public() PublicQuestion {
	opts := make([]PublicOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, PublicOption{ID: o.ID, Text: o.Text})
	}
	return PublicQuestion{ID: q.ID, Prompt: q.Prompt, Options: opts, Points: q.Points}
}

type QuestionStartedPayload struct {
	Index       int            `json:"index"`
	Total       int            `json:"total"`
	Question    PublicQuestion `json:"question"`
	TimeLimitMs int64          `json:"timeLimitMs"`
}

type TimerTickPayload struct {
	RemainingMs int64 `json:"remainingMs"`
}

type AnswerAcknowledgedPayload struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
}

// RoundClosedPayload carries the cached round statistics. CorrectOptionIDs is
// only populated when the session reveals answers after each round.
type RoundClosedPayload struct {
	Stats            RoundStats `json:"stats"`
	CorrectOptionIDs []string   `json:"correctOptionIds,omitempty"`
}

type GameEndedPayload struct {
	Reason      string      `json:"reason"`
	Leaderboard Leaderboard `json:"leaderboard"`
}

type PlayerEventPayload struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName,omitempty"`
}
