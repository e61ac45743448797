package domain

import "time"

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "WAITING"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusPaused     SessionStatus = "PAUSED"
	StatusFinished   SessionStatus = "FINISHED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible from the status.
func (s SessionStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// PlayerStatus tracks a roster member's connection state.
type PlayerStatus string

const (
	PlayerConnected    PlayerStatus = "CONNECTED"
	PlayerDisconnected PlayerStatus = "DISCONNECTED"
	PlayerRemoved      PlayerStatus = "REMOVED"
)

// Effect is a power-up token consumed from the progression collaborator.
type Effect string

const (
	EffectNone         Effect = ""
	EffectDoublePoints Effect = "DOUBLE_POINTS"
	EffectStreakSaver  Effect = "STREAK_SAVER"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with at least one correct option.
// TimeLimitMs of zero falls back to the session default.
type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []Option `json:"options"`
	Points      int      `json:"points"` // defaults to 100 if zero
	TimeLimitMs int64    `json:"timeLimitMs"`
}

// Quiz is an immutable ordered list of questions fetched once at session start.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Settings configure one game session at creation time.
type Settings struct {
	RandomizeQuestions     bool  `json:"randomizeQuestions"`
	RandomizeOptions       bool  `json:"randomizeOptions"`
	ShowAnswersAfterSubmit bool  `json:"showAnswersAfterSubmit"`
	AllowLateJoin          bool  `json:"allowLateJoin"`
	AllowRevision          bool  `json:"allowRevision"`
	AutoAdvance            bool  `json:"autoAdvance"`
	MaxPlayers             int   `json:"maxPlayers"`
	MinPlayers             int   `json:"minPlayers"`
	DefaultTimeLimitMs     int64 `json:"defaultTimeLimitMs"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	OptionID   string
	ElapsedMs  int64
}

// ScoringResult summarizes the outcome of one submission for its sender.
type ScoringResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	Streak     int    `json:"streak"`
	TotalScore int    `json:"totalScore"`
	Effect     Effect `json:"effect,omitempty"`
}

// AnswerRecord is the append-only per-question record kept for analytics export.
// Forced marks the zero-point entry written for players who never answered.
type AnswerRecord struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId,omitempty"`
	ElapsedMs  int64  `json:"elapsedMs"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	Effect     Effect `json:"effect,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
}

// LeaderboardEntry is a snapshot-friendly view of a roster member.
// Rank is derived at snapshot time, never stored on the roster.
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Streak      int    `json:"streak"`
	Rank        int    `json:"rank"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// RoundStats are computed once when a round closes and cached.
type RoundStats struct {
	QuestionID   string         `json:"questionId"`
	Responses    int            `json:"responses"`
	Correct      int            `json:"correct"`
	Incorrect    int            `json:"incorrect"`
	OptionCounts map[string]int `json:"optionCounts"`
	AvgElapsedMs int64          `json:"avgElapsedMs"`
}

// PlayerResult is the frozen per-player outcome persisted on finish.
type PlayerResult struct {
	PlayerID      string         `json:"playerId"`
	DisplayName   string         `json:"displayName"`
	Score         int            `json:"score"`
	LongestStreak int            `json:"longestStreak"`
	Rank          int            `json:"rank"`
	Status        PlayerStatus   `json:"status"`
	Answers       []AnswerRecord `json:"answers"`
}

// SessionResult is handed to the results sink exactly once on FINISHED.
type SessionResult struct {
	SessionID  string         `json:"sessionId"`
	QuizID     string         `json:"quizId"`
	HostID     string         `json:"hostId"`
	JoinCode   string         `json:"joinCode"`
	FinishedAt time.Time      `json:"finishedAt"`
	Players    []PlayerResult `json:"players"`
	Rounds     []RoundStats   `json:"rounds"`
}
