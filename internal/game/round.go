package game

import (
	"time"

	"quiz-session-service/internal/domain"
)

// RoundState is the lifecycle state of one question round.
type RoundState string

const (
	RoundPending RoundState = "PENDING"
	RoundOpen    RoundState = "OPEN"
	RoundClosed  RoundState = "CLOSED"
)

type roundAnswer struct {
	optionID  string
	elapsedMs int64
	correct   bool
}

// Round encapsulates one question's lifecycle: accepting answers, closing
// intake, and computing per-question statistics. Owned by the session loop;
// not safe for concurrent use.
type Round struct {
	question      domain.Question
	index         int
	state         RoundState
	openedAt      time.Time
	timeLimitMs   int64
	allowRevision bool
	answers       map[string]roundAnswer
	stats         *domain.RoundStats
}

// NewRound builds a PENDING round. timeLimitMs resolves the question override
// against the session default.
func NewRound(q domain.Question, index int, timeLimitMs int64, allowRevision bool) *Round {
	return &Round{
		question:      q,
		index:         index,
		state:         RoundPending,
		timeLimitMs:   timeLimitMs,
		allowRevision: allowRevision,
		answers:       make(map[string]roundAnswer),
	}
}

func (r *Round) Question() domain.Question { return r.question }
func (r *Round) Index() int                { return r.index }
func (r *Round) State() RoundState         { return r.state }
func (r *Round) TimeLimitMs() int64        { return r.timeLimitMs }

// Open starts accepting answers.
func (r *Round) Open(now time.Time) {
	if r.state != RoundPending {
		return
	}
	r.state = RoundOpen
	r.openedAt = now
}

// HasAnswered reports whether the player already has an answer on record.
func (r *Round) HasAnswered(playerID string) bool {
	_, ok := r.answers[playerID]
	return ok
}

// Submit records one player's answer. First answer wins unless revision is
// enabled, in which case a later submission inside the open window replaces
// the earlier one.
func (r *Round) Submit(playerID, optionID string, elapsedMs int64) (correct bool, err error) {
	if r.state != RoundOpen {
		return false, domain.ErrRoundClosed
	}
	if _, ok := r.answers[playerID]; ok && !r.allowRevision {
		return false, domain.ErrDuplicateAnswer
	}

	var found bool
	for _, opt := range r.question.Options {
		if opt.ID == optionID {
			found = true
			correct = opt.Correct
			break
		}
	}
	if !found {
		return false, domain.ErrOptionNotFound
	}

	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if elapsedMs > r.timeLimitMs {
		elapsedMs = r.timeLimitMs
	}
	r.answers[playerID] = roundAnswer{optionID: optionID, elapsedMs: elapsedMs, correct: correct}
	return correct, nil
}

// AnsweredAll reports whether every listed player has an answer on record.
func (r *Round) AnsweredAll(playerIDs []string) bool {
	if len(playerIDs) == 0 {
		return false
	}
	for _, id := range playerIDs {
		if _, ok := r.answers[id]; !ok {
			return false
		}
	}
	return true
}

// Close stops intake. Returns false if the round was already closed, so the
// caller can guarantee close-side effects run exactly once.
func (r *Round) Close() bool {
	if r.state == RoundClosed {
		return false
	}
	r.state = RoundClosed
	return true
}

// Stats computes the per-round statistics once and caches them. Must be called
// after Close; forced no-answer entries are not part of the response counts.
func (r *Round) Stats() domain.RoundStats {
	if r.stats != nil {
		return *r.stats
	}
	stats := domain.RoundStats{
		QuestionID:   r.question.ID,
		OptionCounts: make(map[string]int, len(r.question.Options)),
	}
	var elapsedSum int64
	for _, a := range r.answers {
		stats.Responses++
		stats.OptionCounts[a.optionID]++
		if a.correct {
			stats.Correct++
		} else {
			stats.Incorrect++
		}
		elapsedSum += a.elapsedMs
	}
	if stats.Responses > 0 {
		stats.AvgElapsedMs = elapsedSum / int64(stats.Responses)
	}
	r.stats = &stats
	return stats
}

// CorrectOptionIDs lists the correct-answer set, for post-round reveal.
func (r *Round) CorrectOptionIDs() []string {
	var ids []string
	for _, opt := range r.question.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}
