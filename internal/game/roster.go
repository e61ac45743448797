package game

import (
	"fmt"
	"sort"
	"time"

	"quiz-session-service/internal/domain"
)

// Player is one roster entry. Score, streak, and answer history survive
// disconnects; only a host kick excludes a player from the live view.
type Player struct {
	ID            string
	DisplayName   string
	Status        domain.PlayerStatus
	Score         int
	Streak        int
	LongestStreak int
	Answers       []domain.AnswerRecord

	joinOrder int
}

// Roster is the authoritative player set of one session. It is not safe for
// concurrent use; the owning session's command loop is its only caller.
type Roster struct {
	players map[string]*Player
	order   []string
	next    int
}

func NewRoster() *Roster {
	return &Roster{players: make(map[string]*Player)}
}

// Add registers a new player. The caller enforces capacity and join policy.
// A duplicate id is an invariant violation: callers reconnect existing ids
// instead of re-adding them.
func (r *Roster) Add(id, displayName string) (*Player, error) {
	if _, ok := r.players[id]; ok {
		return nil, fmt.Errorf("duplicate player id %q in roster", id)
	}
	p := &Player{
		ID:          id,
		DisplayName: displayName,
		Status:      domain.PlayerConnected,
		joinOrder:   r.next,
	}
	r.next++
	r.players[id] = p
	r.order = append(r.order, id)
	return p, nil
}

func (r *Roster) Get(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Connected counts players able to answer the current round.
func (r *Roster) Connected() int {
	n := 0
	for _, p := range r.players {
		if p.Status == domain.PlayerConnected {
			n++
		}
	}
	return n
}

// ConnectedIDs returns the ids of players currently able to answer.
func (r *Roster) ConnectedIDs() []string {
	ids := make([]string, 0, len(r.players))
	for _, id := range r.order {
		if r.players[id].Status == domain.PlayerConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

// Live counts non-removed players, connected or not.
func (r *Roster) Live() int {
	n := 0
	for _, p := range r.players {
		if p.Status != domain.PlayerRemoved {
			n++
		}
	}
	return n
}

// All returns every roster entry in join order, removed players included.
func (r *Roster) All() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// Active reports whether the player may submit answers.
func (r *Roster) Active(id string) bool {
	p, ok := r.players[id]
	return ok && p.Status == domain.PlayerConnected
}

// ApplyOutcome folds a scoring outcome into the player's cumulative state and
// appends the answer record.
func (r *Roster) ApplyOutcome(p *Player, record domain.AnswerRecord, out Outcome) {
	p.Score += out.Awarded
	p.Streak = out.Streak
	if p.Streak > p.LongestStreak {
		p.LongestStreak = p.Streak
	}
	p.Answers = append(p.Answers, record)
}

// Leaderboard derives the ranked live view: cumulative score descending, ties
// broken by earliest join for determinism. Removed players are excluded.
func (r *Roster) Leaderboard(sessionID string, now time.Time) domain.Leaderboard {
	ranked := make([]*Player, 0, len(r.players))
	for _, id := range r.order {
		p := r.players[id]
		if p.Status == domain.PlayerRemoved {
			continue
		}
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].joinOrder < ranked[j].joinOrder
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Streak:      p.Streak,
			Rank:        i + 1,
		})
	}
	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: now}
}

// Results freezes every roster entry, kicked players included, for persistence.
func (r *Roster) Results(sessionID string, now time.Time) []domain.PlayerResult {
	lb := r.Leaderboard(sessionID, now)
	rankOf := make(map[string]int, len(lb.Entries))
	for _, e := range lb.Entries {
		rankOf[e.PlayerID] = e.Rank
	}

	results := make([]domain.PlayerResult, 0, len(r.players))
	for _, id := range r.order {
		p := r.players[id]
		results = append(results, domain.PlayerResult{
			PlayerID:      p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			LongestStreak: p.LongestStreak,
			Rank:          rankOf[p.ID],
			Status:        p.Status,
			Answers:       p.Answers,
		})
	}
	return results
}
