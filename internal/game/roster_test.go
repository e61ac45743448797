package game

import (
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestRosterRanksByScoreThenJoinOrder(t *testing.T) {
	r := NewRoster()
	a, _ := r.Add("a", "Alice")
	b, _ := r.Add("b", "Bob")
	c, _ := r.Add("c", "Carol")

	a.Score = 300
	b.Score = 500
	c.Score = 300 // ties Alice, joined later

	lb := r.Leaderboard("s1", time.Now())
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if lb.Entries[i].PlayerID != id {
			t.Fatalf("rank %d: expected %s, got %s", i+1, id, lb.Entries[i].PlayerID)
		}
		if lb.Entries[i].Rank != i+1 {
			t.Fatalf("expected derived rank %d, got %d", i+1, lb.Entries[i].Rank)
		}
	}
}

func TestRosterRejectsDuplicateID(t *testing.T) {
	r := NewRoster()
	if _, err := r.Add("a", "Alice"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.Add("a", "Imposter"); err == nil {
		t.Fatalf("expected duplicate id rejection")
	}
}

func TestRosterRemovedExcludedFromLiveView(t *testing.T) {
	r := NewRoster()
	a, _ := r.Add("a", "Alice")
	_, _ = r.Add("b", "Bob")
	a.Status = domain.PlayerRemoved

	lb := r.Leaderboard("s1", time.Now())
	if len(lb.Entries) != 1 || lb.Entries[0].PlayerID != "b" {
		t.Fatalf("removed player must not appear in live view: %+v", lb.Entries)
	}

	results := r.Results("s1", time.Now())
	if len(results) != 2 {
		t.Fatalf("removed player must stay in historical results, got %d", len(results))
	}
}

func TestRosterConnectedCounts(t *testing.T) {
	r := NewRoster()
	a, _ := r.Add("a", "Alice")
	_, _ = r.Add("b", "Bob")
	a.Status = domain.PlayerDisconnected

	if got := r.Connected(); got != 1 {
		t.Fatalf("expected 1 connected, got %d", got)
	}
	if ids := r.ConnectedIDs(); len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("unexpected connected ids: %v", ids)
	}
	if got := r.Live(); got != 2 {
		t.Fatalf("disconnected players are still live, got %d", got)
	}
}

func TestRosterApplyOutcomeTracksLongestStreak(t *testing.T) {
	r := NewRoster()
	p, _ := r.Add("a", "Alice")

	r.ApplyOutcome(p, domain.AnswerRecord{QuestionID: "q1"}, Outcome{Correct: true, Awarded: 100, Streak: 1})
	r.ApplyOutcome(p, domain.AnswerRecord{QuestionID: "q2"}, Outcome{Correct: true, Awarded: 110, Streak: 2})
	r.ApplyOutcome(p, domain.AnswerRecord{QuestionID: "q3"}, Outcome{Correct: false, Awarded: 0, Streak: 0})

	if p.Score != 210 {
		t.Fatalf("expected cumulative 210, got %d", p.Score)
	}
	if p.Streak != 0 || p.LongestStreak != 2 {
		t.Fatalf("expected streak 0 / longest 2, got %d / %d", p.Streak, p.LongestStreak)
	}
	if len(p.Answers) != 3 {
		t.Fatalf("answer history is append-only, got %d records", len(p.Answers))
	}
}
