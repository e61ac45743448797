package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/game"
	"quiz-session-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	quiz := domain.Quiz{
		ID:    "quiz-1",
		Title: "test",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "pick the right one",
				Options: []domain.Option{
					{ID: "o1", Text: "wrong"},
					{ID: "o2", Text: "right", Correct: true},
				},
				Points: 100,
			},
		},
	}
	clock := clockwork.NewRealClock()
	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz})
	quizzes := memory.NewQuizRepositoryWithClock(loader, time.Minute, clock)
	registry := game.NewRegistry(clock, time.Minute, nil, zerolog.Nop())
	service := app.NewGameService(registry, quizzes, memory.NewEffectsProvider(), memory.NewResultsSink(), clock, app.Defaults{
		TimeLimit:  20 * time.Second,
		MaxPlayers: 100,
		Scoring:    game.ScoringPolicy{StreakBonusPermille: 100, StreakCap: 10},
	}, zerolog.Nop())

	handler := NewWSHandler(service, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/host", handler.ServeHost)
	mux.HandleFunc("/ws/play", handler.ServePlay)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips interleaved broadcasts until a message of the wanted type
// arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading until %q: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
		if msg.Type == "error" && want != "error" {
			t.Fatalf("unexpected error while waiting for %q: %s", want, msg.Payload)
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

func TestHostAndPlayerFullGame(t *testing.T) {
	srv := newTestServer(t)

	host := dialWS(t, srv, "/ws/host?hostId=host-1")
	send(t, host, "create", map[string]any{"quizId": "quiz-1"})

	var info app.SessionInfo
	if err := json.Unmarshal(readUntil(t, host, "created"), &info); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if len(info.JoinCode) != 6 {
		t.Fatalf("expected 6-digit join code, got %q", info.JoinCode)
	}

	player := dialWS(t, srv, "/ws/play?code="+info.JoinCode+"&playerId=p1&name=Alice")
	var snap game.Snapshot
	if err := json.Unmarshal(readUntil(t, player, "joined"), &snap); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if snap.Status != domain.StatusWaiting || snap.SessionID != info.SessionID {
		t.Fatalf("unexpected join snapshot: %+v", snap)
	}

	send(t, host, "start", nil)
	var question domain.QuestionStartedPayload
	if err := json.Unmarshal(readUntil(t, player, "question-started"), &question); err != nil {
		t.Fatalf("decode question: %v", err)
	}
	if question.Question.ID != "q1" {
		t.Fatalf("unexpected question: %+v", question)
	}

	send(t, player, "answer", map[string]any{"questionId": "q1", "optionId": "o2", "elapsedMs": 5000})
	var result domain.ScoringResult
	if err := json.Unmarshal(readUntil(t, player, "answerResult"), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Correct || result.Awarded != 137 {
		t.Fatalf("unexpected scoring result: %+v", result)
	}

	// The only connected player answered, so the single round closes and the
	// game ends on both connections.
	var ended domain.GameEndedPayload
	if err := json.Unmarshal(readUntil(t, player, "game-ended"), &ended); err != nil {
		t.Fatalf("decode game-ended: %v", err)
	}
	if len(ended.Leaderboard.Entries) != 1 || ended.Leaderboard.Entries[0].Score != 137 {
		t.Fatalf("unexpected final leaderboard: %+v", ended.Leaderboard)
	}
	readUntil(t, host, "game-ended")
}

func TestPlayerJoinUnknownCode(t *testing.T) {
	srv := newTestServer(t)

	player := dialWS(t, srv, "/ws/play?code=000000&playerId=p1&name=Alice")
	payload := readUntil(t, player, "error")
	var errMsg errorPayload
	if err := json.Unmarshal(payload, &errMsg); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errMsg.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %+v", errMsg)
	}
}

func TestHostFirstMessageMustBeCreate(t *testing.T) {
	srv := newTestServer(t)

	host := dialWS(t, srv, "/ws/host?hostId=host-1")
	send(t, host, "start", nil)

	payload := readUntil(t, host, "error")
	var errMsg errorPayload
	if err := json.Unmarshal(payload, &errMsg); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errMsg.Code != "BAD_REQUEST" {
		t.Fatalf("expected BAD_REQUEST, got %+v", errMsg)
	}
}

func TestMissingQueryParamsRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/play?playerId=p1&name=Alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/ws/host")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp2.StatusCode)
	}
}

func TestInvalidCommandRejected(t *testing.T) {
	srv := newTestServer(t)

	host := dialWS(t, srv, "/ws/host?hostId=host-1")
	send(t, host, "create", map[string]any{"quizId": "quiz-1"})
	readUntil(t, host, "created")

	// Pausing before the game starts maps to INVALID_STATE.
	send(t, host, "pause", nil)
	var errMsg errorPayload
	if err := json.Unmarshal(readUntil(t, host, "error"), &errMsg); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errMsg.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %+v", errMsg)
	}
}
