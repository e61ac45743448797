package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/game"
	pginfra "quiz-session-service/internal/infra/postgres"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
	infraredis "quiz-session-service/internal/infra/redis"
)

func TestFullGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	clock := clockwork.NewRealClock()
	logger := zerolog.Nop()
	quizzes := infraredis.NewQuizRepository(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)
	effects := infraredis.NewEffectsProvider(redisClient)
	results := pginfra.NewResultsSink(pool)
	presence := infraredis.NewPresenceRecorder(redisClient, time.Hour)
	registry := game.NewRegistry(clock, time.Minute, presence, logger)
	service := app.NewGameService(registry, quizzes, effects, results, clock, app.Defaults{
		TimeLimit:  20 * time.Second,
		MaxPlayers: 100,
		Scoring:    game.ScoringPolicy{StreakBonusPermille: 100, StreakCap: 10},
	}, logger)

	info, err := service.CreateSession(ctx, "host-1", "quiz-1", domain.Settings{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// The registry marks the live join code in Redis.
	marked, err := redisClient.Get(ctx, "session:code:"+info.JoinCode).Result()
	if err != nil || marked != info.SessionID {
		t.Fatalf("presence marker: got %q, %v", marked, err)
	}

	if _, err := service.Join(ctx, info.JoinCode, "u1", "Alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := service.Join(ctx, info.JoinCode, "u2", "Bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if err := service.Start(ctx, info.SessionID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Bob's power-up sits in Redis until his answer consumes it.
	if err := effects.Grant(ctx, "u2", domain.EffectDoublePoints, time.Minute); err != nil {
		t.Fatalf("grant effect: %v", err)
	}

	r1, err := service.SubmitAnswer(ctx, info.SessionID, "u2", domain.AnswerSubmission{
		QuestionID: "q1", OptionID: "o2", ElapsedMs: 5000,
	})
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if !r1.Correct || r1.Awarded != 274 || r1.Effect != domain.EffectDoublePoints {
		t.Fatalf("expected doubled 274 for bob, got %+v", r1)
	}

	r2, err := service.SubmitAnswer(ctx, info.SessionID, "u1", domain.AnswerSubmission{
		QuestionID: "q1", OptionID: "o1", ElapsedMs: 2000,
	})
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if r2.Correct || r2.Awarded != 0 {
		t.Fatalf("expected zero for alice's wrong answer, got %+v", r2)
	}

	// Both players answered the only question: the session finishes and the
	// frozen results land in Postgres.
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := service.Snapshot(info.SessionID)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snap.Status == domain.StatusFinished {
			if snap.Leaderboard.Entries[0].PlayerID != "u2" {
				t.Fatalf("expected bob leading, got %+v", snap.Leaderboard.Entries)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session did not finish, status %s", snap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var raw []byte
	if err := pool.QueryRow(ctx, `SELECT data FROM session_results WHERE id=$1`, info.SessionID).Scan(&raw); err != nil {
		t.Fatalf("read session result: %v", err)
	}
	var stored domain.SessionResult
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("unmarshal session result: %v", err)
	}
	if stored.QuizID != "quiz-1" || len(stored.Players) != 2 || len(stored.Rounds) != 1 {
		t.Fatalf("unexpected stored result: %+v", stored)
	}

	// The effect token was consumed by the scoring path.
	if _, err := redisClient.Get(ctx, "effect:u2").Result(); err != goredis.Nil {
		t.Fatalf("effect token must be consumed, got err=%v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "arithmetic",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				Points: 100,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
