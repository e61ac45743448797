package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/game"
	"quiz-session-service/internal/infra/memory"
	infrapg "quiz-session-service/internal/infra/postgres"
	infraredis "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(memory.SampleQuizzes())
	if pool != nil {
		loader = infrapg.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizProvider
	if redisClient != nil {
		quizzes = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	var effects game.EffectsProvider
	if redisClient != nil {
		effects = infraredis.NewEffectsProvider(redisClient)
	} else {
		effects = memory.NewEffectsProvider()
	}

	var results game.ResultsSink
	if pool != nil {
		results = infrapg.NewResultsSink(pool)
	} else {
		results = memory.NewResultsSink()
	}

	var presence game.PresenceRecorder
	if redisClient != nil {
		presence = infraredis.NewPresenceRecorder(redisClient, redisTTL)
	}

	clock := clockwork.NewRealClock()
	grace := config.TTLDuration(cfg.Game.EvictionGrace, config.DefaultEvictionGrace)
	registry := game.NewRegistry(clock, grace, presence, logger)

	service := app.NewGameService(registry, quizzes, effects, results, clock, app.Defaults{
		TimeLimit:    config.TTLDuration(cfg.Game.DefaultTimeLimit, config.DefaultTimeLimit),
		TickInterval: config.TTLDuration(cfg.Game.TickInterval, config.DefaultTickInterval),
		IdleWindow:   config.TTLDuration(cfg.Game.IdleWindow, config.DefaultIdleWindow),
		MaxPlayers:   config.IntOr(cfg.Game.MaxPlayers, config.DefaultMaxPlayers),
		Scoring: game.ScoringPolicy{
			StreakBonusPermille: config.IntOr(cfg.Game.StreakBonus, config.DefaultStreakBonus),
			StreakCap:           config.IntOr(cfg.Game.StreakCap, config.DefaultStreakCap),
		},
	}, logger)
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/host", wsHandler.ServeHost)
	mux.HandleFunc("/ws/play", wsHandler.ServePlay)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz session service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
