package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/app"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/config"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/infra/memory"
	pgloader "github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/infra/postgres"
	redisinfra "github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/infra/redis"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/realtime"
	transport "github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/transport/http"
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
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	attemptTTL := config.TTLDuration(cfg.Session.AttemptTTL, time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var (
		store    app.SessionRepository
		attempts app.AttemptStore
		broker   realtime.Broker
	)
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL)
		attempts = redisinfra.NewAttemptStore(redisClient, attemptTTL)
		broker = realtime.NewRedisBroker(redisClient)
	} else {
		store = memory.NewSessionStore()
		attempts = memory.NewAttemptStore()
		broker = realtime.NewMemoryBroker()
	}

	service := app.NewSessionService(store, quizRepo, attempts, broker, cfg.Session.MaxRounds, cfg.Session.DurationMinutes)
	wsHandler := transport.NewWSHandler(service, broker)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides demo content for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"session-1": {
			ID:              "session-1",
			Name:            "Arithmetic warm-up",
			Status:          domain.StatusPending,
			Pin:             "4321",
			DurationMinutes: 10,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "a1", Text: "3", Correct: false},
						{ID: "a2", Text: "4", Correct: true},
						{ID: "a3", Text: "5", Correct: false},
					},
					Points: 3,
				},
				{
					ID:     "q2",
					Prompt: "What is 6 * 7?",
					Options: []domain.Option{
						{ID: "a1", Text: "42", Correct: true},
						{ID: "a2", Text: "36", Correct: false},
						{ID: "a3", Text: "48", Correct: false},
					},
					Points: 3,
				},
			},
		},
	}
}
