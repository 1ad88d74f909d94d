package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"live-poll-service/internal/app"
	"live-poll-service/internal/config"
	"live-poll-service/internal/domain"
	"live-poll-service/internal/infra/memory"
	"live-poll-service/internal/infra/postgres"
	redisinfra "live-poll-service/internal/infra/redis"
	transport "live-poll-service/internal/transport/http"
	"live-poll-service/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live poll server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if *port != "" {
				cfg.Server.Port = *port
			}
			logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

// quizSource loads single quizzes and lists the catalog.
type quizSource interface {
	memory.QuizLoader
	app.QuizCatalog
}

// stores groups the persistence backends chosen from configuration.
type stores struct {
	polls    app.PollStore
	history  transport.PollHistory
	students app.StudentStore
	attempts app.AttemptStore
	quizzes  quizSource
}

func runServer(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, st.quizzes, quizTTL, logger.Named("quiz-cache"))
	} else {
		quizRepo = memory.NewQuizRepository(st.quizzes, quizTTL)
	}
	quizService := app.NewQuizService(quizRepo, st.quizzes, st.attempts)

	hub := ws.NewHub(logger.Named("hub"))
	coordinator := app.NewCoordinator(st.polls, st.students, hub, app.CoordinatorConfig{
		DefaultTimeLimit: cfg.Poll.DefaultTimeLimit,
		MaxTimeLimit:     cfg.Poll.MaxTimeLimit,
		StoreTimeout:     config.TTLDuration(cfg.Poll.StoreTimeout, 5*time.Second),
	}, app.WithLogger(logger.Named("coordinator")))
	if err := coordinator.Restore(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	relay := app.NewChatRelay(hub, nil, logger.Named("chat"))
	if redisClient != nil {
		bus := redisinfra.NewChatBus(redisClient, logger.Named("chat-bus"))
		busRelay := app.NewChatRelay(hub, bus, logger.Named("chat"))
		done, err := bus.Subscribe(gctx, busRelay.Deliver)
		if err != nil {
			logger.Warn("chat bus unavailable, delivering chat locally", zap.Error(err))
		} else {
			relay = busRelay
			g.Go(func() error {
				<-done
				return nil
			})
		}
	}

	dispatcher := ws.NewDispatcher(hub, coordinator, relay, logger.Named("ws"))
	wsHandler := ws.NewHandler(hub, dispatcher, logger.Named("ws"))

	router := transport.NewRouter(transport.Deps{
		Polls:          coordinator,
		History:        st.history,
		Students:       st.students,
		Quizzes:        quizService,
		WS:             wsHandler.ServeWS,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut WebSocket connections.
	}

	g.Go(func() error {
		logger.Info("starting live poll service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		hub.Close()
		coordinator.Close()
		return err
	})
	return g.Wait()
}

// openStores picks Postgres when a URL is configured and in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, func(), error) {
	if cfg.Postgres.URL == "" {
		logger.Info("postgres not configured, using in-memory stores")
		polls := memory.NewPollStore()
		return stores{
			polls:    polls,
			history:  polls,
			students: memory.NewStudentStore(),
			attempts: memory.NewAttemptStore(),
			quizzes:  memory.NewStaticQuizLoader(sampleQuizzes()),
		}, func() {}, nil
	}

	if err := runMigrations(ctx, cfg, logger); err != nil {
		return stores{}, nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return stores{}, nil, err
	}

	loader := postgres.NewQuizLoader(pool)
	list := make([]domain.Quiz, 0)
	for _, quiz := range sampleQuizzes() {
		list = append(list, quiz)
	}
	seeded, err := loader.SeedIfEmpty(ctx, list)
	if err != nil {
		pool.Close()
		return stores{}, nil, err
	}
	if seeded {
		logger.Info("seeded sample quizzes", zap.Int("count", len(list)))
	}

	polls := postgres.NewPollStore(pool)
	return stores{
		polls:    polls,
		history:  polls,
		students: postgres.NewStudentStore(pool),
		attempts: postgres.NewAttemptStore(pool),
		quizzes:  loader,
	}, pool.Close, nil
}

// sampleQuizzes is the practice set served when no quizzes are stored yet.
func sampleQuizzes() map[string]domain.Quiz {
	created := time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC)
	return map[string]domain.Quiz{
		"quiz-arithmetic": {
			ID:        "quiz-arithmetic",
			Title:     "Warm-up arithmetic",
			CreatedAt: created,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Order: 1},
				{ID: "q2", Prompt: "What is 7 x 6?", Options: []string{"42", "36", "48"}, CorrectAnswer: "42", Order: 2},
			},
		},
		"quiz-geography": {
			ID:        "quiz-geography",
			Title:     "Capitals",
			CreatedAt: created.Add(time.Hour),
			Questions: []domain.Question{
				{ID: "q1", Prompt: "Capital of France?", Options: []string{"Paris", "Lyon", "Nice"}, CorrectAnswer: "Paris", Order: 1},
				{ID: "q2", Prompt: "Capital of Japan?", Options: []string{"Osaka", "Tokyo", "Kyoto"}, CorrectAnswer: "Tokyo", Order: 2},
			},
		},
	}
}
