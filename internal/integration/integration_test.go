package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
	"live-poll-service/internal/infra/postgres"
	pgmigrations "live-poll-service/internal/infra/postgres/migrations"
	infraredis "live-poll-service/internal/infra/redis"
)

func TestPollLifecycleOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	polls := postgres.NewPollStore(pool)
	students := postgres.NewStudentStore(pool)
	gw := &recordingGateway{}
	coord := app.NewCoordinator(polls, students, gw, app.CoordinatorConfig{StoreTimeout: 5 * time.Second})
	defer coord.Close()

	teacher := domain.Caller{ConnID: "teacher", Role: domain.RoleTeacher}
	alice := join(t, ctx, coord, "alice-conn", "Alice", "s-alice")
	bob := join(t, ctx, coord, "bob-conn", "Bob", "s-bob")

	poll, err := coord.CreatePoll(ctx, teacher, domain.CreatePollInput{
		Question:      "Which planet is largest?",
		Options:       []string{"Mars", "Jupiter", "Venus"},
		CorrectAnswer: "Jupiter",
		TimeLimit:     120,
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if _, err := coord.CreatePoll(ctx, teacher, domain.CreatePollInput{
		Question: "Second?", Options: []string{"a", "b"}, CorrectAnswer: "a",
	}); !errors.Is(err, domain.ErrPollAlreadyActive) {
		t.Fatalf("expected conflict for second poll, got %v", err)
	}

	jupiter := optionID(t, poll, "Jupiter")
	mars := optionID(t, poll, "Mars")

	if err := coord.SubmitAnswer(ctx, alice, domain.SubmitAnswerInput{StudentID: alice.StudentID, PollID: poll.ID, OptionID: jupiter}); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	if err := coord.SubmitAnswer(ctx, alice, domain.SubmitAnswerInput{StudentID: alice.StudentID, PollID: poll.ID, OptionID: mars}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := coord.SubmitAnswer(ctx, bob, domain.SubmitAnswerInput{StudentID: bob.StudentID, PollID: poll.ID, OptionID: mars}); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	if gw.count(domain.EventPollEnded) != 1 {
		t.Fatalf("expected poll to end once everyone answered, events=%v", gw.types())
	}
	if _, _, ok := coord.ActivePoll(); ok {
		t.Fatalf("expected no active poll after all answered")
	}

	closed, err := polls.ClosedPolls(ctx)
	if err != nil {
		t.Fatalf("closed polls: %v", err)
	}
	if len(closed) != 1 || len(closed[0].Responses) != 2 || closed[0].EndedAt == nil {
		t.Fatalf("expected one closed poll with two responses, got %+v", closed)
	}

	results, err := coord.PollResults(ctx, poll.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.TotalResponses != 2 {
		t.Fatalf("expected two responses in results, got %+v", results)
	}
}

func TestRestoreAdoptsActivePoll(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	polls := postgres.NewPollStore(pool)
	students := postgres.NewStudentStore(pool)
	teacher := domain.Caller{ConnID: "teacher", Role: domain.RoleTeacher}

	first := app.NewCoordinator(polls, students, &recordingGateway{}, app.CoordinatorConfig{})
	poll, err := first.CreatePoll(ctx, teacher, domain.CreatePollInput{
		Question: "Ready?", Options: []string{"yes", "no"}, CorrectAnswer: "yes", TimeLimit: 300,
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	first.Close()

	second := app.NewCoordinator(polls, students, &recordingGateway{}, app.CoordinatorConfig{})
	defer second.Close()
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	view, _, ok := second.ActivePoll()
	if !ok || view.ID != poll.ID {
		t.Fatalf("expected restored poll %s, got %+v ok=%v", poll.ID, view, ok)
	}
	if err := second.StopPoll(ctx, teacher, poll.ID); err != nil {
		t.Fatalf("stop restored poll: %v", err)
	}
	if _, err := polls.ActivePoll(ctx); !errors.Is(err, domain.ErrPollNotFound) {
		t.Fatalf("expected no active poll in store, got %v", err)
	}
}

func TestKickedStudentStaysBlocked(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	gw := &recordingGateway{}
	coord := app.NewCoordinator(postgres.NewPollStore(pool), postgres.NewStudentStore(pool), gw, app.CoordinatorConfig{})
	defer coord.Close()

	teacher := domain.Caller{ConnID: "teacher", Role: domain.RoleTeacher}
	carol := join(t, ctx, coord, "carol-1", "Carol", "s-carol")
	if err := coord.RemoveStudent(ctx, teacher, carol.StudentID); err != nil {
		t.Fatalf("remove student: %v", err)
	}

	_, err = coord.Join(ctx, domain.Caller{ConnID: "carol-2", Role: domain.RoleStudent}, "Carol", "s-carol")
	if !errors.Is(err, domain.ErrStudentKicked) {
		t.Fatalf("expected kicked student to be blocked, got %v", err)
	}
	if gw.count(domain.EventStudentKicked) < 2 {
		t.Fatalf("expected kicked notifications, events=%v", gw.types())
	}
}

func TestQuizAttemptWithRedisCache(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuizLoader(pool)
	seeded, err := loader.SeedIfEmpty(ctx, []domain.Quiz{sampleQuiz()})
	if err != nil || !seeded {
		t.Fatalf("seed quiz: seeded=%v err=%v", seeded, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute, nil)
	service := app.NewQuizService(quizRepo, loader, postgres.NewAttemptStore(pool))

	attempt, err := service.SubmitAttempt(ctx, domain.SubmitAttemptInput{
		QuizID:           "quiz-1",
		StudentSessionID: "s-alice",
		StudentName:      "Alice",
		Answers:          []domain.AnswerSubmission{{QuestionID: "q1", SelectedAnswer: "4"}},
	})
	if err != nil {
		t.Fatalf("submit attempt: %v", err)
	}
	if attempt.Score != 1 || attempt.TotalQuestions != 1 {
		t.Fatalf("expected perfect score, got %+v", attempt)
	}
	if n, err := redisClient.Exists(ctx, "quiz:quiz-1").Result(); err != nil || n != 1 {
		t.Fatalf("expected quiz cached in redis, n=%d err=%v", n, err)
	}

	attempts, err := service.StudentAttempts(ctx, "s-alice")
	if err != nil {
		t.Fatalf("student attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != attempt.ID {
		t.Fatalf("expected stored attempt, got %+v", attempts)
	}
}

func join(t *testing.T, ctx context.Context, coord *app.Coordinator, connID, name, sessionID string) domain.Caller {
	t.Helper()
	caller := domain.Caller{ConnID: connID, Role: domain.RoleStudent}
	view, err := coord.Join(ctx, caller, name, sessionID)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	caller.StudentID = view.ID
	caller.SessionID = sessionID
	return caller
}

func optionID(t *testing.T, poll domain.Poll, text string) string {
	t.Helper()
	for _, opt := range poll.Options {
		if opt.Text == text {
			return opt.ID
		}
	}
	t.Fatalf("option %q not in poll", text)
	return ""
}

type recordingGateway struct {
	mu     sync.Mutex
	events []domain.Event
}

func (g *recordingGateway) Broadcast(event domain.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, event)
}

func (g *recordingGateway) Send(_ string, event domain.Event) {
	g.Broadcast(event)
}

func (g *recordingGateway) Disconnect(string) {}

func (g *recordingGateway) count(typ domain.EventType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, ev := range g.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (g *recordingGateway) types() []domain.EventType {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.EventType, 0, len(g.events))
	for _, ev := range g.events {
		out = append(out, ev.Type)
	}
	return out
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "poll", "POSTGRES_PASSWORD": "pollpass", "POSTGRES_DB": "polldb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://poll:pollpass@%s:%s/polldb?sslmode=disable", host, port.Port())
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

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
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
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Prompt:        "What is 2 + 2?",
				Options:       []string{"3", "4", "5"},
				CorrectAnswer: "4",
				Order:         1,
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
