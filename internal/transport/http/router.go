package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
)

// PollReader exposes live poll state from the coordinator.
type PollReader interface {
	ActivePoll() (domain.ActivePollView, domain.ResultsSnapshot, bool)
	PollResults(ctx context.Context, pollID string) (domain.ResultsSnapshot, error)
	Participants() []domain.ParticipantView
}

// PollHistory lists closed polls.
type PollHistory interface {
	ClosedPolls(ctx context.Context) ([]domain.Poll, error)
}

// Deps are the collaborators the API serves from.
type Deps struct {
	Polls          PollReader
	History        PollHistory
	Students       app.StudentStore
	Quizzes        *app.QuizService
	WS             http.HandlerFunc
	AllowedOrigins string
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with the REST API and the WebSocket endpoint.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), Logger(d.Logger), CORS(d.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if d.WS != nil {
		r.GET("/ws", gin.WrapF(d.WS))
	}

	h := &handlers{deps: d}
	v1 := r.Group("/api/v1")
	{
		polls := v1.Group("/polls")
		polls.GET("/active", h.activePoll)
		polls.GET("/history", h.pollHistory)
		polls.GET("/participants", h.participants)
		polls.GET("/:pollId", h.pollResults)

		students := v1.Group("/students")
		students.POST("/register", h.registerStudent)
		students.GET("", h.listStudents)
		students.GET("/session/:sessionId", h.studentBySession)

		quiz := v1.Group("/quiz")
		quiz.GET("/all", h.listQuizzes)
		quiz.POST("/submit", h.submitAttempt)
		quiz.GET("/student/:sessionId/attempts", h.studentAttempts)
		quiz.GET("/:quizId", h.getQuiz)
	}
	return r
}
