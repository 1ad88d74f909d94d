package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
)

type handlers struct {
	deps Deps
}

type activePollResponse struct {
	Poll    *domain.ActivePollView  `json:"poll"`
	Results *domain.ResultsSnapshot `json:"results,omitempty"`
}

func (h *handlers) activePoll(c *gin.Context) {
	view, results, ok := h.deps.Polls.ActivePoll()
	if !ok {
		OK(c, activePollResponse{})
		return
	}
	OK(c, activePollResponse{Poll: &view, Results: &results})
}

// pollSummary is a closed poll with aggregate results only; who answered what stays on the teacher socket.
type pollSummary struct {
	ID            string                 `json:"id"`
	Question      string                 `json:"question"`
	Options       []domain.PollOption    `json:"options"`
	CorrectAnswer string                 `json:"correctAnswer"`
	TimeLimit     int                    `json:"timeLimit"`
	CreatedAt     time.Time              `json:"createdAt"`
	EndedAt       *time.Time             `json:"endedAt,omitempty"`
	Results       domain.ResultsSnapshot `json:"results"`
}

func (h *handlers) pollHistory(c *gin.Context) {
	polls, err := h.deps.History.ClosedPolls(c.Request.Context())
	if err != nil {
		Fail(c, domain.Unavailable("list closed polls", err))
		return
	}
	summaries := make([]pollSummary, 0, len(polls))
	for _, p := range polls {
		summaries = append(summaries, pollSummary{
			ID:            p.ID,
			Question:      p.Question,
			Options:       p.Options,
			CorrectAnswer: p.CorrectAnswer,
			TimeLimit:     p.TimeLimit,
			CreatedAt:     p.CreatedAt,
			EndedAt:       p.EndedAt,
			Results:       app.ComputeResults(p, p.Responses, len(p.Responses), 0),
		})
	}
	OK(c, summaries)
}

func (h *handlers) participants(c *gin.Context) {
	OK(c, h.deps.Polls.Participants())
}

func (h *handlers) pollResults(c *gin.Context) {
	results, err := h.deps.Polls.PollResults(c.Request.Context(), c.Param("pollId"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, results)
}

type registerRequest struct {
	Name      string `json:"name" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

func (h *handlers) registerStudent(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, domain.Invalid("%v", err))
		return
	}
	student, err := h.deps.Students.RegisterStudent(c.Request.Context(), req.Name, req.SessionID)
	if err != nil {
		Fail(c, domain.Unavailable("register student", err))
		return
	}
	if student.IsKicked {
		Fail(c, domain.ErrStudentKicked)
		return
	}
	Created(c, student)
}

func (h *handlers) listStudents(c *gin.Context) {
	students, err := h.deps.Students.ListStudents(c.Request.Context())
	if err != nil {
		Fail(c, domain.Unavailable("list students", err))
		return
	}
	OK(c, students)
}

func (h *handlers) studentBySession(c *gin.Context) {
	student, err := h.deps.Students.GetStudentBySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, student)
}

func (h *handlers) listQuizzes(c *gin.Context) {
	quizzes, err := h.deps.Quizzes.ListQuizzes(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, quizzes)
}

func (h *handlers) getQuiz(c *gin.Context) {
	quiz, err := h.deps.Quizzes.GetQuiz(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, quiz)
}

func (h *handlers) submitAttempt(c *gin.Context) {
	var req domain.SubmitAttemptInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, domain.Invalid("%v", err))
		return
	}
	attempt, err := h.deps.Quizzes.SubmitAttempt(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, attempt)
}

func (h *handlers) studentAttempts(c *gin.Context) {
	attempts, err := h.deps.Quizzes.StudentAttempts(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, attempts)
}
