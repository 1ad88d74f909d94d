package domain

import "time"

// Question models a practice MCQ question; the correct answer is stored as option text.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Order         int      `json:"order"`
}

// Quiz is a practice quiz made of ordered questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Topic       string     `json:"topic"`
	Level       string     `json:"level"`
	CreatorName string     `json:"creatorName,omitempty"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Question returns the question with the given id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// AnswerSubmission is a single selected answer within a quiz attempt.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
}

// AttemptAnswer is a scored answer.
type AttemptAnswer struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
	IsCorrect      bool   `json:"isCorrect"`
}

// QuizAttempt is a persisted, scored practice attempt.
type QuizAttempt struct {
	ID               string          `json:"id"`
	QuizID           string          `json:"quizId"`
	StudentSessionID string          `json:"studentId"`
	StudentName      string          `json:"studentName"`
	Score            int             `json:"score"`
	TotalQuestions   int             `json:"totalQuestions"`
	Answers          []AttemptAnswer `json:"answers"`
	CompletedAt      time.Time       `json:"completedAt"`
}

// SubmitAttemptInput is the request to score a practice attempt.
type SubmitAttemptInput struct {
	QuizID           string             `json:"quizId"`
	StudentSessionID string             `json:"studentSessionId"`
	StudentName      string             `json:"studentName"`
	Answers          []AnswerSubmission `json:"answers"`
}
