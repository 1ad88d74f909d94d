package app

import (
	"math"

	"live-poll-service/internal/domain"
)

// ComputeResults aggregates responses per option. It has no side effects and is deterministic.
// Percentages are rounded half-up to two decimals and are all zero when nobody answered.
func ComputeResults(poll domain.Poll, responses []domain.Response, totalStudents, timeRemaining int) domain.ResultsSnapshot {
	counts := make(map[string]int, len(poll.Options))
	for _, r := range responses {
		counts[r.OptionID]++
	}

	total := len(responses)
	options := make([]domain.OptionResult, 0, len(poll.Options))
	for _, opt := range poll.Options {
		count := counts[opt.ID]
		options = append(options, domain.OptionResult{
			ID:         opt.ID,
			Text:       opt.Text,
			Count:      count,
			Percentage: percentage(count, total),
			// Option texts are unique per poll (enforced on creation), so text equality is unambiguous.
			IsCorrect: opt.Text == poll.CorrectAnswer,
		})
	}

	return domain.ResultsSnapshot{
		PollID:         poll.ID,
		Question:       poll.Question,
		Options:        options,
		TotalResponses: total,
		TotalStudents:  totalStudents,
		TimeRemaining:  timeRemaining,
		Status:         poll.Status,
	}
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*100*100) / 100
}
