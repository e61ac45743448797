package memory

import "quiz-session-service/internal/domain"

// SampleQuizzes provides a minimal quiz set for running the service without a
// database; swap the static loader for the Postgres one in production.
func SampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up arithmetic",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					Points: 100,
				},
				{
					ID:     "q2",
					Prompt: "What is 7 * 6?",
					Options: []domain.Option{
						{ID: "o1", Text: "42", Correct: true},
						{ID: "o2", Text: "48"},
						{ID: "o3", Text: "36"},
					},
					Points:      100,
					TimeLimitMs: 15000,
				},
			},
		},
	}
}
