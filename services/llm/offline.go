package llmsvc

import (
	"context"
	"fmt"

	"github.com/quizzq/backend/core/ai"
)

// Offline is a canned assistant for local runs and tests.
type Offline struct{}

var _ ai.Assistant = Offline{} // interface compliance check

func (Offline) Tutor(_ context.Context, question string) (string, error) {
	return fmt.Sprintf("Let's think about %q step by step.", question), nil
}

func (Offline) GenerateQuiz(_ context.Context, topic string, n int) (ai.Quiz, error) {
	quiz := ai.Quiz{Topic: topic, Questions: make([]ai.Question, 0, n)}
	for i := 1; i <= n; i++ {
		quiz.Questions = append(quiz.Questions, ai.Question{
			Prompt:  fmt.Sprintf("%s: question %d", topic, i),
			Choices: []string{"A", "B", "C", "D"},
			Answer:  (i - 1) % 4,
		})
	}
	return quiz, nil
}
