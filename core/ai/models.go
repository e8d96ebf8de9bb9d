package ai

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/quizzq/backend/core"
)

// MaxQuizQuestions caps how many questions one quiz generation may ask for.
const MaxQuizQuestions = 20

// Assistant is the language model behind the AI features.
type Assistant interface {
	Tutor(ctx context.Context, question string) (string, error)
	GenerateQuiz(ctx context.Context, topic string, n int) (Quiz, error)
}

type (
	Question struct {
		Prompt  string   `json:"prompt"`
		Choices []string `json:"choices"`
		Answer  int      `json:"answer"` // index in Choices
	}

	Quiz struct {
		Topic     string     `json:"topic"`
		Questions []Question `json:"questions"`
	}

	Answer struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}

	Result struct {
		Correct    int     `json:"correct"`
		Total      int     `json:"total"`
		Percentage float64 `json:"percentage"`
	}
)

// IsValid checks that q is a well-formed multiple choice question.
func (q Question) IsValid() bool {
	if q.Prompt == "" || len(q.Choices) < 2 {
		return false
	}
	return q.Answer >= 0 && q.Answer < len(q.Choices)
}

type TutorRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

func (tr *TutorRequest) Validate(validate *validator.Validate) error {
	tr.Question = core.CleanString(tr.Question)
	return validate.Struct(tr)
}

type QuizRequest struct {
	Topic string `json:"topic" validate:"required,max=255"`
	Count int    `json:"count" validate:"min=1,max=20"`
}

func (qr *QuizRequest) Validate(validate *validator.Validate) error {
	qr.Topic = core.CleanString(qr.Topic)
	if qr.Count == 0 {
		qr.Count = 5
	}
	return validate.Struct(qr)
}

type ScoreRequest struct {
	Quiz    Quiz  `json:"quiz"`
	Answers []int `json:"answers" validate:"required"`
}

func (sr *ScoreRequest) Validate(validate *validator.Validate) error {
	if err := validate.Struct(sr); err != nil {
		return err
	}
	if len(sr.Quiz.Questions) == 0 {
		return core.NewFieldValidationError("quiz", "a quiz needs at least one question")
	}
	for _, q := range sr.Quiz.Questions {
		if !q.IsValid() {
			return core.NewFieldValidationError("quiz", "invalid question")
		}
	}
	return nil
}

// Score grades answers against quiz. answers[i] is the chosen index for question i;
// missing or out of range answers count as wrong.
func Score(quiz Quiz, answers []int) Result {
	res := Result{Total: len(quiz.Questions)}
	if res.Total == 0 {
		return res
	}
	for i, q := range quiz.Questions {
		if i < len(answers) && answers[i] == q.Answer {
			res.Correct++
		}
	}
	pct := float64(res.Correct) * 100 / float64(res.Total)
	res.Percentage = math.Round(pct*100) / 100
	return res
}
