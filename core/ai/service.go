package ai

import (
	"context"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

var (
	// errors
	ErrAssistant = errors.New("the AI assistant is unavailable, please try again later")
)

type (
	Service interface {
		Tutor(ctx context.Context, p *policy.Principal, question string) (Answer, usage.Report, error)
		GenerateQuiz(ctx context.Context, p *policy.Principal, topic string, n int) (Quiz, usage.Report, error)
	}

	service struct {
		assistant Assistant
		gate      *policy.Gate
		userSvc   user.Service
		logger    core.Logger
		notify    func(usr user.User, report usage.Report)
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(assistant Assistant, gate *policy.Gate, userSvc user.Service, logger core.Logger) Service {
	svc := &service{
		assistant: assistant,
		gate:      gate,
		userSvc:   userSvc,
		logger:    logger,
	}
	svc.notify = func(usr user.User, report usage.Report) {
		go userSvc.NotifyUsageLimitReached(usr, report)
	}
	return svc
}

func (svc *service) Tutor(ctx context.Context, p *policy.Principal, question string) (Answer, usage.Report, error) {
	var text string
	report, err := svc.gate.Metered(ctx, p, func(ctx context.Context) error {
		var err error
		text, err = svc.assistant.Tutor(ctx, question)
		return svc.assistantErr(err, "tutoring")
	})
	if err != nil {
		return Answer{}, report, err
	}
	svc.afterConsume(ctx, p, report)
	return Answer{Question: question, Answer: text}, report, nil
}

func (svc *service) GenerateQuiz(ctx context.Context, p *policy.Principal, topic string, n int) (Quiz, usage.Report, error) {
	var quiz Quiz
	report, err := svc.gate.Metered(ctx, p, func(ctx context.Context) error {
		var err error
		if quiz, err = svc.assistant.GenerateQuiz(ctx, topic, n); err != nil {
			return svc.assistantErr(err, "generating quiz")
		}
		valid := make([]Question, 0, len(quiz.Questions))
		for _, q := range quiz.Questions {
			if q.IsValid() {
				valid = append(valid, q)
			}
		}
		if len(valid) == 0 {
			return svc.assistantErr(errors.New("no valid question generated"), "generating quiz")
		}
		quiz.Topic = topic
		quiz.Questions = valid
		return nil
	})
	if err != nil {
		return Quiz{}, report, err
	}
	svc.afterConsume(ctx, p, report)
	return quiz, report, nil
}

func (svc *service) assistantErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, op)
	}
	svc.logger.Error(op+": "+err.Error(), err)
	return ErrAssistant
}

// afterConsume lets the principal know when they just used their last request of the period.
func (svc *service) afterConsume(ctx context.Context, p *policy.Principal, report usage.Report) {
	if report.Remaining != 0 {
		return
	}
	usr, err := svc.userSvc.GetByID(ctx, p.ID)
	if err != nil {
		svc.logger.Warn("usage limit notification: "+err.Error(), err)
		return
	}
	svc.notify(usr, report)
}
