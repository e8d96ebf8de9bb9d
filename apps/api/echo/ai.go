package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quizzq/backend/core/ai"
	"github.com/quizzq/backend/core/policy"
)

type aiApi struct {
	svc      ai.Service
	validate *validator.Validate
}

func registerAIAPI(g *echo.Group, authed []echo.MiddlewareFunc, s *Server) {
	api := aiApi{svc: s.AISvc, validate: s.Validate}

	ag := g.Group("/ai", authed...)
	ag.POST("/tutor", api.tutor, requireRole(s.Gate, policy.RoleStudent))
	ag.POST("/quizzes", api.generateQuiz, requireRole(s.Gate, policy.RoleTeacher))
	ag.POST("/quizzes/score", api.scoreQuiz, requireRole(s.Gate, policy.RoleStudent))
}

// Handlers

func (api *aiApi) tutor(ctx echo.Context) error {
	var data ai.TutorRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TutorRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ans, report, err := api.svc.Tutor(ctx.Request().Context(), getPrincipal(ctx), data.Question)
	if err != nil {
		return errors.Wrap(err, "tutoring")
	}
	return ctx.JSON(http.StatusOK, TutorResponse{Answer: ans.Answer, Usage: report})
}

func (api *aiApi) generateQuiz(ctx echo.Context) error {
	var data ai.QuizRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	quiz, report, err := api.svc.GenerateQuiz(ctx.Request().Context(), getPrincipal(ctx), data.Topic, data.Count)
	if err != nil {
		return errors.Wrap(err, "generating quiz")
	}
	return ctx.JSON(http.StatusCreated, QuizResponse{Quiz: quiz, Usage: report})
}

func (api *aiApi) scoreQuiz(ctx echo.Context) error {
	var data ai.ScoreRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoreRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ai.Score(data.Quiz, data.Answers))
}
