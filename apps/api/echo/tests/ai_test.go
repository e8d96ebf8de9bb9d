package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core/ai"
	"github.com/quizzq/backend/core/usage"
	emailsvc "github.com/quizzq/backend/services/email"
	llmsvc "github.com/quizzq/backend/services/llm"
	testutil "github.com/quizzq/backend/tests"
)

type brokenAssistant struct {
	llmsvc.Offline
}

func (brokenAssistant) Tutor(context.Context, string) (string, error) {
	return "", errors.New("upstream is down")
}

func Test_aiApi_tutor(t *testing.T) {
	a := setup(t)
	w := seed(t, a)
	studentToken := a.getToken(t, w.studentA)
	question := marchallObj(t, map[string]string{"question": "Why is the sky blue?"})

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/ai/tutor", body: question, wantCode: http.StatusUnauthorized},
		{
			name: "members are not students", method: http.MethodPost, path: "/v1/ai/tutor", token: a.getToken(t, w.member),
			body: question, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "question required", method: http.MethodPost, path: "/v1/ai/tutor", token: studentToken,
			body: marchallObj(t, map[string]string{"question": " "}), wantCode: http.StatusBadRequest,
		},
	})

	emailsvc.ResetSentMessages()
	for i := 1; i <= 10; i++ {
		rec := a.do(http.MethodPost, "/v1/ai/tutor", studentToken, question)
		require.Equal(t, http.StatusOK, rec.Code, "request %d: %s", i, rec.Body.String())
		var resp struct {
			Answer string
			Usage  usage.Report
		}
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Answer)
		assert.Equal(t, 10-i, resp.Usage.Remaining)
	}
	require.Len(t, emailsvc.SentMessages, 1, "the last use is notified")
	assert.Equal(t, "usage_limit_reached", emailsvc.SentMessages[0].TemplateName)

	rec := a.do(http.MethodPost, "/v1/ai/tutor", studentToken, question)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	var denied struct {
		Error   string
		Upgrade string
		Usage   usage.Report
	}
	unmarshal(t, rec, &denied)
	assert.Equal(t, "usage limit reached", denied.Error)
	assert.Contains(t, denied.Upgrade, "Upgrade to Pro")
	assert.Equal(t, 10, denied.Usage.Daily)
	assert.Equal(t, 0, denied.Usage.Remaining)

	report, err := a.meter.Report(context.Background(), w.studentA.ID, w.studentA.Tier)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Daily, "a denied request is not counted")
}

func Test_aiApi_tutorFailureIsFree(t *testing.T) {
	a := setup(t, withAssistant(brokenAssistant{}))
	w := seed(t, a)

	rec := a.do(http.MethodPost, "/v1/ai/tutor", a.getToken(t, w.studentA), marchallObj(t, map[string]string{"question": "2+2?"}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusInternalServerError, wantData: marchallObj(t, httpErr{Error: ai.ErrAssistant.Error()})}, rec)

	report, err := a.meter.Report(context.Background(), w.studentA.ID, w.studentA.Tier)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Daily)
	assert.EqualValues(t, 0, report.Lifetime)
}

func Test_aiApi_quizzes(t *testing.T) {
	a := setup(t)
	w := seed(t, a)

	runHTTPTests(t, a, []httpTest{
		{
			name: "students cannot generate quizzes", method: http.MethodPost, path: "/v1/ai/quizzes", token: a.getToken(t, w.studentA),
			body: marchallObj(t, map[string]interface{}{"topic": "Photosynthesis"}), wantCode: http.StatusForbidden,
		},
		{
			name: "too many questions", method: http.MethodPost, path: "/v1/ai/quizzes", token: a.getToken(t, w.teacherA),
			body: marchallObj(t, map[string]interface{}{"topic": "Photosynthesis", "count": 50}), wantCode: http.StatusBadRequest,
		},
	})

	var quiz ai.Quiz
	t.Run("generate", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/v1/ai/quizzes", a.getToken(t, w.teacherA),
			marchallObj(t, map[string]interface{}{"topic": "Photosynthesis", "count": 4}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp struct {
			Quiz  ai.Quiz
			Usage usage.Report
		}
		unmarshal(t, rec, &resp)
		quiz = resp.Quiz
		assert.Equal(t, "Photosynthesis", quiz.Topic)
		assert.Len(t, quiz.Questions, 4)
		assert.Equal(t, usage.TierPro, resp.Usage.Tier)
		assert.Equal(t, 999, resp.Usage.Remaining)
	})

	t.Run("forever is unlimited", func(t *testing.T) {
		_, err := a.usrRepo.SetSubscriptionTier(context.Background(), w.teacherA.ID, usage.TierForever)
		require.NoError(t, err)
		rec := a.do(http.MethodPost, "/v1/ai/quizzes", a.getToken(t, w.teacherA), marchallObj(t, map[string]interface{}{"topic": "Volcanoes"}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp struct {
			Quiz  ai.Quiz
			Usage usage.Report
		}
		unmarshal(t, rec, &resp)
		assert.Len(t, resp.Quiz.Questions, 5, "5 questions by default")
		assert.Equal(t, -1, resp.Usage.Remaining)
		assert.Nil(t, resp.Usage.ResetAt)
	})

	t.Run("score", func(t *testing.T) {
		answers := make([]int, len(quiz.Questions))
		for i, q := range quiz.Questions {
			answers[i] = q.Answer
		}
		answers[0] = (answers[0] + 1) % len(quiz.Questions[0].Choices)

		testutil.ConsumeN(t, a.meter, w.studentA, 10)
		rec := a.do(http.MethodPost, "/v1/ai/quizzes/score", a.getToken(t, w.studentA),
			marchallObj(t, map[string]interface{}{"quiz": quiz, "answers": answers}))
		require.Equal(t, http.StatusOK, rec.Code, "scoring is not metered: %s", rec.Body.String())
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, ai.Result{Correct: 3, Total: 4, Percentage: 75})}, rec)
	})
}
