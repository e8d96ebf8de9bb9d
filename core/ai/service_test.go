package ai

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

type stdLogger struct{ *log.Logger }

func (l stdLogger) Debug(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Info(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Warn(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Error(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Fatal(msg string, _ ...interface{}) { l.Fatalln(msg) }

type counterStore struct {
	mu       sync.Mutex
	counters map[string]usage.Counter
}

func (s *counterStore) GetUsage(_ context.Context, id string) (usage.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[id], nil
}

func (s *counterStore) ConsumeUsage(_ context.Context, id string, w usage.Window, lim usage.Limit) (usage.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[id].Normalize(w)
	if lim.Exceeded(c) {
		return usage.Counter{}, usage.ErrLimitExceeded
	}
	c = c.Increment(w)
	s.counters[id] = c
	return c, nil
}

func (s *counterStore) ResetUsage(_ context.Context, id string, w usage.Window) (usage.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := usage.Counter{Lifetime: s.counters[id].Lifetime, LastReset: w.Now}
	s.counters[id] = c
	return c, nil
}

type fakeAssistant struct {
	calls int
	err   error
	quiz  Quiz
}

func (a *fakeAssistant) Tutor(_ context.Context, question string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return "the answer to " + question, nil
}

func (a *fakeAssistant) GenerateQuiz(_ context.Context, _ string, _ int) (Quiz, error) {
	a.calls++
	return a.quiz, a.err
}

// userSvc only knows how to find a user and records limit notifications.
type userSvc struct {
	user.Service
	notified []usage.Report
}

func (s *userSvc) GetByID(_ context.Context, id string) (user.User, error) {
	return user.User{ID: id, Name: "Jane", Email: "jane@test.cd"}, nil
}

func (s *userSvc) NotifyUsageLimitReached(_ user.User, report usage.Report) {
	s.notified = append(s.notified, report)
}

func newTestService(assistant Assistant) (*service, *counterStore, *userSvc) {
	store := &counterStore{counters: make(map[string]usage.Counter)}
	gate := policy.NewGate(usage.NewMeter(store, usage.DefaultPolicy, nil))
	users := &userSvc{}
	svc := NewServiceMock(assistant, gate, users, stdLogger{log.New(os.Stdout, "TEST : ", 0)}).(*service)
	return svc, store, users
}

func TestService_Tutor(t *testing.T) {
	ctx := context.Background()
	p := &policy.Principal{ID: "u1", Role: policy.RoleStudent, TenantID: "A", Tier: usage.TierFree}

	t.Run("charges one use", func(t *testing.T) {
		svc, store, _ := newTestService(&fakeAssistant{})
		ans, report, err := svc.Tutor(ctx, p, "what is 2+2?")
		require.NoError(t, err)
		assert.Equal(t, "the answer to what is 2+2?", ans.Answer)
		assert.Equal(t, 9, report.Remaining)
		assert.Equal(t, 1, store.counters["u1"].Daily)
	})

	t.Run("assistant failure is free", func(t *testing.T) {
		svc, store, _ := newTestService(&fakeAssistant{err: errors.New("boom")})
		_, _, err := svc.Tutor(ctx, p, "hello?")
		assert.Equal(t, ErrAssistant, err)
		assert.Equal(t, 0, store.counters["u1"].Daily)
	})

	t.Run("cancelled request is not reported as an assistant failure", func(t *testing.T) {
		svc, _, _ := newTestService(&fakeAssistant{err: context.Canceled})
		_, _, err := svc.Tutor(ctx, p, "hello?")
		assert.Equal(t, context.Canceled, errors.Cause(err))
	})

	t.Run("last use notifies, next one is denied without calling the assistant", func(t *testing.T) {
		assistant := &fakeAssistant{}
		svc, store, users := newTestService(assistant)
		w := usage.NewWindow(time.Now(), nil)
		store.counters["u1"] = usage.Counter{Daily: 9, Monthly: 9, Lifetime: 9, LastReset: w.Now}

		_, report, err := svc.Tutor(ctx, p, "one more")
		require.NoError(t, err)
		assert.Equal(t, 0, report.Remaining)
		require.Len(t, users.notified, 1)
		assert.Equal(t, 10, users.notified[0].Limit.Max)

		_, _, err = svc.Tutor(ctx, p, "and another")
		dErr, ok := policy.IsDenied(err)
		require.True(t, ok)
		assert.Equal(t, policy.ReasonUsageLimitExceeded, dErr.Reason)
		assert.Equal(t, 1, assistant.calls)
		assert.Equal(t, 10, store.counters["u1"].Daily)
	})

	t.Run("forever tier never runs out", func(t *testing.T) {
		svc, store, users := newTestService(&fakeAssistant{})
		forever := &policy.Principal{ID: "u2", Role: policy.RoleStudent, Tier: usage.TierForever}
		for i := 0; i < 25; i++ {
			_, report, err := svc.Tutor(ctx, forever, "again")
			require.NoError(t, err)
			assert.Equal(t, -1, report.Remaining)
		}
		assert.EqualValues(t, 25, store.counters["u2"].Lifetime)
		assert.Empty(t, users.notified)
	})
}

func TestService_GenerateQuiz(t *testing.T) {
	ctx := context.Background()
	p := &policy.Principal{ID: "t1", Role: policy.RoleTeacher, TenantID: "A", Tier: usage.TierPro}
	good := Question{Prompt: "2+2?", Choices: []string{"3", "4"}, Answer: 1}
	bad := Question{Prompt: "?", Choices: []string{"only"}, Answer: 3}

	svc, store, _ := newTestService(&fakeAssistant{quiz: Quiz{Questions: []Question{good, bad}}})
	quiz, report, err := svc.GenerateQuiz(ctx, p, "maths", 2)
	require.NoError(t, err)
	assert.Equal(t, "maths", quiz.Topic)
	assert.Equal(t, []Question{good}, quiz.Questions)
	assert.Equal(t, 999, report.Remaining)
	assert.Equal(t, 1, store.counters["t1"].Monthly)

	svc, store, _ = newTestService(&fakeAssistant{quiz: Quiz{Questions: []Question{bad}}})
	_, _, err = svc.GenerateQuiz(ctx, p, "maths", 1)
	assert.Equal(t, ErrAssistant, err)
	assert.Equal(t, 0, store.counters["t1"].Monthly)
}

func TestScore(t *testing.T) {
	quiz := Quiz{Questions: []Question{
		{Prompt: "a", Choices: []string{"x", "y"}, Answer: 0},
		{Prompt: "b", Choices: []string{"x", "y"}, Answer: 1},
		{Prompt: "c", Choices: []string{"x", "y"}, Answer: 1},
	}}

	tests := []struct {
		name    string
		quiz    Quiz
		answers []int
		want    Result
	}{
		{"all correct", quiz, []int{0, 1, 1}, Result{Correct: 3, Total: 3, Percentage: 100}},
		{"one wrong", quiz, []int{0, 0, 1}, Result{Correct: 2, Total: 3, Percentage: 66.67}},
		{"missing answers", quiz, []int{0}, Result{Correct: 1, Total: 3, Percentage: 33.33}},
		{"out of range", quiz, []int{5, -1, 1}, Result{Correct: 1, Total: 3, Percentage: 33.33}},
		{"empty quiz", Quiz{}, []int{1}, Result{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.quiz, tt.answers))
		})
	}
}
