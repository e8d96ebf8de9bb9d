// Package tests exercises the HTTP API end to end, against the in-memory store.
package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/quizzq/backend/apps/api/echo"
	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/ai"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
	emailsvc "github.com/quizzq/backend/services/email"
	llmsvc "github.com/quizzq/backend/services/llm"
	"github.com/quizzq/backend/services/ratelimit"
	inmemdb "github.com/quizzq/backend/storage/database/inmem"
	testutil "github.com/quizzq/backend/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// app bundles the server under test with its stores.
type app struct {
	*echoapi.Server
	auth       *echoapi.Auth
	usrRepo    user.Repository
	schoolRepo school.Repository
	meter      *usage.Meter
}

type appOption func(conf *core.Config, assistant *ai.Assistant)

func withAuthRateLimit(n int) appOption {
	return func(conf *core.Config, _ *ai.Assistant) { conf.RateLimit.AuthPerMinute = n }
}

func withAssistant(a ai.Assistant) appOption {
	return func(_ *core.Config, assistant *ai.Assistant) { *assistant = a }
}

func setup(t *testing.T, opts ...appOption) *app {
	t.Helper()

	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.RateLimit.AuthPerMinute = 100
	var assistant ai.Assistant = llmsvc.Offline{}
	for _, opt := range opts {
		opt(conf, &assistant)
	}
	logger := testutil.NewStdLogger("TEST : ")

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	meter := usage.NewMeter(usrRepo, usage.Policy{
		FreeDailyLimit:  conf.Usage.FreeDailyLimit,
		ProMonthlyLimit: conf.Usage.ProMonthlyLimit,
	}, time.UTC)
	gate := policy.NewGate(meter)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)

	// set up server
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		SchoolSvc:  school.NewService(schoolRepo),
		AISvc:      ai.NewServiceMock(assistant, gate, usrSvc, logger),
		Meter:      meter,
		Gate:       gate,
		Limiter:    ratelimit.NewMemoryLimiter(conf.RateLimit.AuthPerMinute, time.Minute),
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() { _ = server.Close() })

	return &app{
		Server:     server,
		auth:       echoapi.NewAuth(conf),
		usrRepo:    usrRepo,
		schoolRepo: schoolRepo,
		meter:      meter,
	}
}

func (a *app) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := a.auth.GenerateToken(a.auth.UserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves one request and returns the recorded response.
func (a *app) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	a.ServeHTTP(rec, req)
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, a *app, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, a.do(method, tt.path, tt.token, tt.body))
		})
	}
}
