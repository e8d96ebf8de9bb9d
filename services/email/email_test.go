package emailsvc

import (
	"log"
	"net/mail"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core"
)

type stdLogger struct{ *log.Logger }

func (l stdLogger) Debug(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Info(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Warn(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Error(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Fatal(msg string, _ ...interface{}) { l.Fatalln(msg) }

func testConfig() *core.Config {
	conf := core.NewConfig()
	conf.AppName = "QuizzQ"
	conf.FrontendBaseURL = "https://app.quizzq.test"
	return conf
}

func TestConsoleServiceMock(t *testing.T) {
	logger := stdLogger{log.New(os.Stdout, "TEST : ", 0)}
	core.ParseEmailTemplates(logger)
	ResetSentMessages()
	t.Cleanup(ResetSentMessages)

	svc := NewConsoleServiceMock(testConfig(), logger)
	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ada", Address: "ada@test.cd"}},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Ada", "UID": "dWlk", "Token": "tok"},
		},
		&core.EmailMessage{Subject: "nobody to send to", BodyStr: "hello"},
	)

	require.Len(t, SentMessages, 1)
	assert.Contains(t, SentMessages[0].TextContent, "https://app.quizzq.test/password-reset/dWlk/tok")
	assert.NotEmpty(t, SentMessages[0].HTMLContent)
}

func TestSendgridService_Prepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), stdLogger{log.New(os.Stdout, "TEST : ", 0)}).(*sendgridService)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@test.cd"}},
		Bcc:         []mail.Address{{Address: "audit@test.cd"}},
		Subject:     "Hi",
		TextContent: "hello",
	})

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[QuizzQ] Hi", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "ada@test.cd", p.To[0].Address)
	require.Len(t, p.BCC, 1)
	require.Len(t, m.Content, 1, "no html part without html content")
	assert.Equal(t, "text/plain", m.Content[0].Type)
}
