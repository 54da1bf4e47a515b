package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{}) {}
func (l *recordingLogger) Warn(string, ...interface{}) {}
func (l *recordingLogger) Fatal(string, ...interface{}) {}
func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

type payload struct {
	From             sgmail.Email `json:"from"`
	Personalizations []struct {
		To      []sgmail.Email `json:"to"`
		CC      []sgmail.Email `json:"cc"`
		BCC     []sgmail.Email `json:"bcc"`
		Subject string         `json:"subject"`
	} `json:"personalizations"`
	Content      []sgmail.Content    `json:"content"`
	Attachments  []sgmail.Attachment `json:"attachments"`
	Categories   []string            `json:"categories"`
	MailSettings *struct {
		SandboxMode *struct {
			Enable *bool `json:"enable"`
		} `json:"sandbox_mode"`
	} `json:"mail_settings"`
}

func newTestSendgrid(sandbox bool, status int) (*sendgridService, *recordingLogger, *[]rest.Request) {
	logger := new(recordingLogger)
	reqs := new([]rest.Request)
	svc := &sendgridService{
		key:        "SG.test",
		from:       sgmail.NewEmail("Shule", "noreply@shule.test"),
		subjPrefix: "[Shule] ",
		category:   "shule",
		sandbox:    sandbox,
		logger:     logger,
		post: func(req rest.Request) (*rest.Response, error) {
			*reqs = append(*reqs, req)
			return &rest.Response{StatusCode: status, Body: `{"errors":[]}`}, nil
		},
	}
	return svc, logger, reqs
}

func decodePayload(t *testing.T, req rest.Request) payload {
	t.Helper()
	var p payload
	require.NoError(t, json.Unmarshal(req.Body, &p))
	return p
}

func TestSendgridService_send(t *testing.T) {
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
		Cc:          []mail.Address{{Address: "JANE@example.com"}, {Name: "Bursar", Address: "bursar@example.com"}},
		Bcc:         []mail.Address{{Address: "bursar@example.com"}, {Address: "audit@example.com"}},
		Subject:     "Fees",
		TextContent: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "fees.csv", "text/csv"))

	t.Run("payload", func(t *testing.T) {
		svc, _, reqs := newTestSendgrid(true, http.StatusAccepted)
		require.NoError(t, svc.send(svc.newMail(msg)))
		require.Len(t, *reqs, 1)

		req := (*reqs)[0]
		assert.Equal(t, rest.Post, req.Method)
		assert.Equal(t, sendgridHost+sendgridEndpoint, req.BaseURL)
		assert.Equal(t, "Bearer SG.test", req.Headers["Authorization"])

		p := decodePayload(t, req)
		assert.Equal(t, "Shule", p.From.Name)
		require.Len(t, p.Personalizations, 1)
		pers := p.Personalizations[0]
		assert.Equal(t, "[Shule] Fees", pers.Subject)
		assert.Equal(t, []sgmail.Email{{Name: "Jane", Address: "jane@example.com"}}, pers.To)
		assert.Equal(t, []sgmail.Email{{Name: "Bursar", Address: "bursar@example.com"}}, pers.CC)
		assert.Equal(t, []sgmail.Email{{Address: "audit@example.com"}}, pers.BCC)
		assert.Equal(t, []sgmail.Content{{Type: "text/plain", Value: "see attached"}}, p.Content)
		require.Len(t, p.Attachments, 1)
		assert.Equal(t, "fees.csv", p.Attachments[0].Filename)
		assert.Equal(t, "YSxiCjEsMgo=", p.Attachments[0].Content)
		assert.Equal(t, []string{"shule"}, p.Categories)
		require.NotNil(t, p.MailSettings)
		require.NotNil(t, p.MailSettings.SandboxMode)
		assert.True(t, *p.MailSettings.SandboxMode.Enable)
	})

	t.Run("live", func(t *testing.T) {
		svc, _, reqs := newTestSendgrid(false, http.StatusAccepted)
		html := core.EmailMessage{To: msg.To, Subject: "Report", HTMLContent: "<p>hi</p>"}
		require.NoError(t, svc.send(svc.newMail(html)))

		p := decodePayload(t, (*reqs)[0])
		assert.Nil(t, p.MailSettings)
		assert.Equal(t, []sgmail.Content{{Type: "text/html", Value: "<p>hi</p>"}}, p.Content)
	})

	t.Run("attachment only", func(t *testing.T) {
		svc, _, reqs := newTestSendgrid(false, http.StatusAccepted)
		bare := msg
		bare.TextContent = ""
		require.NoError(t, svc.send(svc.newMail(bare)))
		assert.Equal(t, []sgmail.Content{{Type: "text/plain", Value: "Fees"}}, decodePayload(t, (*reqs)[0]).Content)
	})

	t.Run("rejected", func(t *testing.T) {
		svc, _, _ := newTestSendgrid(false, http.StatusBadRequest)
		assert.EqualError(t, svc.send(svc.newMail(msg)), `sendgrid responded 400: {"errors":[]}`)
	})
}

func TestSendgridService_sendMessage(t *testing.T) {
	svc, logger, reqs := newTestSendgrid(true, http.StatusUnauthorized)

	svc.sendMessage(&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"})
	assert.Empty(t, *reqs)

	svc.sendMessage(&core.EmailMessage{To: []mail.Address{{Address: "john@example.com"}}, Subject: "Hello", BodyStr: "hi"})
	require.Len(t, *reqs, 1)
	assert.Equal(t, []sgmail.Content{{Type: "text/plain", Value: "hi"}}, decodePayload(t, (*reqs)[0]).Content)
	assert.Equal(t, []string{"sending email"}, logger.errors)
}
