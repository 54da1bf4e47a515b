package emailsvc

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/shule/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	category   string
	sandbox    bool // accepted and validated by SendGrid, never delivered
	logger     core.Logger
	post       func(rest.Request) (*rest.Response, error)
}

var _ core.EmailService = (*sendgridService)(nil)

// NewSendgridService sends emails through the SendGrid v3 API.
// Messages go through SendGrid's sandbox when the app runs in test mode.
func NewSendgridService(logger core.Logger) core.EmailService {
	from := core.Conf.DefaultFromEmail()
	if from.Name == "" {
		from.Name = core.Conf.AppName
	}
	return &sendgridService{
		key:        core.Conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + core.Conf.AppName + "] ",
		category:   strings.ToLower(core.Conf.AppName),
		sandbox:    core.Conf.TestMode,
		logger:     logger,
		post:       sendgrid.MakeRequest,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc sendgridService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		svc.logger.Error("rendering email", err)
		return
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return
	}
	if err := svc.send(svc.newMail(*msg)); err != nil {
		svc.logger.Error("sending email", err, map[string]interface{}{"subject": msg.Subject})
	}
}

// newMail builds the v3 payload of msg. An address is only kept once across To, Cc and Bcc.
func (svc sendgridService) newMail(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	seen := make(map[string]bool)
	recipients := func(addrs []mail.Address, add func(...*sgmail.Email)) {
		for _, addr := range addrs {
			key := strings.ToLower(addr.Address)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			add(sgmail.NewEmail(addr.Name, addr.Address))
		}
	}
	recipients(msg.To, p.AddTos)
	recipients(msg.Cc, p.AddCCs)
	recipients(msg.Bcc, p.AddBCCs)

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	// text/plain must come first; empty values are rejected
	text := msg.TextContent
	if text == "" && msg.HTMLContent == "" {
		text = msg.Subject
	}
	if text != "" {
		m.AddContent(sgmail.NewContent("text/plain", text))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, at := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     at.Content.String(), // already base64
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}

	if svc.category != "" {
		m.AddCategories(svc.category)
	}
	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}
	return m
}

func (svc sendgridService) send(m *sgmail.SGMailV3) error {
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := svc.post(req)
	if err != nil {
		return errors.Wrap(err, "posting to sendgrid")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
