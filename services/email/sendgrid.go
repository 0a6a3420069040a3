package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/masomo/feeledger/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"

	referenceArg = "reference"
)

var sendgridAPIFunc = sendgrid.API // mockable

type sendgridService struct {
	appName    string
	key        string
	from       *sgmail.Email
	subjPrefix string
	sandbox    bool
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

// NewSendgridService sends emails through the sendgrid v3 API.
// Outside of PROD, messages are validated by sendgrid (sandbox mode) but never delivered.
func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail
	return &sendgridService{
		appName:    conf.AppName,
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		sandbox:    conf.Env != "PROD",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.sendMessage(msg); err != nil {
				svc.logger.Error(err.Error(), err, map[string]interface{}{
					"subject":   msg.Subject,
					"template":  msg.TemplateName,
					"reference": msg.Reference,
				})
			}
		}()
	}
}

// sendMessage renders and posts one message; messages without recipients or content are dropped.
func (svc sendgridService) sendMessage(msg *core.EmailMessage) error {
	if err := msg.Render(svc.appName); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return nil
	}

	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(*msg))

	res, err := sendgridAPIFunc(req)
	if err != nil {
		return errors.Wrap(err, "sending email")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sending email - status: %d: %s", res.StatusCode, res.Body)
	}
	svc.logger.Debug(fmt.Sprintf("email %q sent (status: %d)", msg.Subject, res.StatusCode))
	return nil
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(toSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(toSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(toSGEmail(bcc))
	}
	if msg.Reference != "" {
		p.SetCustomArg(referenceArg, msg.Reference)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}
	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, at := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     at.Content.String(),
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}
	return m
}

func toSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}
