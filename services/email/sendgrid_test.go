package emailsvc

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/mail"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/core"
	logsvc "github.com/masomo/feeledger/services/logger"
)

type sgPayload struct {
	Personalizations []struct {
		To         []struct{ Email string } `json:"to"`
		CC         []struct{ Email string } `json:"cc"`
		Subject    string                   `json:"subject"`
		CustomArgs map[string]string        `json:"custom_args"`
	} `json:"personalizations"`
	Categories   []string `json:"categories"`
	MailSettings *struct {
		SandboxMode *struct {
			Enable *bool `json:"enable"`
		} `json:"sandbox_mode"`
	} `json:"mail_settings"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func mockSendgridAPI(t *testing.T, status int) (calls *[]rest.Request) {
	t.Helper()
	reqs := make([]rest.Request, 0)
	orig := sendgridAPIFunc
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		reqs = append(reqs, req)
		return &rest.Response{StatusCode: status, Body: `{"errors":[]}`}, nil
	}
	t.Cleanup(func() { sendgridAPIFunc = orig })
	return &reqs
}

func newTestSendgridService() sendgridService {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "SG.test"
	svc := NewSendgridService(conf, logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf))
	return *svc.(*sendgridService)
}

func TestSendgridService_sendMessage(t *testing.T) {
	calls := mockSendgridAPI(t, http.StatusAccepted)
	svc := newTestSendgridService()

	err := svc.sendMessage(&core.EmailMessage{
		To:           []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
		Cc:           []mail.Address{{Name: "John", Address: "john@test.cd"}},
		Subject:      "Payment receipt TXN-1",
		BodyStr:      "paid",
		Reference:    "TXN-1",
		TemplateName: "payment_receipt",
	})
	require.NoError(t, err)
	require.Len(t, *calls, 1)

	req := (*calls)[0]
	assert.Equal(t, http.MethodPost, string(req.Method))
	assert.Equal(t, sendgridHost+sendgridEndpoint, req.BaseURL)
	assert.Equal(t, "Bearer SG.test", req.Headers["Authorization"])

	var payload sgPayload
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	require.Len(t, payload.Personalizations, 1)
	p := payload.Personalizations[0]
	assert.Equal(t, "["+svc.appName+"] Payment receipt TXN-1", p.Subject)
	assert.Equal(t, "jane@test.cd", p.To[0].Email)
	assert.Equal(t, "john@test.cd", p.CC[0].Email)
	assert.Equal(t, "TXN-1", p.CustomArgs[referenceArg])
	assert.Equal(t, []string{"payment_receipt"}, payload.Categories)
	require.NotNil(t, payload.MailSettings)
	require.NotNil(t, payload.MailSettings.SandboxMode)
	assert.True(t, *payload.MailSettings.SandboxMode.Enable)
	require.Len(t, payload.Content, 1)
	assert.Equal(t, "paid", payload.Content[0].Value)
}

func TestSendgridService_sendMessage_skipsAndFailures(t *testing.T) {
	t.Run("no recipients", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusAccepted)
		svc := newTestSendgridService()
		require.NoError(t, svc.sendMessage(&core.EmailMessage{Subject: "hi", BodyStr: "hello"}))
		assert.Empty(t, *calls)
	})

	t.Run("no content", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusAccepted)
		svc := newTestSendgridService()
		require.NoError(t, svc.sendMessage(&core.EmailMessage{
			To:      []mail.Address{{Address: "jane@test.cd"}},
			Subject: "hi",
		}))
		assert.Empty(t, *calls)
	})

	t.Run("unknown template", func(t *testing.T) {
		calls := mockSendgridAPI(t, http.StatusAccepted)
		svc := newTestSendgridService()
		err := svc.sendMessage(&core.EmailMessage{
			To:           []mail.Address{{Address: "jane@test.cd"}},
			TemplateName: "does_not_exist",
		})
		assert.Error(t, err)
		assert.Empty(t, *calls)
	})

	t.Run("rejected by sendgrid", func(t *testing.T) {
		mockSendgridAPI(t, http.StatusBadRequest)
		svc := newTestSendgridService()
		err := svc.sendMessage(&core.EmailMessage{
			To:      []mail.Address{{Address: "jane@test.cd"}},
			Subject: "hi",
			BodyStr: "hello",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status: 400")
	})
}
