package emailsvc

import (
	"net/mail"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/workdesk/core"
)

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	tmpl := template.Must(template.New("t").Parse("Hi {{.}}"))

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "s@x.com"}}, Subject: "Hello", Template: tmpl, TemplateData: "Sam"},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi Sam", sent[0].TextContent)
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, nil).(*sendgridService)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Sam", Address: "s@x.com"}},
		Subject:     "Welcome",
		TextContent: "hello",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Workdesk] Welcome", m.Personalizations[0].Subject)
	assert.Equal(t, "s@x.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "hello", m.Content[0].Value)
}

func TestNewService(t *testing.T) {
	conf := core.NewTestConfig()
	_, ok := NewService(conf, nil).(*ConsoleService)
	assert.True(t, ok)
}
