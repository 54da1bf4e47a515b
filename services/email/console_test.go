package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ResetSentMessages()
	svc := NewConsoleServiceMock()

	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
		Subject: "Fees",
		BodyStr: "see attached",
	}
	require.NoError(t, withAttachment.Attach(strings.NewReader("a,b\n1,2\n"), "fees.csv", "text/csv"))

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "john@example.com"}}, Subject: "Hello", BodyStr: "hi"},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "empty@example.com"}}, Subject: "no content"},
		withAttachment,
	)

	sent := Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Hello", sent[0].Subject)
	assert.Equal(t, "hi", sent[0].TextContent)
	assert.Equal(t, "Fees", sent[1].Subject)
	assert.Len(t, sent[1].Attachments, 1)
}
