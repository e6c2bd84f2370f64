package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail_FromHeaderParsed(t *testing.T) {
	raw := []byte(`{
		"from": "Jane Doe <Jane.Doe@Example.com>",
		"to": "support@acme.io",
		"subject": "Order question",
		"text": "Where is my order?",
		"message_id": "<abc123@example.com>",
		"date": "Mon, 08 Apr 2024 10:01:02 +0000"
	}`)

	ev, err := Email(raw)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", ev.RemoteIdentifier)
	assert.Equal(t, "Jane Doe", ev.ContactName)
	assert.Equal(t, "Where is my order?", ev.Content)
	assert.Equal(t, "<abc123@example.com>", ev.ExternalID)
	assert.Equal(t, "Order question", ev.Extra["subject"])
	assert.Equal(t, "support@acme.io", ev.Extra["address"])
}

func TestEmail_RecipientAddressCarried(t *testing.T) {
	raw := []byte(`{"from": "bob@example.com", "to": "Acme Support <SUPPORT@Acme.com>", "subject": "x", "text": "hi"}`)

	ev, err := Email(raw)
	require.NoError(t, err)
	assert.Equal(t, "support@acme.com", ev.Extra["address"])

	// 没有 to 字段时不放地址,路由走会话反查或兜底
	ev, err = Email([]byte(`{"from": "bob@example.com", "subject": "x", "text": "hi"}`))
	require.NoError(t, err)
	_, ok := ev.Extra["address"]
	assert.False(t, ok)
}

func TestEmail_BareAddress(t *testing.T) {
	raw := []byte(`{"from": "bob@example.com", "subject": "hey", "text": "hi"}`)

	ev, err := Email(raw)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", ev.RemoteIdentifier)
	assert.Empty(t, ev.ContactName)
}

func TestEmail_SubjectAsContentFallback(t *testing.T) {
	raw := []byte(`{"from": "bob@example.com", "subject": "just the subject", "text": ""}`)

	ev, err := Email(raw)
	require.NoError(t, err)
	assert.Equal(t, "just the subject", ev.Content)
}

func TestEmail_AttachmentCarried(t *testing.T) {
	raw := []byte(`{
		"from": "bob@example.com",
		"subject": "contract",
		"text": "see attached",
		"attachments": [{"filename": "contract.pdf", "content_type": "application/pdf", "content": "JVBERi0="}]
	}`)

	ev, err := Email(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Media)
	assert.Equal(t, "document", ev.Media.Kind)
	assert.Equal(t, "contract.pdf", ev.Media.Filename)
	assert.Equal(t, "JVBERi0=", ev.Media.InlineBase64)
}

func TestEmail_EmptySkipped(t *testing.T) {
	for name, raw := range map[string]string{
		"no from":    `{"subject": "x", "text": "y"}`,
		"no content": `{"from": "a@b.c", "subject": "", "text": ""}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Email([]byte(raw))
			assert.True(t, IsSkip(err), "want skip, got %v", err)
		})
	}
}

func TestWebsite_MessageAndControls(t *testing.T) {
	ev, err := Website([]byte(`{"type":"message","visitor_id":"v_9f2","name":"Guest","text":"pricing?","message_id":"wm-1","timestamp":1712345678000}`))
	require.NoError(t, err)
	assert.Equal(t, "v_9f2", ev.RemoteIdentifier)
	assert.Equal(t, "pricing?", ev.Content)

	for _, kind := range []string{"ping", "typing", "seen"} {
		_, err := Website([]byte(`{"type":"` + kind + `","visitor_id":"v_9f2"}`))
		assert.True(t, IsSkip(err), "%s should be skipped", kind)
	}
}
