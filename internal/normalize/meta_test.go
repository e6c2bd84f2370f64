package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacebook_TextMessage(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"messaging": [{
				"sender": {"id": "24681357"},
				"recipient": {"id": "page-1"},
				"timestamp": 1712345678000,
				"message": {"mid": "m_abc", "text": "hello there"}
			}]
		}]
	}`)

	ev, err := Facebook(raw)
	require.NoError(t, err)
	assert.Equal(t, "24681357", ev.RemoteIdentifier)
	assert.Equal(t, "m_abc", ev.ExternalID)
	assert.Equal(t, "hello there", ev.Content)
	assert.Equal(t, "page-1", ev.Extra["page_id"])
	// 显示名要靠 Graph API 二次查询，这里必须为空
	assert.Empty(t, ev.ContactName)
}

func TestFacebook_EchoAlwaysSkipped(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [{
			"messaging": [{
				"sender": {"id": "page-1"},
				"recipient": {"id": "24681357"},
				"message": {"mid": "m_echo", "text": "our own reply", "is_echo": true}
			}]
		}]
	}`)

	_, err := Facebook(raw)
	assert.True(t, IsSkip(err), "want skip, got %v", err)
}

func TestInstagram_ImageAttachment(t *testing.T) {
	raw := []byte(`{
		"object": "instagram",
		"entry": [{
			"messaging": [{
				"sender": {"id": "ig-777"},
				"recipient": {"id": "biz-1"},
				"timestamp": 1712345678000,
				"message": {
					"mid": "m_ig",
					"attachments": [{"type": "image", "payload": {"url": "https://lookaside.example/img.jpg"}}]
				}
			}]
		}]
	}`)

	ev, err := Instagram(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Media)
	assert.Equal(t, "image", ev.Media.Kind)
	assert.Equal(t, "https://lookaside.example/img.jpg", ev.Media.URL)
}

func TestMeta_NonMessageEventsSkipped(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"delivery receipt", `{"object":"page","entry":[{"messaging":[{"sender":{"id":"1"},"delivery":{"mids":["m_1"]}}]}]}`},
		{"read receipt", `{"object":"page","entry":[{"messaging":[{"sender":{"id":"1"},"read":{"watermark":1}}]}]}`},
		{"empty entry", `{"object":"page","entry":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Facebook([]byte(tt.raw))
			assert.True(t, IsSkip(err), "want skip, got %v", err)
		})
	}
}

func TestFacebook_FileAttachmentMapsToDocument(t *testing.T) {
	raw := []byte(`{
		"object": "page",
		"entry": [{
			"messaging": [{
				"sender": {"id": "55"},
				"message": {"mid": "m_f", "attachments": [{"type": "file", "payload": {"url": "https://cdn.example/report.pdf"}}]}
			}]
		}]
	}`)

	ev, err := Facebook(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Media)
	assert.Equal(t, "document", ev.Media.Kind)
}
