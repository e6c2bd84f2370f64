package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegram_PrivateText(t *testing.T) {
	raw := []byte(`{
		"update_id": 10001,
		"message": {
			"message_id": 555,
			"from": {"id": 99, "first_name": "Ivan", "last_name": "Petrov", "username": "ivanp"},
			"chat": {"id": 555, "type": "private"},
			"date": 1712345678,
			"text": "Hi"
		}
	}`)

	ev, err := Telegram(raw)
	require.NoError(t, err)
	assert.Equal(t, "555", ev.RemoteIdentifier)
	assert.Equal(t, "555", ev.ExternalID)
	assert.Equal(t, "Hi", ev.Content)
	assert.Equal(t, "Ivan Petrov", ev.ContactName)
	assert.Nil(t, ev.Media)
}

func TestTelegram_LargestPhotoSelected(t *testing.T) {
	raw := []byte(`{
		"update_id": 10002,
		"message": {
			"message_id": 556,
			"from": {"id": 99, "first_name": "Ivan"},
			"chat": {"id": 555, "type": "private"},
			"date": 1712345678,
			"caption": "check this",
			"photo": [
				{"file_id": "small", "width": 90, "height": 90},
				{"file_id": "medium", "width": 320, "height": 320},
				{"file_id": "large", "width": 1280, "height": 1280}
			]
		}
	}`)

	ev, err := Telegram(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Media)
	assert.Equal(t, "large", ev.Media.ProviderID)
	assert.Equal(t, "image", ev.Media.Kind)
	assert.Equal(t, "check this", ev.Content)
}

func TestTelegram_Skips(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"group chat", `{"update_id":1,"message":{"message_id":1,"chat":{"id":-100,"type":"group"},"text":"hi"}}`},
		{"supergroup", `{"update_id":1,"message":{"message_id":1,"chat":{"id":-100,"type":"supergroup"},"text":"hi"}}`},
		{"callback update", `{"update_id":1,"callback_query":{"id":"cb"}}`},
		{"edited message only", `{"update_id":1,"edited_message":{"message_id":2}}`},
		{"unsupported content", `{"update_id":1,"message":{"message_id":3,"chat":{"id":5,"type":"private"},"location":{"latitude":1}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Telegram([]byte(tt.raw))
			assert.True(t, IsSkip(err), "want skip, got %v", err)
		})
	}
}

func TestTelegram_UsernameFallback(t *testing.T) {
	raw := []byte(`{
		"update_id": 10003,
		"message": {
			"message_id": 557,
			"from": {"id": 99, "username": "ghost"},
			"chat": {"id": 557, "type": "private"},
			"date": 1712345678,
			"text": "hello"
		}
	}`)

	ev, err := Telegram(raw)
	require.NoError(t, err)
	assert.Equal(t, "ghost", ev.ContactName)
}
