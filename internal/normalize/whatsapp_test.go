package normalize

import (
	"testing"
)

func TestWhatsApp_TextMessage(t *testing.T) {
	raw := []byte(`{
		"event": "messages.upsert",
		"instance": "inst-1",
		"data": {
			"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false, "id": "BAE5F4A2"},
			"pushName": "Maria",
			"message": {"conversation": "ola"},
			"messageTimestamp": 1712345678
		}
	}`)

	ev, err := WhatsApp(raw)
	if err != nil {
		t.Fatalf("WhatsApp() error = %v", err)
	}
	if ev.RemoteIdentifier != "5511999999999@s.whatsapp.net" {
		t.Errorf("RemoteIdentifier = %q", ev.RemoteIdentifier)
	}
	if ev.Content != "ola" {
		t.Errorf("Content = %q", ev.Content)
	}
	if ev.ExternalID != "BAE5F4A2" {
		t.Errorf("ExternalID = %q", ev.ExternalID)
	}
	if ev.ContactName != "Maria" {
		t.Errorf("ContactName = %q", ev.ContactName)
	}
	if ev.IsEcho {
		t.Error("IsEcho = true, want false")
	}
}

func TestWhatsApp_DataShapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantJid string
	}{
		{
			name:    "data as array",
			raw:     `{"event":"messages.upsert","data":[{"key":{"remoteJid":"1@s.whatsapp.net","id":"A1"},"message":{"conversation":"hi"}}]}`,
			wantJid: "1@s.whatsapp.net",
		},
		{
			name:    "double data wrapping",
			raw:     `{"event":"messages.upsert","data":{"data":{"key":{"remoteJid":"2@s.whatsapp.net","id":"A2"},"message":{"conversation":"hi"}}}}`,
			wantJid: "2@s.whatsapp.net",
		},
		{
			name:    "no envelope at all",
			raw:     `{"key":{"remoteJid":"3@s.whatsapp.net","id":"A3"},"message":{"conversation":"hi"}}`,
			wantJid: "3@s.whatsapp.net",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := WhatsApp([]byte(tt.raw))
			if err != nil {
				t.Fatalf("WhatsApp() error = %v", err)
			}
			if ev.RemoteIdentifier != tt.wantJid {
				t.Errorf("RemoteIdentifier = %q, want %q", ev.RemoteIdentifier, tt.wantJid)
			}
		})
	}
}

func TestWhatsApp_CaptionWrappedDocument(t *testing.T) {
	raw := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "5511888888888@s.whatsapp.net", "id": "DOC1"},
			"message": {
				"documentWithCaptionMessage": {
					"message": {
						"documentMessage": {"mimetype": "application/pdf", "caption": "invoice", "fileName": "invoice.pdf"}
					}
				}
			}
		}
	}`)

	ev, err := WhatsApp(raw)
	if err != nil {
		t.Fatalf("WhatsApp() error = %v", err)
	}
	if ev.Media == nil {
		t.Fatal("Media = nil, want document ref")
	}
	if ev.Media.Kind != "document" || ev.Media.Mime != "application/pdf" {
		t.Errorf("Media = %+v", ev.Media)
	}
	if ev.Media.Filename != "invoice.pdf" {
		t.Errorf("Filename = %q", ev.Media.Filename)
	}
	if ev.Content != "invoice" {
		t.Errorf("Content = %q", ev.Content)
	}
}

func TestWhatsApp_FromMeIsEchoNotDropped(t *testing.T) {
	// 手机端本人发出的消息不能直接丢弃，标记为回显交由编排器判定
	raw := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "5511777777777@s.whatsapp.net", "fromMe": true, "id": "SELF1"},
			"message": {"conversation": "replying from my phone"}
		}
	}`)

	ev, err := WhatsApp(raw)
	if err != nil {
		t.Fatalf("WhatsApp() error = %v", err)
	}
	if !ev.IsEcho {
		t.Error("IsEcho = false, want true")
	}
	if ev.Content != "replying from my phone" {
		t.Errorf("Content = %q", ev.Content)
	}
}

func TestWhatsApp_Skips(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"group chat", `{"data":{"key":{"remoteJid":"123-456@g.us","id":"G1"},"message":{"conversation":"hi"}}}`},
		{"status broadcast", `{"data":{"key":{"remoteJid":"status@broadcast","id":"S1"},"message":{"conversation":"hi"}}}`},
		{"non message event", `{"event":"connection.update","data":{}}`},
		{"unsupported type", `{"data":{"key":{"remoteJid":"1@s.whatsapp.net","id":"U1"},"message":{"reactionMessage":{}}}}`},
		{"garbage", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WhatsApp([]byte(tt.raw))
			if !IsSkip(err) {
				t.Fatalf("WhatsApp() error = %v, want skip", err)
			}
		})
	}
}

func TestWhatsApp_InlineBase64Media(t *testing.T) {
	raw := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "5511666666666@s.whatsapp.net", "id": "IMG1"},
			"message": {"imageMessage": {"mimetype": "image/jpeg", "caption": "look"}},
			"base64": "aGVsbG8="
		}
	}`)

	ev, err := WhatsApp(raw)
	if err != nil {
		t.Fatalf("WhatsApp() error = %v", err)
	}
	if ev.Media == nil || ev.Media.InlineBase64 != "aGVsbG8=" {
		t.Fatalf("Media = %+v, want inline base64", ev.Media)
	}
}
