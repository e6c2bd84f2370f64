package normalize

import (
	"encoding/json"
	"time"
)

// Facebook Messenger 与 Instagram 共用同一套 entry[].messaging[] 结构，
// 差异只在 envelope 的 object 字段与 sender 身份的语义。

type metaEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string         `json:"id"`
		Messaging []metaMessaging `json:"messaging"`
	} `json:"entry"`
}

type metaMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		Mid         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
}

// Facebook 规范化 Messenger 回调事件
func Facebook(raw []byte) (*Event, error) {
	return normalizeMeta(raw, "facebook")
}

// Instagram 规范化 Instagram Messaging 回调事件
func Instagram(raw []byte) (*Event, error) {
	return normalizeMeta(raw, "instagram")
}

func normalizeMeta(raw []byte, provider string) (*Event, error) {
	var env metaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Skipf("%s: unparseable payload: %v", provider, err)
	}

	for _, entry := range env.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil {
				// delivery/read/postback 等非消息事件
				continue
			}
			// 平台回显的本方消息一律跳过，面板外发走独立链路
			if m.Message.IsEcho {
				return nil, Skipf("%s: echo message", provider)
			}
			if m.Sender.ID == "" {
				continue
			}

			ev := &Event{
				RemoteIdentifier: m.Sender.ID,
				ExternalID:       m.Message.Mid,
				Content:          m.Message.Text,
				Timestamp:        metaTimestamp(m.Timestamp),
				Extra:            map[string]string{"page_id": m.Recipient.ID},
			}

			for _, att := range m.Message.Attachments {
				switch att.Type {
				case "image", "video", "audio", "file":
					kind := att.Type
					if kind == "file" {
						kind = "document"
					}
					ev.Media = &MediaRef{Kind: kind, URL: att.Payload.URL}
				}
				if ev.Media != nil {
					break
				}
			}

			return ev, nil
		}
	}

	return nil, Skipf("%s: no message in payload", provider)
}

func metaTimestamp(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}
