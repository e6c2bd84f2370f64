package normalize

import (
	"encoding/json"
	"strconv"
	"time"
)

// WhatsApp Cloud API 的事件嵌套在 entry[].changes[].value 下，
// 媒体只给不透明 ID，需经 Graph API 两步拉取。

type cloudEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string     `json:"field"`
			Value cloudValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []cloudMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type cloudMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *cloudMedia `json:"image"`
	Video    *cloudMedia `json:"video"`
	Audio    *cloudMedia `json:"audio"`
	Document *cloudMedia `json:"document"`
	Sticker  *cloudMedia `json:"sticker"`
}

type cloudMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// WhatsAppCloud 规范化 Cloud API 回调事件
func WhatsAppCloud(raw []byte) (*Event, error) {
	var env cloudEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Skipf("whatsapp_cloud: unparseable payload: %v", err)
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			if len(v.Messages) == 0 {
				// 纯回执报文（statuses）不入库
				continue
			}
			msg := v.Messages[0]

			ev := &Event{
				RemoteIdentifier: msg.From,
				ExternalID:       msg.ID,
				Timestamp:        cloudTimestamp(msg.Timestamp),
				Extra:            map[string]string{"phone_number_id": v.Metadata.PhoneNumberID},
			}
			if len(v.Contacts) > 0 {
				ev.ContactName = v.Contacts[0].Profile.Name
			}

			switch msg.Type {
			case "text":
				if msg.Text != nil {
					ev.Content = msg.Text.Body
				}
			case "image":
				ev.Content = captionOf(msg.Image)
				ev.Media = cloudMediaRef("image", msg.Image)
			case "video":
				ev.Content = captionOf(msg.Video)
				ev.Media = cloudMediaRef("video", msg.Video)
			case "audio":
				ev.Media = cloudMediaRef("audio", msg.Audio)
			case "document":
				ev.Content = captionOf(msg.Document)
				ev.Media = cloudMediaRef("document", msg.Document)
			case "sticker":
				ev.Media = cloudMediaRef("sticker", msg.Sticker)
			default:
				return nil, Skipf("whatsapp_cloud: unsupported message type %q", msg.Type)
			}

			return ev, nil
		}
	}

	return nil, Skip("whatsapp_cloud: no message in payload")
}

func captionOf(m *cloudMedia) string {
	if m == nil {
		return ""
	}
	return m.Caption
}

func cloudMediaRef(kind string, m *cloudMedia) *MediaRef {
	if m == nil {
		return nil
	}
	return &MediaRef{
		Kind:       kind,
		Mime:       m.MimeType,
		ProviderID: m.ID,
		Filename:   m.Filename,
	}
}

func cloudTimestamp(s string) time.Time {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0)
	}
	return time.Now()
}
