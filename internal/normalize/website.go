package normalize

import (
	"encoding/json"
	"time"
)

// 网站聊天组件直接上报 JSON 事件，visitor_id 即会话地址。

type websiteEvent struct {
	Type        string `json:"type"`
	WidgetToken string `json:"widget_token"`
	VisitorID   string `json:"visitor_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
	Attachment *struct {
		URL      string `json:"url"`
		Mime     string `json:"mime"`
		Filename string `json:"filename"`
	} `json:"attachment"`
}

// Website 规范化网站组件上报的事件
func Website(raw []byte) (*Event, error) {
	var we websiteEvent
	if err := json.Unmarshal(raw, &we); err != nil {
		return nil, Skipf("website: unparseable payload: %v", err)
	}

	switch we.Type {
	case "", "message":
	case "ping", "typing", "seen":
		return nil, Skipf("website: control event %q", we.Type)
	default:
		return nil, Skipf("website: event %q not handled", we.Type)
	}

	if we.VisitorID == "" {
		return nil, Skip("website: missing visitor_id")
	}
	if we.Text == "" && we.Attachment == nil {
		return nil, Skip("website: empty message")
	}

	ev := &Event{
		RemoteIdentifier: we.VisitorID,
		ContactName:      we.Name,
		Content:          we.Text,
		ExternalID:       we.MessageID,
		Timestamp:        websiteTimestamp(we.Timestamp),
	}
	ev.Extra = map[string]string{}
	if we.Email != "" {
		ev.Extra["email"] = we.Email
	}
	if we.WidgetToken != "" {
		ev.Extra["widget_token"] = we.WidgetToken
	}
	if we.Attachment != nil {
		ev.Media = &MediaRef{
			Kind:     mediaKindFromMime(we.Attachment.Mime),
			Mime:     we.Attachment.Mime,
			URL:      we.Attachment.URL,
			Filename: we.Attachment.Filename,
		}
	}

	return ev, nil
}

func websiteTimestamp(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}
