package normalize

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"
)

// 入站邮件由收信网关转成 JSON 上报。From 按 RFC 5322 解析，
// 发件人即渠道自身地址时由编排器跳过（避免收录自发邮件）。

type emailPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html"`
	MessageID string `json:"message_id"`
	Date      string `json:"date"`
	Attachments []struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Content     string `json:"content"` // base64
		URL         string `json:"url"`
	} `json:"attachments"`
}

// Email 规范化入站邮件事件
func Email(raw []byte) (*Event, error) {
	var ep emailPayload
	if err := json.Unmarshal(raw, &ep); err != nil {
		return nil, Skipf("email: unparseable payload: %v", err)
	}

	if strings.TrimSpace(ep.From) == "" {
		return nil, Skip("email: missing From header")
	}

	address := ep.From
	name := ""
	if parsed, err := mail.ParseAddress(ep.From); err == nil {
		address = parsed.Address
		name = parsed.Name
	}

	content := strings.TrimSpace(ep.Text)
	if content == "" {
		content = strings.TrimSpace(ep.Subject)
	}
	if content == "" && len(ep.Attachments) == 0 {
		return nil, Skip("email: empty message")
	}

	ev := &Event{
		RemoteIdentifier: strings.ToLower(address),
		ContactName:      name,
		Content:          content,
		ExternalID:       ep.MessageID,
		Timestamp:        emailTimestamp(ep.Date),
		Extra:            map[string]string{"subject": ep.Subject},
	}

	// 收件地址即渠道自身地址,多邮箱租户靠它精确路由
	if to := strings.TrimSpace(ep.To); to != "" {
		recipient := to
		if parsed, err := mail.ParseAddress(to); err == nil {
			recipient = parsed.Address
		}
		ev.Extra["address"] = strings.ToLower(recipient)
	}

	if len(ep.Attachments) > 0 {
		att := ep.Attachments[0]
		ev.Media = &MediaRef{
			Kind:         mediaKindFromMime(att.ContentType),
			Mime:         att.ContentType,
			InlineBase64: att.Content,
			URL:          att.URL,
			Filename:     att.Filename,
		}
	}

	return ev, nil
}

func emailTimestamp(date string) time.Time {
	if date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			return t
		}
	}
	return time.Now()
}

// mediaKindFromMime 按主类型粗分媒体类别
func mediaKindFromMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
