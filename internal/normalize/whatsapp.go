package normalize

import (
	"encoding/json"
	"strings"
	"time"
)

// 自建 WhatsApp 桥接的回调报文。桥接服务的包裹层并不稳定：
// data 可能是对象、数组，甚至再包一层 data，这里逐层显式解包。

type waEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type waKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type waMedia struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
}

type waMessageBody struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage    *waMedia `json:"imageMessage"`
	VideoMessage    *waMedia `json:"videoMessage"`
	AudioMessage    *waMedia `json:"audioMessage"`
	DocumentMessage *waMedia `json:"documentMessage"`
	StickerMessage  *waMedia `json:"stickerMessage"`

	// 外层包装类型：真正的媒体消息在内层 message 里
	DocumentWithCaptionMessage *waWrapped `json:"documentWithCaptionMessage"`
	ViewOnceMessage            *waWrapped `json:"viewOnceMessage"`
	ViewOnceMessageV2          *waWrapped `json:"viewOnceMessageV2"`
	EphemeralMessage           *waWrapped `json:"ephemeralMessage"`

	Base64 string `json:"base64"`
}

type waWrapped struct {
	Message *waMessageBody `json:"message"`
}

type waMessageData struct {
	Key              waKey           `json:"key"`
	PushName         string          `json:"pushName"`
	Message          *waMessageBody  `json:"message"`
	MessageTimestamp json.Number     `json:"messageTimestamp"`
	Base64           string          `json:"base64"`
	Data             json.RawMessage `json:"data"` // 双层包裹
}

// WhatsApp 规范化自建桥接的回调事件
func WhatsApp(raw []byte) (*Event, error) {
	var env waEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Skipf("whatsapp: unparseable payload: %v", err)
	}

	if env.Event != "" && env.Event != "messages.upsert" {
		return nil, Skipf("whatsapp: event %q is not a message", env.Event)
	}

	data := env.Data
	if len(data) == 0 {
		// 有的桥接版本不带 event 包装，整个报文就是 data
		data = raw
	}

	msg, err := unwrapWAData(data, 0)
	if err != nil {
		return nil, err
	}

	jid := msg.Key.RemoteJid
	if jid == "" {
		return nil, Skip("whatsapp: missing remoteJid")
	}
	if strings.HasSuffix(jid, "@g.us") {
		return nil, Skip("whatsapp: group chat")
	}
	if strings.HasPrefix(jid, "status@") {
		return nil, Skip("whatsapp: status broadcast")
	}
	if msg.Message == nil {
		return nil, Skip("whatsapp: no message body")
	}

	body := unwrapWACaption(msg.Message, 0)

	ev := &Event{
		RemoteIdentifier: jid,
		ContactName:      msg.PushName,
		IsEcho:           msg.Key.FromMe,
		ExternalID:       msg.Key.ID,
		Timestamp:        waTimestamp(msg.MessageTimestamp),
	}
	if env.Instance != "" {
		ev.Extra = map[string]string{"instance_id": env.Instance}
	}

	inline := firstNonEmpty(msg.Base64, body.Base64)

	switch {
	case body.Conversation != "":
		ev.Content = body.Conversation
	case body.ExtendedTextMessage != nil && body.ExtendedTextMessage.Text != "":
		ev.Content = body.ExtendedTextMessage.Text
	case body.ImageMessage != nil:
		ev.Content = body.ImageMessage.Caption
		ev.Media = waMediaRef("image", body.ImageMessage, inline)
	case body.VideoMessage != nil:
		ev.Content = body.VideoMessage.Caption
		ev.Media = waMediaRef("video", body.VideoMessage, inline)
	case body.AudioMessage != nil:
		ev.Media = waMediaRef("audio", body.AudioMessage, inline)
	case body.DocumentMessage != nil:
		ev.Content = body.DocumentMessage.Caption
		ev.Media = waMediaRef("document", body.DocumentMessage, inline)
	case body.StickerMessage != nil:
		ev.Media = waMediaRef("sticker", body.StickerMessage, inline)
	default:
		return nil, Skip("whatsapp: unsupported message type")
	}

	if ev.Media != nil {
		// 桥接的拉取接口按消息 key 取媒体
		ev.Media.ProviderID = msg.Key.ID
	}

	return ev, nil
}

// unwrapWAData 解开 data 的对象/数组/双层包裹，最多递归三层
func unwrapWAData(data json.RawMessage, depth int) (*waMessageData, error) {
	if depth > 3 {
		return nil, Skip("whatsapp: data nesting too deep")
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			return nil, Skip("whatsapp: empty data array")
		}
		return unwrapWAData(list[0], depth+1)
	}

	var msg waMessageData
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, Skipf("whatsapp: unparseable data: %v", err)
	}
	if msg.Key.RemoteJid == "" && len(msg.Data) > 0 {
		return unwrapWAData(msg.Data, depth+1)
	}
	return &msg, nil
}

// unwrapWACaption 解开带标题包装的媒体类型，取内层消息体
func unwrapWACaption(body *waMessageBody, depth int) *waMessageBody {
	if depth > 3 {
		return body
	}
	for _, w := range []*waWrapped{
		body.DocumentWithCaptionMessage,
		body.ViewOnceMessage,
		body.ViewOnceMessageV2,
		body.EphemeralMessage,
	} {
		if w != nil && w.Message != nil {
			return unwrapWACaption(w.Message, depth+1)
		}
	}
	return body
}

func waMediaRef(kind string, m *waMedia, inline string) *MediaRef {
	return &MediaRef{
		Kind:         kind,
		Mime:         m.Mimetype,
		InlineBase64: inline,
		URL:          m.URL,
		Filename:     m.FileName,
	}
}

func waTimestamp(n json.Number) time.Time {
	if sec, err := n.Int64(); err == nil && sec > 0 {
		// 部分桥接版本给毫秒
		if sec > 1e12 {
			return time.UnixMilli(sec)
		}
		return time.Unix(sec, 0)
	}
	return time.Now()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
