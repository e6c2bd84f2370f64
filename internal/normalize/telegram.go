package normalize

import (
	"encoding/json"
	"strconv"
	"time"
)

// Telegram Bot API 的 update 报文。只处理 private 会话的 message，
// photo 是按尺寸递增的数组，取最后一个（最大）。

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Username  string `json:"username"`
	} `json:"from"`
	Chat struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	} `json:"chat"`
	Date     int64         `json:"date"`
	Text     string        `json:"text"`
	Caption  string        `json:"caption"`
	Photo    []tgPhotoSize `json:"photo"`
	Document *struct {
		FileID   string `json:"file_id"`
		FileName string `json:"file_name"`
		MimeType string `json:"mime_type"`
	} `json:"document"`
	Voice *struct {
		FileID   string `json:"file_id"`
		MimeType string `json:"mime_type"`
	} `json:"voice"`
	Video *struct {
		FileID   string `json:"file_id"`
		MimeType string `json:"mime_type"`
	} `json:"video"`
	Sticker *struct {
		FileID string `json:"file_id"`
	} `json:"sticker"`
}

type tgPhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Telegram 规范化 Bot API 的 update 事件
func Telegram(raw []byte) (*Event, error) {
	var update tgUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, Skipf("telegram: unparseable payload: %v", err)
	}

	msg := update.Message
	if msg == nil {
		return nil, Skip("telegram: update carries no message")
	}
	if msg.Chat.Type != "private" {
		return nil, Skipf("telegram: chat type %q not handled", msg.Chat.Type)
	}

	ev := &Event{
		RemoteIdentifier: strconv.FormatInt(msg.Chat.ID, 10),
		ExternalID:       strconv.FormatInt(msg.MessageID, 10),
		Timestamp:        tgTimestamp(msg.Date),
	}
	if msg.From != nil {
		ev.ContactName = tgDisplayName(msg.From.FirstName, msg.From.LastName, msg.From.Username)
	}

	switch {
	case msg.Text != "":
		ev.Content = msg.Text
	case len(msg.Photo) > 0:
		// 最大尺寸在数组末尾
		largest := msg.Photo[len(msg.Photo)-1]
		ev.Content = msg.Caption
		ev.Media = &MediaRef{Kind: "image", Mime: "image/jpeg", ProviderID: largest.FileID}
	case msg.Document != nil:
		ev.Content = msg.Caption
		ev.Media = &MediaRef{
			Kind:       "document",
			Mime:       msg.Document.MimeType,
			ProviderID: msg.Document.FileID,
			Filename:   msg.Document.FileName,
		}
	case msg.Voice != nil:
		ev.Media = &MediaRef{Kind: "audio", Mime: msg.Voice.MimeType, ProviderID: msg.Voice.FileID}
	case msg.Video != nil:
		ev.Content = msg.Caption
		ev.Media = &MediaRef{Kind: "video", Mime: msg.Video.MimeType, ProviderID: msg.Video.FileID}
	case msg.Sticker != nil:
		ev.Media = &MediaRef{Kind: "sticker", Mime: "image/webp", ProviderID: msg.Sticker.FileID}
	default:
		return nil, Skip("telegram: unsupported message type")
	}

	return ev, nil
}

func tgDisplayName(first, last, username string) string {
	name := first
	if last != "" {
		if name != "" {
			name += " "
		}
		name += last
	}
	if name == "" {
		name = username
	}
	return name
}

func tgTimestamp(sec int64) time.Time {
	if sec > 0 {
		return time.Unix(sec, 0)
	}
	return time.Now()
}
