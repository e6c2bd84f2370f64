package transport

import (
	"context"
	"fmt"
	"time"

	"unichat/internal/models"

	"github.com/sirupsen/logrus"
)

// Website 网站组件的"外发"：没有第三方 API，直接推给该租户的实时会话，
// 由前端组件按 visitor_id 路由到访客窗口。

type Website struct {
	logger *logrus.Logger
	pusher RealtimePusher
}

func NewWebsite(logger *logrus.Logger, pusher RealtimePusher) *Website {
	return &Website{logger: logger, pusher: pusher}
}

// SendText 推送文本给网站访客
func (w *Website) SendText(ctx context.Context, channel *models.Channel, recipient, text string) error {
	if w.pusher == nil {
		return fmt.Errorf("website: channel %d has no realtime pusher wired", channel.ID)
	}

	w.pusher.Push(channel.UserID, "widget_message", map[string]interface{}{
		"channel_id": channel.ID,
		"visitor_id": recipient,
		"text":       text,
		"timestamp":  time.Now().UTC(),
	})
	return nil
}
