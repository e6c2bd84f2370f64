package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"unichat/internal/models"
	"unichat/internal/transport"
)

// 扇出事件名
const (
	EventNewMessage         = "new_message"
	EventConversationUpdate = "conversation_update"
	EventUnreadCountUpdate  = "unread_count_update"
)

// EventSink 可选的消息总线出口(AMQP),nil 表示未启用
type EventSink interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

type dispatchJob struct {
	URL     string
	Event   string
	Payload []byte
}

// FanoutService 消息落库后的双路扇出:
// 实时推送走 WebSocket 房间,外部回调走有界工作池,互不阻塞也不阻塞入站响应。
type FanoutService struct {
	db         *gorm.DB
	pusher     transport.RealtimePusher
	sink       EventSink
	httpClient *http.Client
	queue      chan dispatchJob
	logger     *logrus.Logger
}

func NewFanoutService(db *gorm.DB, pusher transport.RealtimePusher, sink EventSink, workers, queueSize int, timeout time.Duration, logger *logrus.Logger) *FanoutService {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &FanoutService{
		db:         db,
		pusher:     pusher,
		sink:       sink,
		httpClient: &http.Client{Timeout: timeout},
		queue:      make(chan dispatchJob, queueSize),
		logger:     logger,
	}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Dispatch 把一条已落库的消息推给所有出口。调用方不等待投递结果。
func (s *FanoutService) Dispatch(msg *models.Message, conv *models.Conversation, channel *models.Channel) {
	userID := channel.UserID

	if s.pusher != nil {
		s.pusher.Push(userID, EventNewMessage, msg)
		s.pusher.Push(userID, EventConversationUpdate, conv)
		s.pusher.Push(userID, EventUnreadCountUpdate, map[string]interface{}{
			"conversation_id": conv.ID,
			"unread_count":    conv.UnreadCount,
		})
	}

	payload := map[string]interface{}{
		"event": EventNewMessage,
		"data": map[string]interface{}{
			"message":      msg,
			"conversation": conv,
			"channel_type": channel.Type,
		},
		"timestamp": time.Now().UTC(),
	}
	s.enqueueWebhooks(userID, EventNewMessage, payload)

	// 总线投递和 Webhook 一样不占入站路径,broker 变慢只影响自己
	if s.sink != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.sink.Publish(ctx, EventNewMessage, payload); err != nil {
				s.logger.WithError(err).Warn("Event bus publish failed")
			}
		}()
	}
}

// enqueueWebhooks 给该租户的所有活跃订阅排队投递,队列满则丢弃并记日志
func (s *FanoutService) enqueueWebhooks(userID uint, event string, payload interface{}) {
	var subs []models.WebhookSubscription
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&subs).Error; err != nil {
		s.logger.WithError(err).Error("Failed to load webhook subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode webhook payload")
		return
	}

	for _, sub := range subs {
		if !sub.WantsEvent(event) {
			continue
		}
		select {
		case s.queue <- dispatchJob{URL: sub.URL, Event: event, Payload: body}:
		default:
			s.logger.WithField("url", sub.URL).Warn("Webhook queue full, delivery dropped")
		}
	}
}

// worker 逐条 POST,失败只记日志,不重试不上抛
func (s *FanoutService) worker() {
	for job := range s.queue {
		req, err := http.NewRequest(http.MethodPost, job.URL, bytes.NewReader(job.Payload))
		if err != nil {
			s.logger.WithError(err).WithField("url", job.URL).Warn("Invalid webhook target")
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Unichat-Event", job.Event)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.WithError(err).WithField("url", job.URL).Warn("Webhook delivery failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.logger.WithFields(logrus.Fields{
				"url":    job.URL,
				"status": resp.StatusCode,
			}).Warn("Webhook target rejected delivery")
		}
	}
}
