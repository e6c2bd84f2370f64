package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"unichat/internal/config"
	"unichat/internal/models"
	"unichat/internal/transport"
	"unichat/pkg/llm"
)

const defaultSystemPrompt = "You are a helpful customer support assistant. " +
	"Answer concisely and politely in the language the customer writes in. " +
	"If you do not know the answer, say so and offer to pass the question to a human agent."

// AssistantService 自动回复编排。
// 每次入站消息最多触发一次 LLM 调用,失败只记日志,绝不对终端用户重试。
type AssistantService struct {
	db       *gorm.DB
	identity *IdentityService
	fanout   *FanoutService
	registry *transport.Registry
	cfg      config.AIConfig
	logger   *logrus.Logger

	// 测试注入点,默认走 llm.New
	newProvider func(name string, cfg llm.Config) (llm.Provider, error)
}

func NewAssistantService(db *gorm.DB, identity *IdentityService, fanout *FanoutService, registry *transport.Registry, cfg config.AIConfig, logger *logrus.Logger) *AssistantService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AssistantService{
		db:          db,
		identity:    identity,
		fanout:      fanout,
		registry:    registry,
		cfg:         cfg,
		logger:      logger,
		newProvider: llm.New,
	}
}

// HandleInbound 对一条入站消息尝试自动回复。
// 设计为被 go 调用,自身管理超时,不向调用方返回错误。
func (s *AssistantService) HandleInbound(channel *models.Channel, conv *models.Conversation, content string) {
	log := s.logger.WithFields(logrus.Fields{
		"channel_id":      channel.ID,
		"conversation_id": conv.ID,
	})

	binding, err := s.activeBinding(channel.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Error("Assistant binding lookup failed")
		}
		return
	}

	if !s.withinBusinessHours(binding, time.Now()) {
		log.Debug("Outside business hours, assistant skipped")
		return
	}

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	reply, tokens, err := s.complete(ctx, binding, conv, content)
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil || strings.TrimSpace(reply) == "" {
		if err == nil {
			err = errors.New("empty completion")
		}
		log.WithError(err).Warn("Assistant completion failed")
		s.writeLog(binding, conv, content, "", tokens, elapsed, "error", err.Error())
		return
	}

	if err := s.deliver(ctx, channel, conv, reply); err != nil {
		log.WithError(err).Warn("Assistant reply send failed")
		s.writeLog(binding, conv, content, reply, tokens, elapsed, "error", err.Error())
		return
	}

	s.writeLog(binding, conv, content, reply, tokens, elapsed, "success", "")
	s.bumpStats(binding, tokens)
	log.WithFields(logrus.Fields{
		"tokens_used":      tokens,
		"response_time_ms": elapsed,
	}).Info("Assistant reply sent")
}

func (s *AssistantService) activeBinding(channelID uint) (*models.AssistantBinding, error) {
	var binding models.AssistantBinding
	err := s.db.
		Where("channel_id = ? AND is_active = ?", channelID, true).
		First(&binding).Error
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

// withinBusinessHours 绑定配置了工作时段时才检查,格式 "HH:MM-HH:MM"
func (s *AssistantService) withinBusinessHours(binding *models.AssistantBinding, now time.Time) bool {
	window := binding.ConfigString("business_hours")
	if window == "" {
		return true
	}
	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		s.logger.WithField("business_hours", window).Warn("Unparseable business hours window")
		return true
	}
	from, err1 := parseClock(strings.TrimSpace(parts[0]))
	to, err2 := parseClock(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if from <= to {
		return cur >= from && cur < to
	}
	// 跨午夜时段,如 22:00-06:00
	return cur >= from || cur < to
}

func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock value %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return h*60 + m, nil
}

// complete 组装上下文并调用 LLM:系统提示词 + 最近若干轮历史 + 本次输入
func (s *AssistantService) complete(ctx context.Context, binding *models.AssistantBinding, conv *models.Conversation, content string) (string, int, error) {
	providerName := binding.ConfigString("provider")
	if providerName == "" {
		providerName = s.cfg.Provider
	}
	apiKey := binding.ConfigString("api_key")
	if apiKey == "" {
		apiKey = s.cfg.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("UNICHAT_AI_API_KEY")
	}
	if apiKey == "" {
		return "", 0, errors.New("no api key configured")
	}
	model := binding.ConfigString("model")
	if model == "" {
		model = s.cfg.Model
	}
	system := binding.ConfigString("system_prompt")
	if system == "" {
		system = defaultSystemPrompt
	}

	provider, err := s.newProvider(providerName, llm.Config{
		APIKey:  apiKey,
		BaseURL: s.cfg.BaseURL,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return "", 0, err
	}

	history, err := s.recentTurns(ctx, conv.ID)
	if err != nil {
		s.logger.WithError(err).Warn("History load failed, replying without context")
		history = nil
	}

	resp, err := provider.Complete(ctx, llm.Request{
		Model:       model,
		System:      system,
		History:     history,
		User:        content,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	return resp.Text, resp.TokensUsed, nil
}

// recentTurns 取会话最近的历史消息,按时间正序返回
func (s *AssistantService) recentTurns(ctx context.Context, convID uint) ([]llm.Turn, error) {
	limit := s.cfg.HistoryTurns
	if limit <= 0 {
		limit = 8
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	turns := make([]llm.Turn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.TrimSpace(msgs[i].Content) == "" {
			continue
		}
		role := "user"
		if msgs[i].Direction == models.DirectionOut {
			role = "assistant"
		}
		turns = append(turns, llm.Turn{Role: role, Content: msgs[i].Content})
	}
	return turns, nil
}

// deliver 通过渠道外发回复并落库为出站消息
func (s *AssistantService) deliver(ctx context.Context, channel *models.Channel, conv *models.Conversation, reply string) error {
	sender, err := s.registry.Sender(channel.Type)
	if err != nil {
		return err
	}
	if err := sender.SendText(ctx, channel, conv.RemoteIdentifier, reply); err != nil {
		return err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		LeadID:         conv.LeadID,
		UserID:         channel.UserID,
		Direction:      models.DirectionOut,
		Channel:        channel.Type,
		Content:        reply,
		Status:         models.MessageStatusSent,
		Metadata:       datatypes.JSONMap{"automated": true},
		CreatedAt:      time.Now(),
	}
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("persist outbound message: %w", err)
	}

	if err := s.identity.TouchConversation(context.Background(), conv, models.DirectionOut, msg.CreatedAt); err != nil {
		s.logger.WithError(err).Warn("Conversation update after auto-reply failed")
	}

	if s.fanout != nil {
		s.fanout.Dispatch(msg, conv, channel)
	}
	return nil
}

func (s *AssistantService) writeLog(binding *models.AssistantBinding, conv *models.Conversation, in, out string, tokens, elapsedMs int, status, errMsg string) {
	row := &models.AssistantLog{
		BindingID:      binding.ID,
		ConversationID: conv.ID,
		MessageIn:      in,
		MessageOut:     out,
		TokensUsed:     tokens,
		ResponseTimeMs: elapsedMs,
		Status:         status,
		ErrorMessage:   errMsg,
	}
	if err := s.db.Create(row).Error; err != nil {
		s.logger.WithError(err).Error("Assistant log write failed")
	}
}

// bumpStats 累加绑定上的回复与 token 统计
func (s *AssistantService) bumpStats(binding *models.AssistantBinding, tokens int) {
	stats := binding.Stats
	if stats == nil {
		stats = datatypes.JSONMap{}
	}
	stats["replies_sent"] = toFloat(stats["replies_sent"]) + 1
	stats["tokens_used"] = toFloat(stats["tokens_used"]) + float64(tokens)
	stats["last_reply_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := s.db.Model(binding).Update("stats", stats).Error; err != nil {
		s.logger.WithError(err).Warn("Assistant stats update failed")
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
