package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"unichat/internal/models"
)

var (
	// ErrChannelNotFound 没有任何渠道能接住这条事件
	ErrChannelNotFound = errors.New("channel not found")
	// ErrChannelAmbiguous 同类型多个活跃渠道且无凭证可区分,宁可丢弃也不猜
	ErrChannelAmbiguous = errors.New("channel resolution ambiguous")
)

// 各渠道类型用于凭证精确匹配的字段
var credentialHintKeys = map[string]string{
	models.ChannelWhatsApp:      "instance_id",
	models.ChannelWhatsAppCloud: "phone_number_id",
	models.ChannelTelegram:      "bot_token",
	models.ChannelFacebook:      "page_id",
	models.ChannelInstagram:     "page_id",
	models.ChannelWebsite:       "widget_token",
	models.ChannelEmail:         "address",
}

// ChannelService 渠道解析与状态维护
type ChannelService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewChannelService(db *gorm.DB, logger *logrus.Logger) *ChannelService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChannelService{db: db, logger: logger}
}

// Resolve 把一条入站事件定位到唯一的渠道。
// 匹配顺序固定:路径里的渠道 ID -> 凭证精确匹配 -> 已有会话反查 -> 该类型唯一活跃渠道。
// 同类型多个活跃渠道且前三步都没命中时返回 ErrChannelAmbiguous。
func (s *ChannelService) Resolve(ctx context.Context, channelType string, pathID uint, hints map[string]string, remoteIdentifier string) (*models.Channel, error) {
	// 1. URL 路径显式指定
	if pathID > 0 {
		var ch models.Channel
		err := s.db.WithContext(ctx).
			Where("id = ? AND type = ? AND status <> ?", pathID, channelType, models.ChannelStatusError).
			First(&ch).Error
		if err == nil {
			return &ch, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"channel_id": pathID,
			"type":       channelType,
		}).Warn("Path channel id did not match any channel")
	}

	var candidates []models.Channel
	if err := s.db.WithContext(ctx).
		Where("type = ? AND status <> ?", channelType, models.ChannelStatusError).
		Order("updated_at DESC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrChannelNotFound
	}

	// 2. 凭证精确匹配
	if key := credentialHintKeys[channelType]; key != "" && hints[key] != "" {
		for i := range candidates {
			if candidates[i].Credential(key) == hints[key] {
				return &candidates[i], nil
			}
		}
	}

	// 3. 已有会话反查:这个发信人之前落在哪个渠道
	if remoteIdentifier != "" {
		var conv models.Conversation
		err := s.db.WithContext(ctx).
			Joins("JOIN channels ON channels.id = conversations.channel_id").
			Where("conversations.remote_identifier = ? AND channels.type = ?", remoteIdentifier, channelType).
			Order("conversations.last_message_at DESC").
			First(&conv).Error
		if err == nil {
			for i := range candidates {
				if candidates[i].ID == conv.ChannelID {
					return &candidates[i], nil
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	// 4. 兜底:该类型只有一个活跃渠道时才敢用
	active := make([]*models.Channel, 0, 1)
	for i := range candidates {
		if candidates[i].Status == models.ChannelStatusActive {
			active = append(active, &candidates[i])
		}
	}
	switch len(active) {
	case 1:
		return active[0], nil
	case 0:
		// 全部 inactive:唯一候选视为首次回调,交给上层激活
		if len(candidates) == 1 {
			return &candidates[0], nil
		}
		return nil, ErrChannelAmbiguous
	default:
		return nil, ErrChannelAmbiguous
	}
}

// MarkActive 首次收到可解析回调即认为连接打通
func (s *ChannelService) MarkActive(ctx context.Context, channel *models.Channel) error {
	if channel.Status == models.ChannelStatusActive {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", channel.ID).
		Update("status", models.ChannelStatusActive).Error
	if err != nil {
		return err
	}
	channel.Status = models.ChannelStatusActive
	s.logger.WithFields(logrus.Fields{
		"channel_id": channel.ID,
		"type":       channel.Type,
	}).Info("Channel marked active on verified inbound traffic")
	return nil
}
