package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"unichat/internal/models"
)

// IdentityService 联系人与会话的解析。
// Lead 按 (user_id, 渠道身份字段) 查找或创建;
// Conversation 按 (channel_id, remote_identifier) 唯一,并发首次触达靠唯一索引兜底。
type IdentityService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewIdentityService(db *gorm.DB, logger *logrus.Logger) *IdentityService {
	if logger == nil {
		logger = logrus.New()
	}
	return &IdentityService{db: db, logger: logger}
}

// leadIdentityColumn 渠道类型对应的 Lead 身份字段
func leadIdentityColumn(channelType string) string {
	switch channelType {
	case models.ChannelWhatsApp, models.ChannelWhatsAppCloud:
		return "phone"
	case models.ChannelTelegram:
		return "telegram_id"
	case models.ChannelInstagram:
		return "instagram_id"
	case models.ChannelFacebook:
		return "facebook_id"
	case models.ChannelEmail:
		return "email"
	default:
		// 网站访客没有跨渠道身份,访客 ID 落在 phone 位,仅在本渠道内匹配
		return "phone"
	}
}

// ResolveLead 查找或创建联系人。
// 已存在时只在新值非空且不同的情况下更新 name/avatar,绝不用空值覆盖已知信息。
func (s *IdentityService) ResolveLead(ctx context.Context, userID uint, channelType, identity, displayName, avatarURL string) (*models.Lead, error) {
	column := leadIdentityColumn(channelType)

	var lead models.Lead
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND "+column+" = ?", userID, identity).
		First(&lead).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		lead = models.Lead{
			UserID:    userID,
			Name:      displayName,
			AvatarURL: avatarURL,
			Source:    channelType,
			Status:    "new",
		}
		setLeadIdentity(&lead, column, identity)
		if err := s.db.WithContext(ctx).Create(&lead).Error; err != nil {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"lead_id": lead.ID,
			"source":  channelType,
		}).Info("Lead created")
		return &lead, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if displayName != "" && displayName != lead.Name {
		updates["name"] = displayName
		lead.Name = displayName
	}
	if avatarURL != "" && avatarURL != lead.AvatarURL {
		updates["avatar_url"] = avatarURL
		lead.AvatarURL = avatarURL
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&lead).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &lead, nil
}

func setLeadIdentity(lead *models.Lead, column, identity string) {
	switch column {
	case "phone":
		lead.Phone = identity
	case "email":
		lead.Email = identity
	case "telegram_id":
		lead.TelegramID = identity
	case "instagram_id":
		lead.InstagramID = identity
	case "facebook_id":
		lead.FacebookID = identity
	}
}

// ResolveConversation 查找或创建会话。
// 并发安全:先插入(冲突忽略)再回读,而不是先查再插。
func (s *IdentityService) ResolveConversation(ctx context.Context, channel *models.Channel, remoteIdentifier string, leadID uint) (*models.Conversation, error) {
	conv := models.Conversation{
		UserID:           channel.UserID,
		ChannelID:        channel.ID,
		RemoteIdentifier: remoteIdentifier,
		LeadID:           leadID,
		Status:           "open",
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}, {Name: "remote_identifier"}},
			DoNothing: true,
		}).
		Create(&conv).Error
	if err != nil {
		return nil, err
	}

	// 冲突忽略后 ID 可能为零,统一回读拿到权威行
	var out models.Conversation
	err = s.db.WithContext(ctx).
		Where("channel_id = ? AND remote_identifier = ?", channel.ID, remoteIdentifier).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TouchConversation 消息入库后的会话聚合更新:
// 未读数只在入站方向累加,closed 会话被任何新消息重新打开,last_message_at 总是刷新。
func (s *IdentityService) TouchConversation(ctx context.Context, conv *models.Conversation, direction string, at time.Time) error {
	updates := map[string]interface{}{
		"last_message_at": at,
		"status":          "open",
	}
	if direction == models.DirectionIn {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(updates).Error; err != nil {
		return err
	}
	// 回读保持内存态一致,供后续扇出使用
	return s.db.WithContext(ctx).First(conv, conv.ID).Error
}
