package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"unichat/internal/models"
	"unichat/internal/normalize"
	"unichat/internal/transport"
)

// IngestService 入站编排:渠道解析 -> 归一化 -> 身份匹配 -> 媒体恢复 -> 幂等落库 -> 扇出。
// 除持久化失败外的所有错误都吞掉并 ack,避免触发渠道方的重试风暴。
type IngestService struct {
	db        *gorm.DB
	channels  *ChannelService
	identity  *IdentityService
	media     *MediaService
	fanout    *FanoutService
	assistant *AssistantService
	registry  *transport.Registry
	logger    *logrus.Logger
}

func NewIngestService(
	db *gorm.DB,
	channels *ChannelService,
	identity *IdentityService,
	media *MediaService,
	fanout *FanoutService,
	assistant *AssistantService,
	registry *transport.Registry,
	logger *logrus.Logger,
) *IngestService {
	if logger == nil {
		logger = logrus.New()
	}
	return &IngestService{
		db:        db,
		channels:  channels,
		identity:  identity,
		media:     media,
		fanout:    fanout,
		assistant: assistant,
		registry:  registry,
		logger:    logger,
	}
}

// Ingest 处理一次 webhook 投递。
// 返回非 nil 仅代表持久化失败,是唯一需要渠道方重投的情况。
func (s *IngestService) Ingest(ctx context.Context, channelType string, pathChannelID uint, raw []byte) error {
	log := s.logger.WithField("provider", channelType)

	// 1. 归一化(纯函数,不依赖渠道行)
	normFn := normalize.ForChannel(channelType)
	if normFn == nil {
		log.Warn("No normalizer for provider")
		return nil
	}
	ev, err := normFn(raw)
	if err != nil {
		if normalize.IsSkip(err) {
			log.WithField("reason", normalize.SkipReason(err)).Debug("Event skipped")
			return nil
		}
		log.WithError(err).WithField("payload", excerpt(raw)).Warn("Normalization failed")
		return nil
	}

	// 2. 渠道解析,失败只记录不报错
	channel, err := s.channels.Resolve(ctx, channelType, pathChannelID, ev.Extra, ev.RemoteIdentifier)
	if err != nil {
		if errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrChannelAmbiguous) {
			log.WithError(err).WithField("payload", excerpt(raw)).Warn("Unmatched webhook dropped")
			return nil
		}
		return fmt.Errorf("resolve channel: %w", err)
	}
	log = log.WithFields(logrus.Fields{"channel_id": channel.ID, "user_id": channel.UserID})

	if err := s.channels.MarkActive(ctx, channel); err != nil {
		log.WithError(err).Warn("Failed to flip channel status")
	}

	// 邮箱自己发给自己的邮件不入库
	if channelType == models.ChannelEmail &&
		strings.EqualFold(ev.RemoteIdentifier, channel.Credential("address")) {
		log.Debug("Self-sent email skipped")
		return nil
	}

	// 3. 幂等:同一渠道原生 ID 只入库一次
	if ev.ExternalID != "" {
		exists, err := s.messageExists(ctx, channel.UserID, ev.ExternalID)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if exists {
			log.WithField("external_id", ev.ExternalID).Debug("Duplicate delivery ignored")
			return nil
		}
	}

	// fromMe 且库里没有这条 ID:是从手机端直接发出的回复,按出站入库
	direction := models.DirectionIn
	if ev.IsEcho {
		direction = models.DirectionOut
	}

	// 4. 媒体恢复,失败不阻塞消息本身
	var mediaURL, mediaType, lostFilename string
	if ev.Media != nil {
		mediaType = ev.Media.Kind
		var resolveErr error
		mediaURL, lostFilename, resolveErr = s.media.Resolve(ctx, channel, ev.Media)
		if resolveErr != nil {
			log.WithError(resolveErr).Warn("Media resolution failed")
		}
	}

	// 5. 联系人:Meta 系渠道名字要二次查询,查不到合成占位名
	displayName := ev.ContactName
	avatarURL := ev.AvatarURL
	if displayName == "" && (channelType == models.ChannelFacebook || channelType == models.ChannelInstagram) {
		displayName, avatarURL = s.lookupMetaProfile(ctx, channel, ev.RemoteIdentifier)
	}

	lead, err := s.identity.ResolveLead(ctx, channel.UserID, channelType, ev.RemoteIdentifier, displayName, avatarURL)
	if err != nil {
		return fmt.Errorf("resolve lead: %w", err)
	}

	conv, err := s.identity.ResolveConversation(ctx, channel, ev.RemoteIdentifier, lead.ID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	// 6. 落库
	msg := &models.Message{
		ConversationID: conv.ID,
		LeadID:         lead.ID,
		UserID:         channel.UserID,
		Direction:      direction,
		Channel:        channelType,
		Content:        ev.Content,
		MediaURL:       mediaURL,
		MediaType:      mediaType,
		Status:         models.MessageStatusDelivered,
		CreatedAt:      ev.Timestamp,
	}
	if ev.ExternalID != "" {
		msg.ExternalID = &ev.ExternalID
	}
	if mediaURL == "" && lostFilename != "" {
		msg.Metadata = datatypes.JSONMap{"unrecovered_filename": lostFilename}
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		// 并发重投可能双双通过前面的检查,唯一索引兜底,命中即按重复处理
		if ev.ExternalID != "" {
			if exists, checkErr := s.messageExists(ctx, channel.UserID, ev.ExternalID); checkErr == nil && exists {
				log.WithField("external_id", ev.ExternalID).Debug("Duplicate delivery lost insert race")
				return nil
			}
		}
		return fmt.Errorf("persist message: %w", err)
	}

	if err := s.identity.TouchConversation(ctx, conv, direction, msg.CreatedAt); err != nil {
		log.WithError(err).Error("Conversation aggregate update failed")
	}

	log.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
		"direction":       direction,
	}).Info("Message ingested")

	// 7. 扇出与自动回复都不阻塞 webhook 响应
	s.fanout.Dispatch(msg, conv, channel)

	if direction == models.DirectionIn && s.assistant != nil && strings.TrimSpace(ev.Content) != "" {
		go s.assistant.HandleInbound(channel, conv, ev.Content)
	}

	return nil
}

func (s *IngestService) messageExists(ctx context.Context, userID uint, externalID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("user_id = ? AND external_id = ?", userID, externalID).
		Count(&count).Error
	return count > 0, err
}

func (s *IngestService) lookupMetaProfile(ctx context.Context, channel *models.Channel, psid string) (name, avatar string) {
	if s.registry != nil && s.registry.Profiles() != nil {
		n, a, err := s.registry.Profiles().LookupProfile(ctx, channel, psid)
		if err != nil {
			s.logger.WithError(err).WithField("psid", psid).Debug("Profile lookup failed")
		} else if n != "" {
			return n, a
		}
	}
	return syntheticVisitorName(psid), ""
}

// syntheticVisitorName 查不到资料时的占位名,取标识符末四位
func syntheticVisitorName(identifier string) string {
	tail := identifier
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return "Visitor #" + tail
}

// excerpt 日志里只留报文头部,避免刷爆日志
func excerpt(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
