package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 渠道类型常量
const (
	ChannelWhatsApp      = "whatsapp"       // 自建 WhatsApp 桥接
	ChannelWhatsAppCloud = "whatsapp_cloud" // WhatsApp Cloud API
	ChannelTelegram      = "telegram"
	ChannelFacebook      = "facebook"
	ChannelInstagram     = "instagram"
	ChannelWebsite       = "website" // 网站聊天组件
	ChannelEmail         = "email"
)

// 渠道状态常量
const (
	ChannelStatusInactive = "inactive"
	ChannelStatusActive   = "active"
	ChannelStatusError    = "error"
)

// 消息方向常量
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// 消息状态常量
const (
	MessageStatusDelivered = "delivered"
	MessageStatusSent      = "sent"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Channel 租户接入的消息渠道（收件箱）
type Channel struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      uint              `gorm:"index;not null" json:"user_id"`
	Name        string            `json:"name"`
	Type        string            `gorm:"index;not null" json:"type"`       // whatsapp, whatsapp_cloud, telegram, facebook, instagram, website, email
	Status      string            `gorm:"default:'inactive'" json:"status"` // inactive, active, error
	Credentials datatypes.JSONMap `gorm:"type:json" json:"-"`               // 各渠道专属凭据（不透明 map）
	Settings    datatypes.JSONMap `gorm:"type:json" json:"settings"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`

	Conversations []Conversation `gorm:"foreignKey:ChannelID" json:"conversations,omitempty"`
}

// Credential 读取凭据字段，缺失时返回空字符串
func (c *Channel) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	if v, ok := c.Credentials[key].(string); ok {
		return v
	}
	return ""
}

// Setting 读取配置字段，缺失时返回空字符串
func (c *Channel) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	if v, ok := c.Settings[key].(string); ok {
		return v
	}
	return ""
}

// Lead 联系人（潜在客户），同一联系人可能通过多个渠道触达
type Lead struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	Name        string         `json:"name"`
	Phone       string         `gorm:"index" json:"phone"`
	Email       string         `gorm:"index" json:"email"`
	TelegramID  string         `gorm:"index" json:"telegram_id"`
	InstagramID string         `gorm:"index" json:"instagram_id"`
	FacebookID  string         `gorm:"index" json:"facebook_id"`
	AvatarURL   string         `json:"avatar_url"`
	Source      string         `json:"source"`                      // 首次触达的渠道类型
	Status      string         `gorm:"default:'new'" json:"status"` // new, active, archived
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Conversations []Conversation `gorm:"foreignKey:LeadID" json:"conversations,omitempty"`
}

// Conversation 会话线程，(channel_id, remote_identifier) 全局唯一
type Conversation struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	UserID           uint              `gorm:"index;not null" json:"user_id"`
	ChannelID        uint              `gorm:"uniqueIndex:ux_conversations_channel_remote,priority:1;not null" json:"channel_id"`
	RemoteIdentifier string            `gorm:"uniqueIndex:ux_conversations_channel_remote,priority:2;size:255;not null" json:"remote_identifier"`
	LeadID           uint              `gorm:"index" json:"lead_id"`
	Status           string            `gorm:"default:'open'" json:"status"` // open, closed
	UnreadCount      int               `gorm:"default:0" json:"unread_count"`
	LastMessageAt    *time.Time        `gorm:"index" json:"last_message_at"`
	Metadata         datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`

	Channel  Channel   `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
	Lead     Lead      `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// Message 单条消息，入库后不可变（仅外发回执可更新 status）
type Message struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ConversationID uint              `gorm:"index;not null" json:"conversation_id"`
	LeadID         uint              `gorm:"index" json:"lead_id"`
	UserID         uint              `gorm:"uniqueIndex:ux_messages_user_external,priority:1;not null" json:"user_id"`
	Direction      string            `gorm:"not null" json:"direction"` // in, out
	Channel        string            `json:"channel"`                   // 渠道类型标签，不是渠道 ID
	Content        string            `gorm:"type:text" json:"content"`
	MediaURL       string            `gorm:"type:text" json:"media_url"`
	MediaType      string            `json:"media_type"`                                                                   // image, video, audio, document, sticker
	Status         string            `gorm:"default:'delivered'" json:"status"`                                            // delivered, sent, read, failed
	ExternalID     *string           `gorm:"uniqueIndex:ux_messages_user_external,priority:2;size:255" json:"external_id"` // 渠道原生消息 ID，幂等去重依据
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`

	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	Lead         Lead         `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}

// AssistantBinding 渠道与 AI 助手的绑定配置
type AssistantBinding struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"index;not null" json:"user_id"`
	ChannelID uint              `gorm:"index;not null" json:"channel_id"`
	IsActive  bool              `gorm:"default:false" json:"is_active"`
	Config    datatypes.JSONMap `gorm:"type:json" json:"config"` // provider, model, api_key, system_prompt, business_hours
	Stats     datatypes.JSONMap `gorm:"type:json" json:"stats"`  // replies_sent, tokens_used, last_reply_at
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	Channel Channel `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
}

// ConfigString 读取绑定配置字段，缺失时返回空字符串
func (b *AssistantBinding) ConfigString(key string) string {
	if b.Config == nil {
		return ""
	}
	if v, ok := b.Config[key].(string); ok {
		return v
	}
	return ""
}

// AssistantLog 自动回复尝试记录，成功与失败各记一行
type AssistantLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BindingID      uint      `gorm:"index" json:"binding_id"`
	ConversationID uint      `gorm:"index" json:"conversation_id"`
	MessageIn      string    `gorm:"type:text" json:"message_in"`
	MessageOut     string    `gorm:"type:text" json:"message_out"`
	TokensUsed     int       `gorm:"default:0" json:"tokens_used"`
	ResponseTimeMs int       `gorm:"default:0" json:"response_time_ms"`
	Status         string    `json:"status"` // success, error, skipped
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// WebhookSubscription 用户配置的外部事件订阅端点
type WebhookSubscription struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	URL       string         `gorm:"size:500;not null" json:"url"`
	Events    string         `json:"events"` // 订阅的事件名，逗号分隔，空表示全部
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// WantsEvent 判断订阅是否关注某事件
func (w *WebhookSubscription) WantsEvent(name string) bool {
	if strings.TrimSpace(w.Events) == "" {
		return true
	}
	for _, ev := range strings.Split(w.Events, ",") {
		if strings.TrimSpace(ev) == name {
			return true
		}
	}
	return false
}
