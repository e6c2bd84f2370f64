// Package normalize 将各渠道的原始回调报文解析为统一的入站事件。
// 每个 provider 一个纯函数，解析失败或不需入库的事件返回 SkipError。
package normalize

import (
	"errors"
	"fmt"
	"time"
)

// Event 规范化后的入站消息
type Event struct {
	RemoteIdentifier string            // 渠道原生会话地址：jid、chat id、PSID、邮箱、visitor id
	ContactName      string            // 发件人显示名，可能为空（Meta 系需二次查询）
	AvatarURL        string            // 头像地址，可能为空
	IsEcho           bool              // 渠道侧标记为本方发出（如 WhatsApp fromMe）
	Content          string            // 文本内容或媒体标题
	Media            *MediaRef         // 附带媒体引用，无媒体时为 nil
	ExternalID       string            // 渠道原生消息 ID
	Timestamp        time.Time         // 渠道侧消息时间
	Extra            map[string]string // 渠道附加信息（subject 等）
}

// MediaRef 媒体引用，由媒体解析器按顺序尝试恢复
type MediaRef struct {
	Kind         string // image, video, audio, document, sticker
	Mime         string
	InlineBase64 string // 报文内联的 base64 数据（可能带 data-URI 前缀）
	URL          string // 直接可访问的下载地址
	ProviderID   string // 渠道侧媒体 ID，需二次拉取
	Filename     string // 人类可读文件名
}

// SkipError 表示事件无需入库：非消息事件、回显、群聊、校验握手等
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip: %s", e.Reason)
}

// Skip 构造跳过错误
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Skipf 构造带格式化原因的跳过错误
func Skipf(format string, args ...interface{}) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip 判断错误是否为跳过
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}

// SkipReason 提取跳过原因，非跳过错误返回空字符串
func SkipReason(err error) string {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}

// Func 单个渠道的规范化函数
type Func func(raw []byte) (*Event, error)

// ForChannel 按渠道类型返回规范化函数，未知类型返回 nil
func ForChannel(channelType string) Func {
	switch channelType {
	case "whatsapp":
		return WhatsApp
	case "whatsapp_cloud":
		return WhatsAppCloud
	case "telegram":
		return Telegram
	case "facebook":
		return Facebook
	case "instagram":
		return Instagram
	case "website":
		return Website
	case "email":
		return Email
	}
	return nil
}
