// Package transport 封装各渠道的外发与二次拉取 API。
// 每个渠道一个 Sender；需要二次拉取媒体的渠道另实现 MediaFetcher。
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"unichat/internal/models"
	"unichat/internal/normalize"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrSenderNotFound 渠道类型没有对应的外发实现
var ErrSenderNotFound = errors.New("transport: no sender for channel type")

// Sender 渠道外发文本接口，凭据从 Channel.Credentials 读取
type Sender interface {
	SendText(ctx context.Context, channel *models.Channel, recipient, text string) error
}

// MediaFetcher 渠道侧媒体二次拉取接口
type MediaFetcher interface {
	FetchMedia(ctx context.Context, channel *models.Channel, ref *normalize.MediaRef) (data []byte, mime string, err error)
}

// ProfileLookup 发件人资料二次查询（Meta 系渠道）
type ProfileLookup interface {
	LookupProfile(ctx context.Context, channel *models.Channel, senderID string) (name string, avatarURL string, err error)
}

// RealtimePusher 网站组件外发依赖的实时推送能力，由 WebSocket Hub 提供
type RealtimePusher interface {
	Push(userID uint, event string, payload interface{})
}

// Registry 按渠道类型聚合外发与拉取实现
type Registry struct {
	logger   *logrus.Logger
	senders  map[string]Sender
	fetchers map[string]MediaFetcher
	profiles ProfileLookup
}

// NewRegistry 构建全部渠道的外发实现
func NewRegistry(logger *logrus.Logger, pusher RealtimePusher) *Registry {
	if logger == nil {
		logger = logrus.New()
	}

	httpClient := newHTTPClient(15 * time.Second)

	whatsapp := NewWhatsAppBridge(logger, httpClient)
	cloud := NewWhatsAppCloud(logger, httpClient)
	telegram := NewTelegram(logger)
	meta := NewMetaGraph(logger, httpClient)
	email := NewEmail(logger)
	website := NewWebsite(logger, pusher)

	return &Registry{
		logger: logger,
		senders: map[string]Sender{
			models.ChannelWhatsApp:      whatsapp,
			models.ChannelWhatsAppCloud: cloud,
			models.ChannelTelegram:      telegram,
			models.ChannelFacebook:      meta,
			models.ChannelInstagram:     meta,
			models.ChannelWebsite:       website,
			models.ChannelEmail:         email,
		},
		fetchers: map[string]MediaFetcher{
			models.ChannelWhatsApp:      whatsapp,
			models.ChannelWhatsAppCloud: cloud,
			models.ChannelTelegram:      telegram,
		},
		profiles: meta,
	}
}

// Sender 取渠道外发实现
func (r *Registry) Sender(channelType string) (Sender, error) {
	s, ok := r.senders[channelType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSenderNotFound, channelType)
	}
	return s, nil
}

// Fetcher 取渠道媒体拉取实现，无需二次拉取的渠道返回 false
func (r *Registry) Fetcher(channelType string) (MediaFetcher, bool) {
	f, ok := r.fetchers[channelType]
	return f, ok
}

// Profiles 取发件人资料查询实现
func (r *Registry) Profiles() ProfileLookup {
	return r.profiles
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
