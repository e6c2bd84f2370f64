package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"unichat/internal/models"
	"unichat/internal/normalize"
	"unichat/internal/transport"
	"unichat/pkg/utils"
)

// MediaService 媒体恢复链。
// 输入归一化后的媒体引用，输出可长期访问的 URL；
// 所有分支都失败时返回空串，消息照常落库。
type MediaService struct {
	storage       *StorageService
	registry      *transport.Registry
	maxInlineSize int
	logger        *logrus.Logger
}

func NewMediaService(storage *StorageService, registry *transport.Registry, maxInlineSize int, logger *logrus.Logger) *MediaService {
	if logger == nil {
		logger = logrus.New()
	}
	if maxInlineSize <= 0 {
		maxInlineSize = 2 << 20
	}
	return &MediaService{
		storage:       storage,
		registry:      registry,
		maxInlineSize: maxInlineSize,
		logger:        logger,
	}
}

// Resolve 按顺序尝试:内联 base64 -> 可外链 URL -> 渠道拉取 -> 内联 data URI 兜底。
// 返回的 filename 供上层在媒体不可恢复时写进 metadata。
func (s *MediaService) Resolve(ctx context.Context, channel *models.Channel, ref *normalize.MediaRef) (mediaURL string, filename string, err error) {
	if ref == nil {
		return "", "", nil
	}
	filename = ref.Filename

	// 1. 内联 base64
	if ref.InlineBase64 != "" {
		data, decErr := decodeInline(ref.InlineBase64)
		if decErr != nil {
			s.logger.WithError(decErr).Warn("Inline media decode failed")
		} else {
			return s.store(data, ref, channel), filename, nil
		}
	}

	// 2. 直链,排除需要会话鉴权的 CDN 和相对路径
	if ref.URL != "" && usableMediaURL(ref.URL) {
		return ref.URL, filename, nil
	}

	// 3. 渠道两步拉取
	if ref.ProviderID != "" && s.registry != nil {
		fetcher, ok := s.registry.Fetcher(channel.Type)
		if !ok {
			s.logger.WithField("channel_type", channel.Type).Debug("No media fetcher for channel type")
		} else {
			data, mime, fErr := fetcher.FetchMedia(ctx, channel, ref)
			if fErr != nil {
				s.logger.WithError(fErr).WithFields(logrus.Fields{
					"channel_id": channel.ID,
					"media_id":   ref.ProviderID,
				}).Warn("Provider media fetch failed")
			} else {
				if mime != "" {
					ref.Mime = mime
				}
				return s.store(data, ref, channel), filename, nil
			}
		}
	}

	return "", filename, nil
}

// store 上传到本地存储;上传失败时退化为内联 data URI,
// 这是防丢的兜底而不是常规路径,超过上限直接放弃。
func (s *MediaService) store(data []byte, ref *normalize.MediaRef, channel *models.Channel) string {
	name := ref.Filename
	if name == "" {
		name = utils.GenerateMediaFilename(ref.Mime)
	}
	mediaURL, err := s.storage.Save(data, ref.Mime, fmt.Sprintf("u%d_%s", channel.UserID, name))
	if err == nil {
		return mediaURL
	}
	s.logger.WithError(err).Error("Blob upload failed, falling back to inline data URI")

	if len(data) > s.maxInlineSize {
		s.logger.WithField("size", len(data)).Warn("Media too large for inline fallback, dropping")
		return ""
	}
	mime := ref.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeInline(raw string) ([]byte, error) {
	if idx := strings.Index(raw, ";base64,"); idx >= 0 {
		raw = raw[idx+len(";base64,"):]
	}
	raw = strings.TrimSpace(raw)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// 部分网桥发 URL-safe 编码
		data, err = base64.RawURLEncoding.DecodeString(raw)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty media after decode")
	}
	return data, nil
}

// usableMediaURL 判断 URL 是否可以不带会话凭证直接访问
func usableMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	// WhatsApp CDN 的直链离开会话就 403
	if host == "whatsapp.net" || strings.HasSuffix(host, ".whatsapp.net") {
		return false
	}
	if host == "lookaside.fbsbx.com" {
		return false
	}
	return true
}
