package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"unichat/internal/models"
	"unichat/internal/normalize"

	"github.com/sirupsen/logrus"
)

const graphBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppCloud 官方 Cloud API 的外发与媒体拉取。
// 凭据字段：access_token、phone_number_id。

type WhatsAppCloud struct {
	logger  *logrus.Logger
	client  *http.Client
	baseURL string
}

func NewWhatsAppCloud(logger *logrus.Logger, client *http.Client) *WhatsAppCloud {
	return &WhatsAppCloud{logger: logger, client: client, baseURL: graphBaseURL}
}

type cloudSendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText 通过 Cloud API 发送文本
func (w *WhatsAppCloud) SendText(ctx context.Context, channel *models.Channel, recipient, text string) error {
	token := channel.Credential("access_token")
	phoneID := channel.Credential("phone_number_id")
	if token == "" || phoneID == "" {
		return fmt.Errorf("whatsapp cloud: channel %d missing access_token/phone_number_id", channel.ID)
	}

	body := cloudSendRequest{MessagingProduct: "whatsapp", To: recipient, Type: "text"}
	body.Text.Body = text
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp cloud send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp cloud send: status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

type cloudMediaMeta struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// FetchMedia 两步拉取：先查媒体描述拿带签名的下载地址，再带 token 下载
func (w *WhatsAppCloud) FetchMedia(ctx context.Context, channel *models.Channel, ref *normalize.MediaRef) ([]byte, string, error) {
	token := channel.Credential("access_token")
	if token == "" {
		return nil, "", fmt.Errorf("whatsapp cloud: channel %d missing access_token", channel.ID)
	}
	if ref.ProviderID == "" {
		return nil, "", fmt.Errorf("whatsapp cloud: media ref has no id")
	}

	// 第一步：媒体元数据
	metaReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", w.baseURL, ref.ProviderID), nil)
	if err != nil {
		return nil, "", err
	}
	metaReq.Header.Set("Authorization", "Bearer "+token)

	metaResp, err := w.client.Do(metaReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp cloud media meta: %w", err)
	}
	defer metaResp.Body.Close()
	if metaResp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("whatsapp cloud media meta: status %d", metaResp.StatusCode)
	}

	var meta cloudMediaMeta
	if err := json.NewDecoder(metaResp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("whatsapp cloud media meta: decode: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("whatsapp cloud media meta: empty url")
	}

	// 第二步：带 token 下载字节
	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", err
	}
	dlReq.Header.Set("Authorization", "Bearer "+token)

	dlResp, err := w.client.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp cloud media download: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("whatsapp cloud media download: status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(dlResp.Body, 32<<20))
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp cloud media download: %w", err)
	}

	mime := meta.MimeType
	if mime == "" {
		mime = ref.Mime
	}
	return data, mime, nil
}
