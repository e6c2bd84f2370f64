package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"unichat/internal/models"
	"unichat/internal/normalize"

	"github.com/sirupsen/logrus"
)

// WhatsAppBridge 自建桥接服务的外发与媒体拉取。
// 凭据字段：api_url、api_key、instance_id。

type WhatsAppBridge struct {
	logger *logrus.Logger
	client *http.Client
}

func NewWhatsAppBridge(logger *logrus.Logger, client *http.Client) *WhatsAppBridge {
	return &WhatsAppBridge{logger: logger, client: client}
}

type bridgeSendRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText 通过桥接服务发送文本
func (w *WhatsAppBridge) SendText(ctx context.Context, channel *models.Channel, recipient, text string) error {
	apiURL := channel.Credential("api_url")
	instance := channel.Credential("instance_id")
	if apiURL == "" || instance == "" {
		return fmt.Errorf("whatsapp bridge: channel %d missing api_url/instance_id", channel.ID)
	}

	// 桥接以纯号码寻址，@s.whatsapp.net 后缀去掉
	number := strings.SplitN(recipient, "@", 2)[0]

	payload, err := json.Marshal(bridgeSendRequest{Number: number, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/message/sendText/%s", strings.TrimRight(apiURL, "/"), instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", channel.Credential("api_key"))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp bridge send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp bridge send: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type bridgeMediaRequest struct {
	Message struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	} `json:"message"`
}

type bridgeMediaResponse struct {
	Base64   string `json:"base64"`
	Mimetype string `json:"mimetype"`
}

// FetchMedia 通过桥接服务把媒体消息转成 base64 拉回
func (w *WhatsAppBridge) FetchMedia(ctx context.Context, channel *models.Channel, ref *normalize.MediaRef) ([]byte, string, error) {
	apiURL := channel.Credential("api_url")
	instance := channel.Credential("instance_id")
	if apiURL == "" || instance == "" {
		return nil, "", fmt.Errorf("whatsapp bridge: channel %d missing api_url/instance_id", channel.ID)
	}
	if ref.ProviderID == "" {
		return nil, "", fmt.Errorf("whatsapp bridge: media ref has no message id")
	}

	var body bridgeMediaRequest
	body.Message.Key.ID = ref.ProviderID
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}

	url := fmt.Sprintf("%s/chat/getBase64FromMediaMessage/%s", strings.TrimRight(apiURL, "/"), instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", channel.Credential("api_key"))

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp bridge media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("whatsapp bridge media: status %d", resp.StatusCode)
	}

	var mr bridgeMediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, "", fmt.Errorf("whatsapp bridge media: decode: %w", err)
	}
	if mr.Base64 == "" {
		return nil, "", fmt.Errorf("whatsapp bridge media: empty base64")
	}

	data, err := base64.StdEncoding.DecodeString(mr.Base64)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp bridge media: decode base64: %w", err)
	}

	mime := mr.Mimetype
	if mime == "" {
		mime = ref.Mime
	}
	return data, mime, nil
}
