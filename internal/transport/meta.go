package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"unichat/internal/models"

	"github.com/sirupsen/logrus"
)

// MetaGraph Messenger/Instagram 共用的 Graph API 外发与资料查询。
// 凭据字段：page_access_token、page_id。

type MetaGraph struct {
	logger  *logrus.Logger
	client  *http.Client
	baseURL string
}

func NewMetaGraph(logger *logrus.Logger, client *http.Client) *MetaGraph {
	return &MetaGraph{logger: logger, client: client, baseURL: graphBaseURL}
}

type metaSendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	MessagingType string `json:"messaging_type"`
}

// SendText 通过 Send API 回复指定 PSID
func (m *MetaGraph) SendText(ctx context.Context, channel *models.Channel, recipient, text string) error {
	token := channel.Credential("page_access_token")
	if token == "" {
		return fmt.Errorf("meta: channel %d missing page_access_token", channel.ID)
	}

	var body metaSendRequest
	body.Recipient.ID = recipient
	body.Message.Text = text
	body.MessagingType = "RESPONSE"

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", m.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("meta send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("meta send: status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

type metaProfile struct {
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ProfilePic string `json:"profile_pic"`
}

// LookupProfile 查询发件人显示名与头像，失败交由调用方兜底
func (m *MetaGraph) LookupProfile(ctx context.Context, channel *models.Channel, senderID string) (string, string, error) {
	token := channel.Credential("page_access_token")
	if token == "" {
		return "", "", fmt.Errorf("meta: channel %d missing page_access_token", channel.ID)
	}

	endpoint := fmt.Sprintf("%s/%s?fields=name,first_name,last_name,profile_pic&access_token=%s",
		m.baseURL, url.PathEscape(senderID), url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("meta profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("meta profile: status %d", resp.StatusCode)
	}

	var profile metaProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", "", fmt.Errorf("meta profile: decode: %w", err)
	}

	name := profile.Name
	if name == "" && (profile.FirstName != "" || profile.LastName != "") {
		name = profile.FirstName
		if profile.LastName != "" {
			if name != "" {
				name += " "
			}
			name += profile.LastName
		}
	}
	return name, profile.ProfilePic, nil
}
