package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"unichat/internal/models"
	"unichat/internal/normalize"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Telegram 通过 Bot API 外发与拉取媒体。
// 凭据字段：bot_token。Bot 实例按 token 缓存复用。

type Telegram struct {
	logger *logrus.Logger
	mu     sync.RWMutex
	bots   map[string]*tgbotapi.BotAPI
}

func NewTelegram(logger *logrus.Logger) *Telegram {
	return &Telegram{
		logger: logger,
		bots:   make(map[string]*tgbotapi.BotAPI),
	}
}

func (t *Telegram) bot(token string) (*tgbotapi.BotAPI, error) {
	t.mu.RLock()
	bot, ok := t.bots[token]
	t.mu.RUnlock()
	if ok {
		return bot, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if bot, ok := t.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bots[token] = bot
	return bot, nil
}

// SendText 发送文本消息
func (t *Telegram) SendText(ctx context.Context, channel *models.Channel, recipient, text string) error {
	token := channel.Credential("bot_token")
	if token == "" {
		return fmt.Errorf("telegram: channel %d missing bot_token", channel.ID)
	}

	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", recipient, err)
	}

	bot, err := t.bot(token)
	if err != nil {
		return err
	}

	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FetchMedia 两步拉取：getFile 拿文件路径，再从文件服务下载
func (t *Telegram) FetchMedia(ctx context.Context, channel *models.Channel, ref *normalize.MediaRef) ([]byte, string, error) {
	token := channel.Credential("bot_token")
	if token == "" {
		return nil, "", fmt.Errorf("telegram: channel %d missing bot_token", channel.ID)
	}
	if ref.ProviderID == "" {
		return nil, "", fmt.Errorf("telegram: media ref has no file id")
	}

	bot, err := t.bot(token)
	if err != nil {
		return nil, "", err
	}

	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: ref.ProviderID})
	if err != nil {
		return nil, "", fmt.Errorf("telegram getFile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(token), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, "", fmt.Errorf("telegram download: %w", err)
	}
	return data, ref.Mime, nil
}
