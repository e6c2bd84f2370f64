package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"unichat/internal/config"
	"unichat/internal/models"
	"unichat/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newWebhookTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Channel{}, &models.Lead{}, &models.Conversation{}, &models.Message{},
		&models.AssistantBinding{}, &models.AssistantLog{}, &models.WebhookSubscription{},
	))

	cfg := &config.Config{}
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.PublicBaseURL = "http://localhost:8080"
	storage, err := services.NewStorageService(cfg, nil)
	require.NoError(t, err)

	channels := services.NewChannelService(db, nil)
	identity := services.NewIdentityService(db, nil)
	media := services.NewMediaService(storage, nil, 1<<20, nil)
	fanout := services.NewFanoutService(db, nil, nil, 1, 8, 0, nil)
	ingest := services.NewIngestService(db, channels, identity, media, fanout, nil, nil, nil)

	r := gin.New()
	RegisterWebhookRoutes(r, NewWebhookHandler(ingest, "secret-token", nil))
	return r, db
}

func TestWebhookHandler_ReceiveTelegram(t *testing.T) {
	r, db := newWebhookTestRouter(t)
	db.Create(&models.Channel{UserID: 1, Type: models.ChannelTelegram, Status: models.ChannelStatusActive})

	body := `{"update_id":1,"message":{"message_id":42,"from":{"id":555,"first_name":"Alice"},"chat":{"id":555,"type":"private"},"date":1730000000,"text":"Hi"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestWebhookHandler_ReceiveWithChannelID(t *testing.T) {
	r, db := newWebhookTestRouter(t)
	ch := &models.Channel{UserID: 1, Type: models.ChannelWebsite, Status: models.ChannelStatusActive}
	db.Create(ch)
	// 同类型的第二个渠道,没有路径 ID 时本来会判为歧义
	db.Create(&models.Channel{UserID: 2, Type: models.ChannelWebsite, Status: models.ChannelStatusActive})

	body := `{"type":"message","visitor_id":"v-1","text":"hello"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/website/1", strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var msg models.Message
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, ch.UserID, msg.UserID)
}

func TestWebhookHandler_UnknownProvider(t *testing.T) {
	r, _ := newWebhookTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/smoke-signals", strings.NewReader("{}"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookHandler_SkippableAlwaysAcked(t *testing.T) {
	r, db := newWebhookTestRouter(t)
	db.Create(&models.Channel{UserID: 1, Type: models.ChannelFacebook, Status: models.ChannelStatusActive})

	// is_echo 永远跳过,但必须响应 200
	body := `{"object":"page","entry":[{"id":"page-1","messaging":[{"sender":{"id":"psid-1"},"message":{"mid":"m-1","text":"echo","is_echo":true}}]}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.Message{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWebhookHandler_MetaVerification(t *testing.T) {
	r, _ := newWebhookTestRouter(t)

	// 正确 token:原样回显 challenge
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhooks/facebook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	// 错误 token:拒绝
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/webhooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
