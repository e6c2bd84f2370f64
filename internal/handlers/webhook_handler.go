package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"unichat/internal/services"
)

// 接受入站回调的渠道类型
var knownProviders = map[string]bool{
	"whatsapp":       true,
	"whatsapp_cloud": true,
	"telegram":       true,
	"facebook":       true,
	"instagram":      true,
	"website":        true,
	"email":          true,
}

// WebhookHandler 各渠道入站回调入口。
// 除持久化失败外一律响应 200,避免渠道方重试风暴。
type WebhookHandler struct {
	ingest      *services.IngestService
	verifyToken string
	logger      *logrus.Logger
}

func NewWebhookHandler(ingest *services.IngestService, verifyToken string, logger *logrus.Logger) *WebhookHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebhookHandler{
		ingest:      ingest,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Receive 处理 POST /webhooks/:provider 与 /webhooks/:provider/:channelId
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := c.Param("provider")
	if !knownProviders[provider] {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown provider"})
		return
	}

	var channelID uint
	if idStr := c.Param("channelId"); idStr != "" {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid channel id"})
			return
		}
		channelID = uint(id)
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		h.logger.WithError(err).Warn("Webhook body read failed")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.ingest.Ingest(c.Request.Context(), provider, channelID, raw); err != nil {
		// 持久化失败是唯一返回非 200 的情况,渠道方的重投是仅有的恢复手段
		h.logger.WithError(err).WithField("provider", provider).Error("Ingestion failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Ingestion failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Verify 处理 Meta 系渠道的 GET 订阅握手,原样回显 hub.challenge
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"provider": c.Param("provider"),
		"mode":     mode,
	}).Warn("Webhook verification rejected")
	c.String(http.StatusForbidden, "verification failed")
}

// RegisterWebhookRoutes 注册回调路由
func RegisterWebhookRoutes(r *gin.Engine, handler *WebhookHandler) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/:provider", handler.Receive)
		webhooks.POST("/:provider/:channelId", handler.Receive)
		webhooks.GET("/:provider", handler.Verify)
	}
}
