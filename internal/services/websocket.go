package services

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketMessage 推送给前端的事件
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type roomMessage struct {
	UserID  uint
	Message WebSocketMessage
}

// WebSocketClient 一条已连接的操作员会话
type WebSocketClient struct {
	ID     string
	UserID uint
	Conn   *websocket.Conn
	Send   chan WebSocketMessage
	Hub    *WebSocketHub
}

// WebSocketHub 按租户分房间的连接管理器。
// 这是整个入站链路里唯一需要同步修改的共享结构。
type WebSocketHub struct {
	rooms      map[uint]map[string]*WebSocketClient
	broadcast  chan roomMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewWebSocketHub(logger *logrus.Logger) *WebSocketHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebSocketHub{
		rooms:      make(map[uint]map[string]*WebSocketClient),
		broadcast:  make(chan roomMessage, 64),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		logger:     logger,
	}
}

func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			room, ok := h.rooms[client.UserID]
			if !ok {
				room = make(map[string]*WebSocketClient)
				h.rooms[client.UserID] = room
			}
			room[client.ID] = client
			h.mutex.Unlock()
			h.logger.Infof("Client %s joined room %d", client.ID, client.UserID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if room, ok := h.rooms[client.UserID]; ok {
				if _, ok := room[client.ID]; ok {
					delete(room, client.ID)
					close(client.Send)
					if len(room) == 0 {
						delete(h.rooms, client.UserID)
					}
					h.logger.Infof("Client %s left room %d", client.ID, client.UserID)
				}
			}
			h.mutex.Unlock()

		case rm := <-h.broadcast:
			// 淘汰慢连接会改写房间表,必须持写锁
			h.mutex.Lock()
			for _, client := range h.rooms[rm.UserID] {
				select {
				case client.Send <- rm.Message:
				default:
					// 消费不过来的连接直接断开，重连后由读接口补状态
					close(client.Send)
					delete(h.rooms[rm.UserID], client.ID)
				}
			}
			if len(h.rooms[rm.UserID]) == 0 {
				delete(h.rooms, rm.UserID)
			}
			h.mutex.Unlock()
		}
	}
}

// Push 向租户房间广播事件，至多一次，不阻塞调用方
func (h *WebSocketHub) Push(userID uint, event string, payload interface{}) {
	msg := roomMessage{
		UserID: userID,
		Message: WebSocketMessage{
			Type:      event,
			Data:      payload,
			Timestamp: time.Now().UTC(),
		},
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warnf("Broadcast queue full, dropping %s for user %d", event, userID)
	}
}

// RoomSize 返回租户当前在线连接数
func (h *WebSocketHub) RoomSize(userID uint) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[userID])
}

// HandleWebSocket 升级连接并加入租户房间；鉴权由上游会话层完成
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &WebSocketClient{
		ID:     uuid.NewString(),
		UserID: uint(userID),
		Conn:   conn,
		Send:   make(chan WebSocketMessage, 32),
		Hub:    h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// 推送是单向的，读循环只用于探活
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Errorf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.Error("WriteJSON error:", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
