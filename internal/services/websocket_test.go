package services

import (
	"testing"
	"time"
)

func TestWebSocketHub_RoomBroadcast(t *testing.T) {
	hub := NewWebSocketHub(nil)
	go hub.Run()

	clientA := &WebSocketClient{ID: "a", UserID: 7, Send: make(chan WebSocketMessage, 4), Hub: hub}
	clientB := &WebSocketClient{ID: "b", UserID: 7, Send: make(chan WebSocketMessage, 4), Hub: hub}
	other := &WebSocketClient{ID: "c", UserID: 9, Send: make(chan WebSocketMessage, 4), Hub: hub}

	hub.register <- clientA
	hub.register <- clientB
	hub.register <- other

	hub.Push(7, EventNewMessage, map[string]interface{}{"id": 1})

	for _, c := range []*WebSocketClient{clientA, clientB} {
		select {
		case msg := <-c.Send:
			if msg.Type != EventNewMessage {
				t.Errorf("client %s got %q", c.ID, msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s got nothing", c.ID)
		}
	}

	// 其他租户的房间不收事件
	select {
	case msg := <-other.Send:
		t.Errorf("cross-tenant leak: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocketHub_UnregisterEmptiesRoom(t *testing.T) {
	hub := NewWebSocketHub(nil)
	go hub.Run()

	client := &WebSocketClient{ID: "a", UserID: 7, Send: make(chan WebSocketMessage, 1), Hub: hub}
	hub.register <- client
	hub.unregister <- client

	deadline := time.Now().Add(time.Second)
	for hub.RoomSize(7) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room not emptied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 空房间的推送直接丢弃,不阻塞
	hub.Push(7, EventNewMessage, nil)
}

func TestWebSocketHub_SlowClientEvicted(t *testing.T) {
	hub := NewWebSocketHub(nil)
	go hub.Run()

	slow := &WebSocketClient{ID: "slow", UserID: 7, Send: make(chan WebSocketMessage, 1), Hub: hub}
	hub.register <- slow
	// 塞满发送队列,下一次广播必须把它踢出房间
	slow.Send <- WebSocketMessage{Type: "filler"}

	hub.Push(7, EventNewMessage, nil)

	deadline := time.Now().Add(time.Second)
	for hub.RoomSize(7) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client not evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 被踢后 Send 通道已关闭:先读出积压消息,再观察到关闭
	if msg := <-slow.Send; msg.Type != "filler" {
		t.Errorf("buffered message = %q", msg.Type)
	}
	if _, ok := <-slow.Send; ok {
		t.Error("send channel not closed after eviction")
	}
}

func TestWebSocketHub_PushNeverBlocks(t *testing.T) {
	hub := NewWebSocketHub(nil)
	// 不启动 Run,广播队列塞满后 Push 必须立即返回
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Push(1, EventNewMessage, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked with full broadcast queue")
	}
}
