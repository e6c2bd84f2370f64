package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"unichat/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newFanoutTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.WebhookSubscription{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func TestFanoutService_RealtimeEvents(t *testing.T) {
	db := newFanoutTestDB(t)
	pusher := &recordingPusher{}
	svc := NewFanoutService(db, pusher, nil, 1, 8, 0, nil)

	msg := &models.Message{ID: 1, Direction: models.DirectionIn}
	conv := &models.Conversation{ID: 2, UnreadCount: 3}
	channel := &models.Channel{ID: 3, UserID: 7, Type: models.ChannelTelegram}

	svc.Dispatch(msg, conv, channel)

	want := []string{EventNewMessage, EventConversationUpdate, EventUnreadCountUpdate}
	if len(pusher.events) != len(want) {
		t.Fatalf("events = %v", pusher.events)
	}
	for i, ev := range want {
		if pusher.events[i] != ev {
			t.Errorf("event[%d] = %q, want %q", i, pusher.events[i], ev)
		}
	}
}

func TestFanoutService_WebhookDelivery(t *testing.T) {
	db := newFanoutTestDB(t)

	received := make(chan map[string]interface{}, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Unichat-Event") != EventNewMessage {
			t.Errorf("event header = %q", r.Header.Get("X-Unichat-Event"))
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	db.Create(&models.WebhookSubscription{UserID: 7, URL: target.URL, IsActive: true})
	// 不活跃与不同租户的订阅都不该被触发
	db.Create(&models.WebhookSubscription{UserID: 7, URL: target.URL + "/inactive", IsActive: false})
	db.Create(&models.WebhookSubscription{UserID: 8, URL: target.URL + "/other", IsActive: true})
	// 只订阅别的事件
	db.Create(&models.WebhookSubscription{UserID: 7, URL: target.URL + "/filtered", Events: "conversation_update", IsActive: true})

	svc := NewFanoutService(db, nil, nil, 2, 8, 5*time.Second, nil)
	svc.Dispatch(
		&models.Message{ID: 1, Content: "hello"},
		&models.Conversation{ID: 2},
		&models.Channel{ID: 3, UserID: 7, Type: models.ChannelEmail},
	)

	select {
	case body := <-received:
		if body["event"] != EventNewMessage {
			t.Errorf("payload event = %v", body["event"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not delivered")
	}

	// 再等一拍,确认没有多余投递
	select {
	case <-received:
		t.Fatal("unexpected extra delivery")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFanoutService_TargetFailureDoesNotPropagate(t *testing.T) {
	db := newFanoutTestDB(t)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer target.Close()

	db.Create(&models.WebhookSubscription{UserID: 7, URL: target.URL, IsActive: true})

	svc := NewFanoutService(db, nil, nil, 1, 8, time.Second, nil)
	// 投递失败只记日志,Dispatch 不 panic 不报错
	svc.Dispatch(&models.Message{ID: 1}, &models.Conversation{ID: 2}, &models.Channel{ID: 3, UserID: 7})
	time.Sleep(200 * time.Millisecond)
}

type stallingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stallingSink) Publish(ctx context.Context, event string, payload interface{}) error {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestFanoutService_StalledSinkDoesNotBlockDispatch(t *testing.T) {
	db := newFanoutTestDB(t)
	sink := &stallingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewFanoutService(db, nil, sink, 1, 8, 0, nil)

	done := make(chan struct{})
	go func() {
		svc.Dispatch(&models.Message{ID: 1}, &models.Conversation{ID: 2}, &models.Channel{ID: 3, UserID: 7})
		close(done)
	}()

	// broker 卡住时入站路径照常返回
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a stalled event sink")
	}

	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("event sink never invoked")
	}
	close(sink.release)
}
