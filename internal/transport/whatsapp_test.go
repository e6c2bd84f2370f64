package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"unichat/internal/models"
	"unichat/internal/normalize"

	"gorm.io/datatypes"
)

func bridgeChannel(apiURL string) *models.Channel {
	return &models.Channel{
		ID: 1, UserID: 1, Type: models.ChannelWhatsApp,
		Credentials: datatypes.JSONMap{
			"api_url":     apiURL,
			"api_key":     "key-1",
			"instance_id": "inst-1",
		},
	}
}

func TestWhatsAppBridge_SendText(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody bridgeSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	bridge := NewWhatsAppBridge(nil, srv.Client())
	err := bridge.SendText(context.Background(), bridgeChannel(srv.URL), "491700000@s.whatsapp.net", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if gotPath != "/message/sendText/inst-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAPIKey != "key-1" {
		t.Errorf("apikey = %q", gotAPIKey)
	}
	// 寻址用纯号码,JID 后缀去掉
	if gotBody.Number != "491700000" || gotBody.Text != "hello" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestWhatsAppBridge_SendTextRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"instance offline"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	bridge := NewWhatsAppBridge(nil, srv.Client())
	err := bridge.SendText(context.Background(), bridgeChannel(srv.URL), "491700000@s.whatsapp.net", "hello")
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWhatsAppBridge_FetchMedia(t *testing.T) {
	media := []byte{0xff, 0xd8, 0xff}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/getBase64FromMediaMessage/inst-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req bridgeMediaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Message.Key.ID != "WAMID-1" {
			t.Errorf("message key id = %q", req.Message.Key.ID)
		}
		_ = json.NewEncoder(w).Encode(bridgeMediaResponse{
			Base64:   base64.StdEncoding.EncodeToString(media),
			Mimetype: "image/jpeg",
		})
	}))
	defer srv.Close()

	bridge := NewWhatsAppBridge(nil, srv.Client())
	data, mime, err := bridge.FetchMedia(context.Background(), bridgeChannel(srv.URL), &normalize.MediaRef{ProviderID: "WAMID-1"})
	if err != nil {
		t.Fatalf("FetchMedia failed: %v", err)
	}
	if mime != "image/jpeg" || len(data) != len(media) {
		t.Errorf("mime=%q len=%d", mime, len(data))
	}
}

func TestWhatsAppBridge_MissingCredentials(t *testing.T) {
	bridge := NewWhatsAppBridge(nil, http.DefaultClient)
	ch := &models.Channel{ID: 2, Type: models.ChannelWhatsApp}
	if err := bridge.SendText(context.Background(), ch, "x", "y"); err == nil {
		t.Error("expected error without credentials")
	}
	if _, _, err := bridge.FetchMedia(context.Background(), ch, &normalize.MediaRef{ProviderID: "id"}); err == nil {
		t.Error("expected error without credentials")
	}
}
