package utils

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	if len(id) != 32 {
		t.Errorf("GenerateID() returned length %d, want 32", len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("GenerateID() returned invalid hex character: %c", c)
		}
	}
	if id == GenerateID() {
		t.Error("GenerateID() returned same ID twice")
	}
}

func TestGenerateMediaFilename(t *testing.T) {
	name := GenerateMediaFilename("image/png")
	if !strings.HasSuffix(name, ".png") {
		t.Errorf("GenerateMediaFilename(image/png) = %q, want .png suffix", name)
	}
	if name == GenerateMediaFilename("image/png") {
		t.Error("GenerateMediaFilename() returned same name twice")
	}
}

func TestExtensionForMime(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "jpg"},
		{"IMAGE/PNG", "png"},
		{"audio/ogg; codecs=opus", "ogg"},
		{"application/pdf", "pdf"},
		{"image/x-unknown", "jpg"},
		{"audio/x-unknown", "ogg"},
		{"application/octet-stream", "bin"},
		{"", "bin"},
	}

	for _, tt := range tests {
		if got := ExtensionForMime(tt.mime); got != tt.want {
			t.Errorf("ExtensionForMime(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
