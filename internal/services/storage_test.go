package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"unichat/internal/config"
)

func newTestStorage(t *testing.T) *StorageService {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.PublicBaseURL = "http://cdn.example.com"
	s, err := NewStorageService(cfg, nil)
	if err != nil {
		t.Fatalf("NewStorageService failed: %v", err)
	}
	return s
}

func TestStorageService_SaveAndDelete(t *testing.T) {
	s := newTestStorage(t)

	url, err := s.Save([]byte("hello"), "image/jpeg", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(url, "http://cdn.example.com/uploads/") {
		t.Errorf("url = %q", url)
	}
	if !strings.HasSuffix(url, ".jpg") {
		t.Errorf("expected .jpg extension, got %q", url)
	}

	name := filepath.Base(url)
	if _, err := os.Stat(filepath.Join(s.uploadDir, name)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	if err := s.Delete(url); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.uploadDir, name)); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}
}

func TestStorageService_SaveKeepsFilename(t *testing.T) {
	s := newTestStorage(t)

	url, err := s.Save([]byte("%PDF-1.4"), "application/pdf", "invoice.pdf")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasSuffix(url, "_invoice.pdf") {
		t.Errorf("original filename not preserved: %q", url)
	}
}

func TestStorageService_SaveRejectsEmpty(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Save(nil, "image/png", ""); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestStorageService_DeleteForeignURL(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete("http://elsewhere.example.com/foo.png"); err == nil {
		t.Error("expected error for unmanaged url")
	}
}
