package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"unichat/internal/config"
	"unichat/pkg/utils"
)

// StorageService 本地磁盘媒体存储。
// 上传目录通过 HTTP 静态路由对外暴露，返回的 URL 可以直接落库。
type StorageService struct {
	uploadDir     string
	publicBaseURL string
	logger        *logrus.Logger
}

func NewStorageService(cfg *config.Config, logger *logrus.Logger) (*StorageService, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dir := cfg.Storage.UploadDir
	if dir == "" {
		dir = "./uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &StorageService{
		uploadDir:     dir,
		publicBaseURL: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Save 写入媒体字节并返回可访问 URL。
// filename 为空时按 MIME 类型生成随机文件名。
func (s *StorageService) Save(data []byte, mimeType, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty media payload")
	}
	if filename == "" {
		filename = utils.GenerateMediaFilename(mimeType)
	} else {
		// 清洗掉路径成分，文件名前加随机段避免覆盖
		filename = fmt.Sprintf("%s_%s", utils.GenerateID()[:8], filepath.Base(filename))
	}

	path := filepath.Join(s.uploadDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file": filename,
		"size": len(data),
		"mime": mimeType,
	}).Debug("Media stored")

	return s.publicBaseURL + "/uploads/" + filename, nil
}

// Delete 按 Save 返回的 URL 删除文件，找不到不算错误
func (s *StorageService) Delete(url string) error {
	idx := strings.LastIndex(url, "/uploads/")
	if idx < 0 {
		return fmt.Errorf("not a managed media url: %s", url)
	}
	name := filepath.Base(url[idx+len("/uploads/"):])
	if name == "" || name == "." {
		return fmt.Errorf("not a managed media url: %s", url)
	}
	err := os.Remove(filepath.Join(s.uploadDir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
