package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// 生成随机 ID
func GenerateID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// 生成媒体文件名：时间戳 + 随机段 + 按 MIME 推导的扩展名
func GenerateMediaFilename(mime string) string {
	return fmt.Sprintf("%d_%s.%s", time.Now().Unix(), GenerateID()[:8], ExtensionForMime(mime))
}

// mimeExtensions 常见 mimetype 到扩展名的静态映射
var mimeExtensions = map[string]string{
	"image/jpeg":         "jpg",
	"image/jpg":          "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/webp":         "webp",
	"video/mp4":          "mp4",
	"video/3gpp":         "3gp",
	"video/quicktime":    "mov",
	"audio/ogg":          "ogg",
	"audio/mpeg":         "mp3",
	"audio/mp4":          "m4a",
	"audio/aac":          "aac",
	"audio/wav":          "wav",
	"application/pdf":    "pdf",
	"application/zip":    "zip",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"text/plain": "txt",
	"text/csv":   "csv",
}

// ExtensionForMime 按 mimetype 推导扩展名，未知类型按媒体大类兜底
func ExtensionForMime(mime string) string {
	// 去掉 codec 参数，如 "audio/ogg; codecs=opus"
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if ext, ok := mimeExtensions[strings.ToLower(mime)]; ok {
		return ext
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "jpg"
	case strings.HasPrefix(mime, "audio/"):
		return "ogg"
	default:
		return "bin"
	}
}
