// Package llm 提供可插拔的大模型补全客户端。
// 目前支持 OpenAI 兼容接口与 Google Gemini 两种请求形态。
package llm

import (
	"context"
	"fmt"
	"time"
)

// Turn 一轮历史对话
type Turn struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Request 一次补全请求
type Request struct {
	Model       string
	System      string // 系统提示词
	History     []Turn // 最近若干轮历史
	User        string // 本次用户输入
	Temperature float64
	MaxTokens   int
}

// Response 补全结果
type Response struct {
	Text       string
	TokensUsed int
}

// Provider 大模型补全接口
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Config 构建 Provider 所需的配置
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// New 按名称构建 Provider
func New(provider string, cfg Config) (Provider, error) {
	switch provider {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", provider)
}
