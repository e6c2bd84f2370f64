package handlers

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse 统一成功响应
type SuccessResponse struct {
	Message string `json:"message"`
}
