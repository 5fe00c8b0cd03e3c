package model

import "encoding/json"

// 平台 API 的统一响应格式：
// 成功为 {"data": ...}，失败为 {"error": {"code", "message", "details"}}。

// SuccessEnvelope 包裹成功响应的数据部分。
type SuccessEnvelope struct {
	Data json.RawMessage        `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// ErrorEnvelope 包裹错误响应。
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// UploadResponse 是 POST /onboarding/upload 成功时的数据部分。
type UploadResponse struct {
	URL string `json:"url"`
}

// AckResponse 是步骤更新与完成事务成功时的数据部分。
type AckResponse struct {
	Acknowledged bool `json:"acknowledged"`
}
