package errors

import "errors"

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

func (d Definition) Error() string {
	return d.Message
}

// 本地校验错误，在任何网络调用之前产生，不会自动重试。
var (
	UnsupportedType = Definition{Code: "UNSUPPORTED_TYPE", Message: "Unsupported file type"}
	FileTooLarge    = Definition{Code: "FILE_TOO_LARGE", Message: "File exceeds size limit"}
)

// 会话错误。
// AuthenticationRequired 表示本地没有可用令牌，发生在网络调用之前；
// SessionExpired 只会在服务端返回 401 之后产生，二者不可混用。
var (
	AuthenticationRequired = Definition{Code: "AUTHENTICATION_REQUIRED", Message: "Authentication required"}
	SessionExpired         = Definition{Code: "SESSION_EXPIRED", Message: "Session expired"}
)

// 传输与服务端错误。
var (
	PayloadTooLarge  = Definition{Code: "PAYLOAD_TOO_LARGE", Message: "Payload too large"}
	UploadFailed     = Definition{Code: "UPLOAD_FAILED", Message: "Upload failed"}
	ServerValidation = Definition{Code: "SERVER_VALIDATION", Message: "Server rejected the submitted data"}
	NetworkFailure   = Definition{Code: "NETWORK_FAILURE", Message: "Network request failed"}
)

// 引导流程错误。
var (
	SubmissionInFlight = Definition{Code: "SUBMISSION_IN_FLIGHT", Message: "Another step submission is in flight"}
	RoleUnknown        = Definition{Code: "ROLE_UNKNOWN", Message: "Unknown onboarding role"}
	RoleNotSelected    = Definition{Code: "ROLE_NOT_SELECTED", Message: "Onboarding role not selected yet"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	UnsupportedType.Code:        UnsupportedType,
	FileTooLarge.Code:           FileTooLarge,
	AuthenticationRequired.Code: AuthenticationRequired,
	SessionExpired.Code:         SessionExpired,
	PayloadTooLarge.Code:        PayloadTooLarge,
	UploadFailed.Code:           UploadFailed,
	ServerValidation.Code:       ServerValidation,
	NetworkFailure.Code:         NetworkFailure,
	SubmissionInFlight.Code:     SubmissionInFlight,
	RoleUnknown.Code:            RoleUnknown,
	RoleNotSelected.Code:        RoleNotSelected,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// ServerError 携带服务端返回的原始信息，Unwrap 到对应的 Definition，
// 调用方可以用 errors.Is 按错误码分支。
type ServerError struct {
	Definition
	Status  int
	Detail  string                 // 服务端 message 原文
	Details map[string]interface{} // 422 时的字段级明细
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return e.Definition.Message + ": " + e.Detail
	}
	return e.Definition.Message
}

func (e *ServerError) Unwrap() error {
	return e.Definition
}

// IsAuthTerminal 判断错误是否终结当前会话，这类错误必须上抛到顶层处理，
// 不允许用同一个令牌重试。
func IsAuthTerminal(err error) bool {
	return errors.Is(err, AuthenticationRequired) || errors.Is(err, SessionExpired)
}

// IsValidation 判断错误是否为提交数据问题，用户修改后可以重新提交。
func IsValidation(err error) bool {
	return errors.Is(err, UnsupportedType) || errors.Is(err, FileTooLarge) || errors.Is(err, ServerValidation)
}
