package model

import (
	"encoding/json"
	"errors"
)

// File 表示一份待上传的本地文件内容。
type File struct {
	Name string
	Data []byte
}

func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// UploadField 是表单中文件字段的和类型：
// 要么是尚未上传的本地文件（Pending），要么是已上传的稳定 URL（Uploaded）。
// 一旦进入 Uploaded 状态就绝不会被重新上传。
type UploadField struct {
	file *File
	url  string
}

// PendingFile 构造待上传状态的字段。
func PendingFile(f *File) UploadField {
	return UploadField{file: f}
}

// UploadedURL 构造已上传状态的字段。
func UploadedURL(url string) UploadField {
	return UploadField{url: url}
}

// Pending 返回待上传的文件，第二个返回值指示字段是否处于 Pending 状态。
func (u UploadField) Pending() (*File, bool) {
	return u.file, u.file != nil
}

// URL 返回稳定地址，第二个返回值指示字段是否处于 Uploaded 状态。
func (u UploadField) URL() (string, bool) {
	if u.file != nil {
		return "", false
	}
	return u.url, u.url != ""
}

var errPendingUploadField = errors.New("upload field still pending, resolve it before serialization")

// MarshalJSON 只允许序列化 Uploaded 状态，Pending 字段必须先经过上传管线。
func (u UploadField) MarshalJSON() ([]byte, error) {
	if u.file != nil {
		return nil, errPendingUploadField
	}
	return json.Marshal(u.url)
}

// UploadResult 是单个文件上传成功后的结果。
type UploadResult struct {
	URL               string `json:"url"`
	OriginalSizeBytes int64  `json:"original_size_bytes"`
	FinalSizeBytes    int64  `json:"final_size_bytes"`
}

// UploadFailure 记录批量上传中单个文件的失败原因。
type UploadFailure struct {
	Name string
	Err  error
}

// BatchResult 是批量上传的汇总：成功的 URL 集合加失败清单，
// 任何一个文件失败都不会使整批失败。
type BatchResult struct {
	URLs     []string
	Failures []UploadFailure
}

func (b *BatchResult) FailureCount() int {
	return len(b.Failures)
}
