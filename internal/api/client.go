package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alikamatu/artisan-app-sub002/internal/model"
	pkgerrors "github.com/alikamatu/artisan-app-sub002/pkg/errors"
)

// TokenSource 提供当前可用令牌，并接收服务端确认的过期事件。
// 任何调用在拿不到令牌时都会在发起网络 I/O 之前短路。
type TokenSource interface {
	GetValidToken() (string, bool)
	NotifyExpired()
}

// Client 是平台 API 的鉴权 HTTP 客户端。
// 所有请求都带 Bearer 头与请求 ID，响应按统一信封解析，
// 状态码映射到 pkg/errors 的错误分类。
type Client struct {
	hc      *client.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout 设置单次请求的超时，覆盖默认值。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, dialTimeout, requestTimeout time.Duration, opts ...Option) (*Client, error) {
	hc, err := client.NewClient(
		client.WithDialTimeout(dialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		hc:      hc,
		baseURL: baseURL,
		timeout: requestTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DoJSON 发出带鉴权的 JSON 请求，成功时把信封中的 data 解到 out（可为 nil）。
func (c *Client) DoJSON(ctx context.Context, ts TokenSource, method, path string, body interface{}, out interface{}, headers map[string]string) error {
	token, ok := ts.GetValidToken()
	if !ok {
		return pkgerrors.AuthenticationRequired
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.SetHeader("Authorization", "Bearer "+token)
	req.SetHeader("Accept", "application/json")
	requestID := uuid.NewString()
	req.SetHeader("X-Request-ID", requestID)
	for k, v := range headers {
		req.SetHeader(k, v)
	}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(payload)
	}

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		c.logger.Warn("Request transport failure",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return &pkgerrors.ServerError{Definition: pkgerrors.NetworkFailure, Detail: err.Error()}
	}

	status := resp.StatusCode()
	respBody := append([]byte(nil), resp.Body()...)

	c.logger.Debug("Request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", status),
	)

	if err := c.mapStatus(ts, status, respBody, pkgerrors.NetworkFailure); err != nil {
		return err
	}

	if out != nil {
		var envelope model.SuccessEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("failed to decode response envelope: %w", err)
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// UploadMultipart 以 multipart 表单上传一份文件内容，返回服务端给出的稳定 URL。
func (c *Client) UploadMultipart(ctx context.Context, ts TokenSource, path, fieldName, fileName, contentType string, data []byte) (*model.UploadResponse, error) {
	token, ok := ts.GetValidToken()
	if !ok {
		return nil, pkgerrors.AuthenticationRequired
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.SetHeader("Authorization", "Bearer "+token)
	req.SetHeader("Accept", "application/json")
	req.SetHeader("Content-Type", writer.FormDataContentType())
	requestID := uuid.NewString()
	req.SetHeader("X-Request-ID", requestID)
	req.SetBody(buf.Bytes())

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		c.logger.Warn("Upload transport failure",
			zap.String("path", path),
			zap.String("file", fileName),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return nil, &pkgerrors.ServerError{Definition: pkgerrors.NetworkFailure, Detail: err.Error()}
	}

	status := resp.StatusCode()
	respBody := append([]byte(nil), resp.Body()...)

	if err := c.mapStatus(ts, status, respBody, pkgerrors.UploadFailed); err != nil {
		return nil, err
	}

	var envelope model.SuccessEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	var uploaded model.UploadResponse
	if err := json.Unmarshal(envelope.Data, &uploaded); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.URL == "" {
		return nil, &pkgerrors.ServerError{Definition: pkgerrors.UploadFailed, Status: status, Detail: "server returned no url"}
	}

	return &uploaded, nil
}

// mapStatus 把响应状态映射到错误分类：
// 401 先通知会话过期（两个作用域都会被清空，回调延迟派发），
// 413/422 有固定分类，其余非 2xx 按信封里的错误码归类，fallback 兜底。
func (c *Client) mapStatus(ts TokenSource, status int, body []byte, fallback pkgerrors.Definition) error {
	if status >= 200 && status < 300 {
		return nil
	}

	detail, details, code := parseErrorBody(body)

	switch status {
	case consts.StatusUnauthorized:
		ts.NotifyExpired()
		return &pkgerrors.ServerError{Definition: pkgerrors.SessionExpired, Status: status, Detail: detail}
	case consts.StatusRequestEntityTooLarge:
		return &pkgerrors.ServerError{Definition: pkgerrors.PayloadTooLarge, Status: status, Detail: detail}
	case consts.StatusUnprocessableEntity:
		// 422 的服务端 message 原样透出
		return &pkgerrors.ServerError{Definition: pkgerrors.ServerValidation, Status: status, Detail: detail, Details: details}
	}

	def := fallback
	if code != "" {
		if known, ok := pkgerrors.Lookup[code]; ok {
			def = known
		}
	}
	return &pkgerrors.ServerError{Definition: def, Status: status, Detail: detail, Details: details}
}

func parseErrorBody(body []byte) (detail string, details map[string]interface{}, code string) {
	var envelope model.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return string(body), nil, ""
	}
	return envelope.Error.Message, envelope.Error.Details, envelope.Error.Code
}
