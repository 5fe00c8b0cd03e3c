package onboarding

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"github.com/alikamatu/artisan-app-sub002/internal/api"
	"github.com/alikamatu/artisan-app-sub002/internal/auth"
	"github.com/alikamatu/artisan-app-sub002/internal/model"
	"github.com/alikamatu/artisan-app-sub002/internal/steps"
	"github.com/alikamatu/artisan-app-sub002/internal/upload"
	pkgerrors "github.com/alikamatu/artisan-app-sub002/pkg/errors"
	"github.com/alikamatu/artisan-app-sub002/pkg/metrics"
	"github.com/alikamatu/artisan-app-sub002/pkg/snowflake"
)

const (
	statusPath       = "/onboarding/status"
	stepFallbackPath = "/onboarding/step"
	completePath     = "/onboarding/complete"
)

// endpointTable 把 (role, step) 静态映射到具体端点。
// 表里查不到的组合不算失败，而是落到通用信封端点 stepFallbackPath，
// 这是对旧服务端的兼容兜底。
var endpointTable = map[model.Role]map[model.StepName]string{
	model.RoleClient: {
		steps.StepBasic:       "/onboarding/client/basic",
		steps.StepPreferences: "/onboarding/client/preferences",
		steps.StepPayment:     "/onboarding/client/payment",
	},
	model.RoleWorker: {
		steps.StepBasic:        "/onboarding/worker/basic",
		steps.StepProfessional: "/onboarding/worker/professional",
		steps.StepPricing:      "/onboarding/worker/pricing",
		steps.StepVerification: "/onboarding/worker/verification",
		steps.StepFinancial:    "/onboarding/worker/financial",
	},
}

// Controller 端到端编排一次步骤提交：
// 解析载荷里的上传字段 → 发出鉴权的步骤更新请求 → 成功后 resync 进度。
// 进度的推进只由服务端确认，本地从不乐观递增。
type Controller struct {
	api      *api.Client
	session  *auth.Session
	pipeline *upload.Pipeline
	store    *ProgressStore
	logger   *zap.Logger

	// 同一时刻只允许一次在途的步骤提交，
	// 避免两次 "当前步骤" 推进互相竞争；单次提交内的文件上传仍是并发的。
	submitMu sync.Mutex

	mu        sync.Mutex
	collected map[model.StepName]model.StepData
}

func NewController(apiClient *api.Client, session *auth.Session, pipeline *upload.Pipeline, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		api:       apiClient,
		session:   session,
		pipeline:  pipeline,
		logger:    logger,
		collected: make(map[model.StepName]model.StepData),
	}
	c.store = NewProgressStore(c.fetchStatus)
	return c
}

// Progress 暴露进度缓存，供展示层读取快照与激活步骤。
func (c *Controller) Progress() *ProgressStore {
	return c.store
}

// FetchStatus 从服务端 resync 进度。
// 失败时错误上浮但已有缓存不动，瞬时失败不会把界面打回空白。
func (c *Controller) FetchStatus(ctx context.Context) error {
	return c.store.Refresh(ctx)
}

func (c *Controller) fetchStatus(ctx context.Context) (*model.OnboardingStatus, error) {
	var status model.OnboardingStatus
	if err := c.api.DoJSON(ctx, c.session, consts.MethodGet, statusPath, nil, &status, nil); err != nil {
		return nil, err
	}
	return &status, nil
}

// UpdateStep 提交一个步骤。
// 返回值 ok 表示服务端已确认本次提交；err 非空时调用方按分类处理：
// 认证终结性错误（pkg/errors.IsAuthTerminal）必须上抛到顶层，
// 其余错误展示给用户后允许重新提交，控制器内部不做自动重试。
func (c *Controller) UpdateStep(ctx context.Context, role model.Role, step model.StepName, data model.StepData) (bool, error) {
	if !role.Valid() {
		return false, pkgerrors.RoleUnknown
	}

	if !c.submitMu.TryLock() {
		return false, pkgerrors.SubmissionInFlight
	}
	defer c.submitMu.Unlock()

	resolved, err := c.processStepData(ctx, data)
	if err != nil {
		metrics.RecordStepSubmission(ctx, string(role), string(step), "upload_failed")
		return false, err
	}

	path, known := endpointTable[role][step]
	var body interface{}
	if known {
		body = resolved
	} else {
		// 兼容兜底：未知组合走通用信封端点
		path = stepFallbackPath
		body = model.StepEnvelope{Role: role, Step: step, Data: resolved}
		c.logger.Warn("Unknown role/step pair, using fallback endpoint",
			zap.String("role", string(role)),
			zap.String("step", string(step)),
		)
	}

	if err := c.api.DoJSON(ctx, c.session, consts.MethodPut, path, body, nil, nil); err != nil {
		metrics.RecordStepSubmission(ctx, string(role), string(step), "failed")
		return false, err
	}

	c.mu.Lock()
	c.collected[step] = resolved
	c.mu.Unlock()

	c.logger.Info("Step acknowledged",
		zap.String("role", string(role)),
		zap.String("step", string(step)),
	)
	metrics.RecordStepSubmission(ctx, string(role), string(step), "ok")

	// 成功后整体 resync，而不是在本地把进度 +1：
	// 乐观视图与权威视图之间的漂移从源头上避免。
	if err := c.FetchStatus(ctx); err != nil {
		c.logger.Warn("Resync after step acknowledgment failed", zap.Error(err))
	}

	return true, nil
}

// CompleteOnboarding 提交终点事务。
// 请求本身可安全重试（带幂等键），但完成与否只信 resync 之后的快照：
// 网络在服务端落库之后断开时，传输层的失败不代表事务失败。
func (c *Controller) CompleteOnboarding(ctx context.Context, extra model.StepData) (bool, error) {
	status, state, _ := c.store.Snapshot()
	if state == StateNotLoaded || status == nil || !status.Role.Valid() {
		return false, pkgerrors.RoleNotSelected
	}

	body := map[string]interface{}{"role": status.Role}
	c.mu.Lock()
	for step, data := range c.collected {
		body[string(step)] = data
	}
	c.mu.Unlock()
	for k, v := range extra {
		body[k] = v
	}

	headers := map[string]string{}
	if key, err := snowflake.NextKey(); err == nil {
		headers["Idempotency-Key"] = key
	}

	postErr := c.api.DoJSON(ctx, c.session, consts.MethodPost, completePath, body, nil, headers)
	if postErr != nil && pkgerrors.IsAuthTerminal(postErr) {
		return false, postErr
	}

	// 无论传输结果如何都 resync 一次，以服务端状态为准
	if err := c.FetchStatus(ctx); err != nil {
		if postErr != nil {
			return false, postErr
		}
		return false, err
	}

	fresh, _, _ := c.store.Snapshot()
	if fresh != nil && fresh.Completed {
		c.logger.Info("Onboarding completed", zap.String("role", string(fresh.Role)))
		return true, nil
	}

	if postErr != nil {
		return false, postErr
	}
	return false, nil
}

// processStepData 解析载荷中的上传字段：
// 已是 Uploaded 的字段原样透传（幂等，绝不二次上传），
// Pending 的单字段走上传管线，Pending 的数组并发上传并只保留成功项。
func (c *Controller) processStepData(ctx context.Context, data model.StepData) (model.StepData, error) {
	out := make(model.StepData, len(data))

	for key, value := range data {
		switch field := value.(type) {
		case model.UploadField:
			resolved, err := c.resolveField(ctx, field)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			out[key] = resolved

		case []model.UploadField:
			out[key] = c.resolveFieldList(ctx, key, field)

		default:
			out[key] = value
		}
	}

	return out, nil
}

func (c *Controller) resolveField(ctx context.Context, field model.UploadField) (model.UploadField, error) {
	if _, uploaded := field.URL(); uploaded {
		return field, nil
	}

	file, pending := field.Pending()
	if !pending {
		return field, fmt.Errorf("%w: empty upload field", pkgerrors.UnsupportedType)
	}

	result, err := c.pipeline.Upload(ctx, file)
	if err != nil {
		return field, err
	}
	return model.UploadedURL(result.URL), nil
}

func (c *Controller) resolveFieldList(ctx context.Context, key string, fields []model.UploadField) []model.UploadField {
	resolved := make([]model.UploadField, 0, len(fields))
	var pendingFiles []*model.File

	for _, field := range fields {
		if _, uploaded := field.URL(); uploaded {
			resolved = append(resolved, field)
			continue
		}
		if file, pending := field.Pending(); pending {
			pendingFiles = append(pendingFiles, file)
		}
	}

	if len(pendingFiles) == 0 {
		return resolved
	}

	batch := c.pipeline.UploadBatch(ctx, pendingFiles)
	for _, url := range batch.URLs {
		resolved = append(resolved, model.UploadedURL(url))
	}

	if batch.FailureCount() > 0 {
		c.logger.Warn("Some files in batch failed to upload",
			zap.String("field", key),
			zap.Int("failed", batch.FailureCount()),
			zap.Int("succeeded", len(batch.URLs)),
		)
	}

	return resolved
}
