package onboarding

import (
	"context"
	"sync"

	"github.com/alikamatu/artisan-app-sub002/internal/model"
	"github.com/alikamatu/artisan-app-sub002/internal/steps"
	"github.com/alikamatu/artisan-app-sub002/pkg/metrics"
)

// LoadState 区分"还没拿到数据"、"拿过但最近一次失败"和"拿到了"。
type LoadState int

const (
	StateNotLoaded LoadState = iota
	StateFailed
	StateLoaded
)

// ProgressStore 持有最近一次从服务端取回的进度快照。
// 快照只会被成功的 Refresh 整体替换，从不做局部合并，
// 服务端永远是唯一的事实来源；失败的 Refresh 保留旧快照。
type ProgressStore struct {
	fetch func(ctx context.Context) (*model.OnboardingStatus, error)

	mu      sync.RWMutex
	state   LoadState
	status  *model.OnboardingStatus
	lastErr error
}

func NewProgressStore(fetch func(ctx context.Context) (*model.OnboardingStatus, error)) *ProgressStore {
	return &ProgressStore{fetch: fetch}
}

// Refresh 从服务端取回快照并整体替换本地缓存。
// 失败时记录错误但不清空已有快照，避免一次瞬时失败把界面打回空白。
func (s *ProgressStore) Refresh(ctx context.Context) error {
	status, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		metrics.RecordStatusRefresh(ctx, "failed")
		return err
	}

	// 进度表收敛到角色步骤表的键集合
	if status.Role.Valid() {
		status.Progress = steps.NormalizeProgress(status.Role, status.Progress)
	}

	s.state = StateLoaded
	s.status = status
	s.lastErr = nil
	metrics.RecordStatusRefresh(ctx, "ok")
	return nil
}

// Snapshot 返回当前缓存的快照副本与装载状态。
// StateFailed 时快照可能仍是上一次成功的数据。
func (s *ProgressStore) Snapshot() (*model.OnboardingStatus, LoadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Clone(), s.state, s.lastErr
}

// ActiveStepIndex 基于当前快照计算激活步骤下标。
// 没有快照或角色未选定时返回 steps.StepIndexNone。
func (s *ProgressStore) ActiveStepIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == nil {
		return steps.StepIndexNone
	}
	return steps.CurrentStepIndex(s.status.Role, s.status.Progress)
}
