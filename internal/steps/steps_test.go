package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alikamatu/artisan-app-sub002/internal/model"
)

func TestCurrentStepIndexFirstIncomplete(t *testing.T) {
	progress := map[model.StepName]bool{
		StepBasic:        true,
		StepProfessional: false,
		StepPricing:      false,
		StepVerification: false,
		StepFinancial:    false,
	}

	assert.Equal(t, 1, CurrentStepIndex(model.RoleWorker, progress))
}

func TestCurrentStepIndexMatchesFirstFalse(t *testing.T) {
	for _, role := range []model.Role{model.RoleClient, model.RoleWorker} {
		list, ok := ForRole(role)
		require.True(t, ok)

		// 对每个 "前 k 个完成" 的进度表，激活下标都应该是 k
		for k := 0; k < len(list); k++ {
			progress := map[model.StepName]bool{}
			for i := 0; i < k; i++ {
				progress[list[i]] = true
			}
			assert.Equal(t, k, CurrentStepIndex(role, progress), "role=%s k=%d", role, k)
		}
	}
}

func TestCurrentStepIndexAllDoneStaysAtTerminal(t *testing.T) {
	progress := map[model.StepName]bool{
		StepBasic:       true,
		StepPreferences: true,
		StepPayment:     true,
	}

	idx := CurrentStepIndex(model.RoleClient, progress)
	assert.Equal(t, 2, idx)
	assert.True(t, IsTerminal(model.RoleClient, idx))
}

func TestCurrentStepIndexNoRole(t *testing.T) {
	assert.Equal(t, StepIndexNone, CurrentStepIndex(model.Role(""), nil))
	assert.Equal(t, StepIndexNone, CurrentStepIndex(model.Role("admin"), map[model.StepName]bool{StepBasic: true}))
}

func TestCurrentStepIndexMissingKeysCountAsIncomplete(t *testing.T) {
	// 进度表里缺的键按未完成处理
	assert.Equal(t, 0, CurrentStepIndex(model.RoleWorker, map[model.StepName]bool{}))
	assert.Equal(t, 0, CurrentStepIndex(model.RoleWorker, nil))
}

func TestDefinitionsContiguousZeroBased(t *testing.T) {
	for _, role := range []model.Role{model.RoleClient, model.RoleWorker} {
		defs := Definitions(role)
		require.NotEmpty(t, defs)

		seen := map[model.StepName]bool{}
		for i, def := range defs {
			assert.Equal(t, i, def.Order)
			assert.Equal(t, role, def.Role)
			assert.False(t, seen[def.Name], "duplicate step %s", def.Name)
			seen[def.Name] = true
		}
	}

	assert.Len(t, Definitions(model.RoleClient), 3)
	assert.Len(t, Definitions(model.RoleWorker), 5)
	assert.Nil(t, Definitions(model.Role("")))
}

func TestNormalizeProgress(t *testing.T) {
	normalized := NormalizeProgress(model.RoleClient, map[model.StepName]bool{
		StepBasic:        true,
		StepVerification: true, // 不属于 client，应被丢弃
	})

	assert.Equal(t, map[model.StepName]bool{
		StepBasic:       true,
		StepPreferences: false,
		StepPayment:     false,
	}, normalized)
}

func TestContains(t *testing.T) {
	assert.True(t, Contains(model.RoleWorker, StepFinancial))
	assert.False(t, Contains(model.RoleClient, StepFinancial))
	assert.False(t, Contains(model.Role(""), StepBasic))
}
