package steps

import (
	"github.com/alikamatu/artisan-app-sub002/internal/model"
)

// 各角色的步骤名。步骤表是静态的：顺序固定，order 连续且从 0 开始。
const (
	StepBasic        model.StepName = "basic"
	StepPreferences  model.StepName = "preferences"
	StepPayment      model.StepName = "payment"
	StepProfessional model.StepName = "professional"
	StepPricing      model.StepName = "pricing"
	StepVerification model.StepName = "verification"
	StepFinancial    model.StepName = "financial"
)

var stepTables = map[model.Role][]model.StepName{
	model.RoleClient: {StepBasic, StepPreferences, StepPayment},
	model.RoleWorker: {StepBasic, StepProfessional, StepPricing, StepVerification, StepFinancial},
}

// StepIndexNone 表示尚未选择角色，没有对应的数字步骤。
const StepIndexNone = -1

// ForRole 返回角色的有序步骤表。
func ForRole(role model.Role) ([]model.StepName, bool) {
	list, ok := stepTables[role]
	return list, ok
}

// Definitions 返回角色步骤表的完整描述。
func Definitions(role model.Role) []model.StepDefinition {
	list, ok := stepTables[role]
	if !ok {
		return nil
	}
	defs := make([]model.StepDefinition, 0, len(list))
	for i, name := range list {
		defs = append(defs, model.StepDefinition{Role: role, Order: i, Name: name})
	}
	return defs
}

// CurrentStepIndex 返回第一个未完成步骤的下标；
// 全部完成时返回最后一个下标（终点展示态，区别于服务端确认的 completed）；
// 角色未选定时返回 StepIndexNone。
// 纯函数，无 I/O 无副作用。
func CurrentStepIndex(role model.Role, progress map[model.StepName]bool) int {
	list, ok := stepTables[role]
	if !ok {
		return StepIndexNone
	}
	for i, name := range list {
		if !progress[name] {
			return i
		}
	}
	return len(list) - 1
}

// IsTerminal 判断下标是否为角色步骤表的终点。
func IsTerminal(role model.Role, idx int) bool {
	list, ok := stepTables[role]
	if !ok {
		return false
	}
	return idx == len(list)-1
}

// Contains 判断步骤名是否属于角色的步骤表。
func Contains(role model.Role, name model.StepName) bool {
	list, ok := stepTables[role]
	if !ok {
		return false
	}
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// NormalizeProgress 把进度表收敛到角色步骤表的键集合：
// 缺失的步骤补 false，不属于该角色的键丢弃。
func NormalizeProgress(role model.Role, progress map[model.StepName]bool) map[model.StepName]bool {
	list, ok := stepTables[role]
	if !ok {
		return map[model.StepName]bool{}
	}
	out := make(map[model.StepName]bool, len(list))
	for _, name := range list {
		out[name] = progress[name]
	}
	return out
}
