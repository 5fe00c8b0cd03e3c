package model

// Role 表示入驻流程的角色，决定步骤序列。
type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
)

// Valid 判断角色是否已选定且可识别。
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleWorker
}

// StepName 表示某个角色下的一个引导步骤。
type StepName string

// StepDefinition 描述角色步骤表中的一项，order 从 0 开始且连续。
type StepDefinition struct {
	Role  Role     `json:"role"`
	Order int      `json:"order"`
	Name  StepName `json:"name"`
}

// OnboardingStatus 是服务端持有的引导进度快照。
// 客户端从不在本地修改它，只在成功的 resync 后整体替换。
type OnboardingStatus struct {
	Completed bool              `json:"completed"`
	Role      Role              `json:"role"`
	Progress  map[StepName]bool `json:"progress"`
	NextStep  StepName          `json:"next_step"`
}

// Clone 返回深拷贝，避免调用方改动缓存的快照。
func (s *OnboardingStatus) Clone() *OnboardingStatus {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Progress = make(map[StepName]bool, len(s.Progress))
	for k, v := range s.Progress {
		cp.Progress[k] = v
	}
	return &cp
}

// StepData 是一个步骤的表单载荷。
// 值可以是普通 JSON 值、UploadField 或 []UploadField，
// 提交前由 processStepData 把所有上传字段解析成稳定 URL。
type StepData map[string]interface{}

// StepEnvelope 是兜底端点 PUT /onboarding/step 的请求体。
type StepEnvelope struct {
	Role Role     `json:"role"`
	Step StepName `json:"step"`
	Data StepData `json:"data"`
}
