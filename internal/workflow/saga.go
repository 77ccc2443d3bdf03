// Saga 补偿模式实现
// 用于工作流失败或取消时删除已生成的输出
package workflow

import (
	"github.com/autofund-ai/autofund/internal/activity"
	"go.temporal.io/sdk/workflow"
)

// CompensationStep 补偿步骤
type CompensationStep struct {
	Name string
	Fn   func(ctx workflow.Context) error
}

// SagaCompensation Saga 补偿管理器
type SagaCompensation struct {
	jobID string
	steps []CompensationStep
}

// NewSagaCompensation 创建新的 Saga 补偿管理器
func NewSagaCompensation(jobID string) *SagaCompensation {
	return &SagaCompensation{
		jobID: jobID,
		steps: make([]CompensationStep, 0),
	}
}

// AddCompensation 添加补偿步骤 (LIFO 顺序)
func (s *SagaCompensation) AddCompensation(name string, fn func(ctx workflow.Context) error) {
	// 在头部插入，确保 LIFO 顺序执行
	s.steps = append([]CompensationStep{{Name: name, Fn: fn}}, s.steps...)
}

// Execute 执行所有补偿操作，单步失败不影响后续步骤
func (s *SagaCompensation) Execute(ctx workflow.Context) {
	logger := workflow.GetLogger(ctx)

	for _, step := range s.steps {
		logger.Info("Executing compensation", "step", step.Name)

		if err := step.Fn(ctx); err != nil {
			logger.Error("Compensation failed",
				"step", step.Name,
				"error", err,
			)
			// 通知人工介入
			_ = workflow.ExecuteActivity(ctx, "NotifyCompensationFailure", activity.CompensationFailure{
				JobID: s.jobID,
				Step:  step.Name,
				Error: err.Error(),
			}).Get(ctx, nil)
		} else {
			logger.Info("Compensation completed", "step", step.Name)
		}
	}
	s.steps = s.steps[:0]
}

// Len 返回补偿步骤数量
func (s *SagaCompensation) Len() int {
	return len(s.steps)
}
