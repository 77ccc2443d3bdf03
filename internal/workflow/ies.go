// IES 分析主工作流
// 抽取 → 分析 → 输出，输出阶段失败或取消时删除已生成的文件
package workflow

import (
	"fmt"
	"time"

	"github.com/autofund-ai/autofund/internal/activity"
	"github.com/autofund-ai/autofund/internal/report"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ProgressQuery 进度查询名
const ProgressQuery = "progress"

// 工作流阶段
const (
	StageQueued     = "queued"
	StageExtracting = "extracting"
	StageAnalyzing  = "analyzing"
	StageWriting    = "writing"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

// 步骤名，完成后写入 ProgressInfo.CompletedSteps
const (
	StepExtract = "extract"
	StepAnalyze = "analyze"
	StepWrite   = "write_outputs"
)

var steps = []string{StepExtract, StepAnalyze, StepWrite}

// WorkflowInput 工作流输入
type WorkflowInput struct {
	JobID          string `json:"job_id"`
	DocumentPath   string `json:"document_path"`
	CompanyContext string `json:"company_context,omitempty"`
}

// WorkflowOutput 工作流输出
type WorkflowOutput struct {
	JobID       string       `json:"job_id"`
	Company     string       `json:"company"`
	TaxID       string       `json:"tax_id"`
	Period      string       `json:"period"`
	RiskLevel   string       `json:"risk_level"`
	Balanced    bool         `json:"accounting_balanced"`
	Files       report.Files `json:"files"`
	CompletedAt time.Time    `json:"completed_at"`
}

// ProgressInfo 进度信息 (用于 Query)
type ProgressInfo struct {
	Stage          string   `json:"stage"`
	CompletedSteps []string `json:"completed_steps"`
	TotalSteps     int      `json:"total_steps"`
	Progress       float64  `json:"progress"`
	Error          string   `json:"error,omitempty"`
}

// heartbeatTimeout 活动心跳超时，取消请求经由心跳送达活动
var heartbeatTimeout = 30 * time.Second

func retryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        5 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        1 * time.Minute,
		MaximumAttempts:        5,
		NonRetryableErrorTypes: []string{apperrors.TypeFatalError, apperrors.TypeValidationError},
	}
}

// IESAnalysisWorkflow 单份 IES 文档的分析工作流
func IESAnalysisWorkflow(ctx workflow.Context, input WorkflowInput) (*WorkflowOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting IES analysis workflow", "job_id", input.JobID)

	saga := NewSagaCompensation(input.JobID)

	stage := StageQueued
	completedSteps := make([]string, 0, len(steps))
	var failure string

	// 注册 Query Handler
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (ProgressInfo, error) {
		return ProgressInfo{
			Stage:          stage,
			CompletedSteps: append([]string(nil), completedSteps...),
			TotalSteps:     len(steps),
			Progress:       float64(len(completedSteps)) / float64(len(steps)) * 100,
			Error:          failure,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set query handler: %w", err)
	}

	fail := func(err error) (*WorkflowOutput, error) {
		stage = StageFailed
		failure = err.Error()
		logger.Error("IES analysis workflow failed", "job_id", input.JobID, "error", err)
		return nil, err
	}

	// 抽取调用 LLM，单次最长 10 分钟
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy:         retryPolicy(),
	})

	// ============== Step 1: 抽取 ==============
	stage = StageExtracting
	var extracted activity.ExtractResult
	if err := workflow.ExecuteActivity(ctx, "ExtractActivity", activity.ExtractInput{
		JobID:        input.JobID,
		DocumentPath: input.DocumentPath,
	}).Get(ctx, &extracted); err != nil {
		return fail(err)
	}
	completedSteps = append(completedSteps, StepExtract)

	// ============== Step 2: 校验与分析 ==============
	stage = StageAnalyzing
	var analyzed activity.AnalyzeResult
	if err := workflow.ExecuteActivity(ctx, "AnalyzeActivity", activity.AnalyzeInput{
		JobID:          input.JobID,
		Raw:            extracted.Raw,
		CompanyContext: input.CompanyContext,
	}).Get(ctx, &analyzed); err != nil {
		return fail(err)
	}
	completedSteps = append(completedSteps, StepAnalyze)

	// ============== Step 3: 输出 ==============
	stage = StageWriting
	identity := analyzed.Record.Identity()
	processedAt := workflow.Now(ctx).UTC().Truncate(time.Second)

	saga.AddCompensation("outputs", func(ctx workflow.Context) error {
		return workflow.ExecuteActivity(ctx, "CleanupOutputsActivity", activity.CleanupInput{
			JobID:       input.JobID,
			TaxID:       identity.TaxID,
			ProcessedAt: processedAt,
		}).Get(ctx, nil)
	})

	// 取消时等待写入结束再补偿，避免补偿先于写入完成
	writeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    heartbeatTimeout,
		WaitForCancellation: true,
		RetryPolicy:         retryPolicy(),
	})
	var written activity.WriteOutputsResult
	if err := workflow.ExecuteActivity(writeCtx, "WriteOutputsActivity", activity.WriteOutputsInput{
		JobID:       input.JobID,
		Record:      analyzed.Record,
		Analysis:    analyzed.Analysis,
		ProcessedAt: processedAt,
	}).Get(writeCtx, &written); err != nil {
		compensate(ctx, saga)
		return fail(err)
	}
	completedSteps = append(completedSteps, StepWrite)
	stage = StageCompleted

	logger.Info("IES analysis workflow completed",
		"job_id", input.JobID,
		"risk_level", written.RiskLevel,
		"balanced", written.Balanced)

	return &WorkflowOutput{
		JobID:       input.JobID,
		Company:     identity.CompanyName,
		TaxID:       identity.TaxID,
		Period:      identity.Period,
		RiskLevel:   written.RiskLevel,
		Balanced:    written.Balanced,
		Files:       written.Files,
		CompletedAt: workflow.Now(ctx),
	}, nil
}

// compensate 在与工作流取消解耦的上下文中执行补偿
func compensate(ctx workflow.Context, saga *SagaCompensation) {
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})
	saga.Execute(dctx)
}
