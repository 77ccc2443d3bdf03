package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autofund-ai/autofund/internal/workflow"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// WorkflowIDPrefix 工作流 ID 前缀，后接任务 ID
const WorkflowIDPrefix = "ies-"

// TemporalJobs 以 Temporal 工作流执行任务
type TemporalJobs struct {
	client    client.Client
	taskQueue string
	logger    *zap.Logger
}

// NewTemporalJobs 创建 Temporal 执行器
func NewTemporalJobs(c client.Client, taskQueue string, logger *zap.Logger) *TemporalJobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemporalJobs{client: c, taskQueue: taskQueue, logger: logger.With(zap.String("component", "temporal_jobs"))}
}

// Submit 启动工作流
func (t *TemporalJobs) Submit(ctx context.Context, job Job) error {
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowIDPrefix + job.ID,
		TaskQueue: t.taskQueue,
	}, workflow.IESAnalysisWorkflow, workflow.WorkflowInput{
		JobID:          job.ID,
		DocumentPath:   job.DocumentPath,
		CompanyContext: job.CompanyContext,
	})
	if err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}
	t.logger.Info("Workflow started",
		zap.String("job_id", job.ID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()))
	return nil
}

// Status 通过 Describe 与 progress 查询组合任务状态
func (t *TemporalJobs) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	workflowID := WorkflowIDPrefix + jobID
	desc, err := t.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("describe workflow: %w", err)
	}

	info := desc.GetWorkflowExecutionInfo()
	status := &JobStatus{JobID: jobID, State: stateFor(info.GetStatus()), UpdatedAt: time.Now()}
	if ct := info.GetCloseTime(); ct != nil {
		status.UpdatedAt = ct.AsTime()
	}

	if p, err := t.progress(ctx, workflowID); err == nil {
		status.Stage = p.Stage
		status.Progress = p.Progress
		status.CompletedSteps = p.CompletedSteps
		status.Error = p.Error
	} else {
		t.logger.Debug("Progress query failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}

	switch status.State {
	case JobCompleted:
		var out workflow.WorkflowOutput
		if err := t.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &out); err != nil {
			return nil, fmt.Errorf("get workflow result: %w", err)
		}
		status.Result = &out
		status.Progress = 100
	case JobFailed, JobCanceled:
		if status.Error == "" {
			if err := t.client.GetWorkflow(ctx, workflowID, "").Get(ctx, nil); err != nil {
				status.Error = err.Error()
			}
		}
	}
	return status, nil
}

func (t *TemporalJobs) progress(ctx context.Context, workflowID string) (workflow.ProgressInfo, error) {
	var p workflow.ProgressInfo
	val, err := t.client.QueryWorkflow(ctx, workflowID, "", workflow.ProgressQuery)
	if err != nil {
		return p, err
	}
	err = val.Get(&p)
	return p, err
}

func stateFor(s enumspb.WorkflowExecutionStatus) JobState {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return JobProcessing
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return JobCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return JobCanceled
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return JobFailed
	default:
		return JobQueued
	}
}
