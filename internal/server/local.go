package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/autofund-ai/autofund/internal/pipeline"
	"github.com/autofund-ai/autofund/internal/workflow"
	"github.com/autofund-ai/autofund/pkg/logging"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"go.uber.org/zap"
)

// LocalJobs 在进程内执行分析，无需 Temporal
type LocalJobs struct {
	runner *pipeline.Runner
	store  JobStore
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}
	wg     sync.WaitGroup
}

// NewLocalJobs 创建本地执行器，maxConcurrent 限制同时运行的任务数
func NewLocalJobs(runner *pipeline.Runner, store JobStore, maxConcurrent int, logger *zap.Logger) *LocalJobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalJobs{
		runner: runner,
		store:  store,
		logger: logger.With(zap.String("component", "local_jobs")),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		slots:  make(chan struct{}, maxConcurrent),
	}
}

// Submit 记录任务并在后台执行
func (l *LocalJobs) Submit(ctx context.Context, job Job) error {
	status := &JobStatus{JobID: job.ID, State: JobQueued, Stage: workflow.StageQueued, UpdatedAt: l.now()}
	if err := l.store.Save(ctx, status); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(job, status)
	}()
	return nil
}

// Status 查询任务状态
func (l *LocalJobs) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	return l.store.Load(ctx, jobID)
}

// Close 取消未完成的任务并等待退出
func (l *LocalJobs) Close() {
	l.cancel()
	l.wg.Wait()
}

// Wait 等待所有任务结束
func (l *LocalJobs) Wait() {
	l.wg.Wait()
}

func (l *LocalJobs) run(job Job, status *JobStatus) {
	logger := l.logger.With(zap.String("job_id", job.ID))

	select {
	case l.slots <- struct{}{}:
		defer func() { <-l.slots }()
	case <-l.ctx.Done():
		l.finish(status, JobCanceled, l.ctx.Err())
		return
	}

	metrics.ActiveWorkflows.Inc()
	defer metrics.ActiveWorkflows.Dec()
	startTime := time.Now()
	ctx := l.ctx

	advance := func(stage string) {
		status.State = JobProcessing
		status.Stage = stage
		l.save(status)
	}
	complete := func(step string) {
		status.CompletedSteps = append(status.CompletedSteps, step)
		status.Progress = float64(len(status.CompletedSteps)) / 3 * 100
	}
	fail := func(err error) {
		state := JobFailed
		if errors.Is(err, context.Canceled) {
			state = JobCanceled
		}
		logger.Warn("Job failed", zap.Error(err))
		metrics.WorkflowDuration.WithLabelValues("local", string(state)).Observe(time.Since(startTime).Seconds())
		l.finish(status, state, err)
	}

	doc, err := os.ReadFile(job.DocumentPath)
	if err != nil {
		fail(err)
		return
	}

	advance(workflow.StageExtracting)
	raw, err := l.runner.Extract(ctx, doc)
	if err != nil {
		fail(err)
		return
	}
	complete(workflow.StepExtract)

	advance(workflow.StageAnalyzing)
	rec, res, err := l.runner.Analyze(ctx, raw, job.CompanyContext)
	if err != nil {
		fail(err)
		return
	}
	complete(workflow.StepAnalyze)

	advance(workflow.StageWriting)
	rep, err := l.runner.WriteOutputs(ctx, rec, res)
	if err != nil {
		fail(err)
		return
	}
	complete(workflow.StepWrite)

	id := rec.Identity()
	status.Result = &workflow.WorkflowOutput{
		JobID:       job.ID,
		Company:     id.CompanyName,
		TaxID:       id.TaxID,
		Period:      id.Period,
		RiskLevel:   string(res.Risk()),
		Balanced:    rec.AccountingBalanced(),
		Files:       rep.Files,
		CompletedAt: l.now(),
	}
	status.Stage = workflow.StageCompleted
	metrics.WorkflowDuration.WithLabelValues("local", "completed").Observe(time.Since(startTime).Seconds())
	logger.Info("Job completed", logging.NIF(id.TaxID), zap.String("risk_level", string(res.Risk())))
	l.finish(status, JobCompleted, nil)
}

func (l *LocalJobs) finish(status *JobStatus, state JobState, err error) {
	status.State = state
	if err != nil {
		status.Stage = workflow.StageFailed
		status.Error = err.Error()
	}
	l.save(status)
}

func (l *LocalJobs) save(status *JobStatus) {
	status.UpdatedAt = l.now()
	// 任务上下文可能已取消，状态仍需落盘
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, status); err != nil {
		l.logger.Error("Failed to save job status", zap.String("job_id", status.JobID), zap.Error(err))
	}
}
