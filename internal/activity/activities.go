// Activity 实现
// 封装 IES 分析各阶段，具体逻辑由 pipeline.Runner 完成
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/autofund-ai/autofund/internal/document"
	"github.com/autofund-ai/autofund/internal/pipeline"
	"github.com/autofund-ai/autofund/internal/record"
	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/jsonx"
	"github.com/autofund-ai/autofund/pkg/logging"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// Activities 包含所有 Activity 的依赖
type Activities struct {
	logger    *zap.Logger
	runner    *pipeline.Runner
	resources *pipeline.Resources
}

// NewActivities 创建 Activities 实例
func NewActivities(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Activities, error) {
	res, err := pipeline.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	a := NewActivitiesWithRunner(res.Runner, logger)
	a.resources = res
	return a, nil
}

// NewActivitiesWithRunner 使用现成的 Runner 创建 Activities
func NewActivitiesWithRunner(runner *pipeline.Runner, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		logger: logger.With(zap.String("component", "activity")),
		runner: runner,
	}
}

// Close 关闭资源
func (a *Activities) Close() error {
	if a.resources != nil {
		return a.resources.Close()
	}
	return nil
}

// ExtractActivity 读取上传的 PDF 并抽取原始数据
func (a *Activities) ExtractActivity(ctx context.Context, input ExtractInput) (result *ExtractResult, err error) {
	logger := a.logger.With(zap.String("activity", "Extract"), zap.String("job_id", input.JobID))
	defer observe("Extract", time.Now(), &err)

	doc, err := os.ReadFile(input.DocumentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: uploaded document missing: %v", apperrors.ErrInvalidDocument, err)
		}
		return nil, applicationError(err)
	}

	stop := keepAlive(ctx, "Extracting financial data...")
	raw, err := a.runner.Extract(ctx, doc)
	stop()
	if err != nil {
		logger.Error("Extraction failed", zap.Error(err))
		return nil, applicationError(err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, applicationError(fmt.Errorf("%w: encode extraction: %v", apperrors.ErrExtractionFailed, err))
	}

	logger.Info("Extraction completed", zap.Int("fields", len(raw)))
	return &ExtractResult{
		JobID:       input.JobID,
		Fingerprint: document.Fingerprint(doc),
		Raw:         data,
	}, nil
}

// AnalyzeActivity 校验数据并生成分析
func (a *Activities) AnalyzeActivity(ctx context.Context, input AnalyzeInput) (result *AnalyzeResult, err error) {
	logger := a.logger.With(zap.String("activity", "Analyze"), zap.String("job_id", input.JobID))
	defer observe("Analyze", time.Now(), &err)

	raw, err := jsonx.DecodeObject(input.Raw)
	if err != nil {
		return nil, applicationError(fmt.Errorf("%w: %v", apperrors.ErrMalformedResponse, err))
	}

	stop := keepAlive(ctx, "Analyzing financial data...")
	rec, res, err := a.runner.Analyze(ctx, raw, input.CompanyContext)
	stop()
	if err != nil {
		logger.Warn("Analysis failed", zap.Error(err))
		return nil, applicationError(err)
	}

	logger.Info("Analysis completed",
		logging.NIF(rec.Identity().TaxID),
		zap.String("risk_level", string(res.Risk())))
	return &AnalyzeResult{Record: rec, Analysis: res}, nil
}

// WriteOutputsActivity 写入电子表格与 JSON 报告
func (a *Activities) WriteOutputsActivity(ctx context.Context, input WriteOutputsInput) (result *WriteOutputsResult, err error) {
	defer observe("WriteOutputs", time.Now(), &err)

	stop := keepAlive(ctx, "Writing outputs...")
	rep, err := a.runner.WriteOutputsAt(ctx, input.Record, input.Analysis, input.ProcessedAt)
	stop()
	if err != nil {
		a.logger.Error("Writing outputs failed", zap.String("job_id", input.JobID), zap.Error(err))
		return nil, applicationError(err)
	}

	return &WriteOutputsResult{
		Files:     rep.Files,
		RiskLevel: string(rep.Analysis.Risk()),
		Balanced:  rep.Validation.Balanced,
	}, nil
}

// CleanupOutputsActivity 补偿：删除某次运行生成的文件
func (a *Activities) CleanupOutputsActivity(ctx context.Context, input CleanupInput) (err error) {
	defer observe("CleanupOutputs", time.Now(), &err)

	removed, err := a.runner.CleanupRun(input.TaxID, input.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to remove outputs: %w", err)
	}
	a.logger.Info("Outputs compensated", zap.String("job_id", input.JobID), zap.Int("removed", removed))
	return nil
}

// NotifyCompensationFailure 补偿失败通知，需要人工处理
func (a *Activities) NotifyCompensationFailure(ctx context.Context, input CompensationFailure) error {
	a.logger.Error("Compensation failed, manual cleanup required",
		zap.String("job_id", input.JobID),
		zap.String("step", input.Step),
		zap.String("error", input.Error),
		zap.String("output_dir", a.runner.OutputDir()))
	metrics.ErrorsTotal.WithLabelValues(apperrors.L2Intervention.String(), "COMPENSATION_FAILED").Inc()
	return nil
}

// 未配置 HeartbeatTimeout 时的心跳间隔
const defaultHeartbeatInterval = 10 * time.Second

// keepAlive 在模型调用期间按 HeartbeatTimeout 的三分之一定期发送心跳，返回的函数停止心跳
func keepAlive(ctx context.Context, details string) func() {
	interval := defaultHeartbeatInterval
	if timeout := activity.GetInfo(ctx).HeartbeatTimeout; timeout > 0 {
		interval = timeout / 3
	}

	activity.RecordHeartbeat(ctx, details)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, details)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func observe(name string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "failed"
	}
	metrics.ActivityDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
}

// applicationError 将错误转换为 Temporal ApplicationError，类型名与重试策略对应
func applicationError(err error) error {
	classified := apperrors.ClassifyError(err)
	metrics.ErrorsTotal.WithLabelValues(classified.Level.String(), classified.Code).Inc()

	var details []interface{}
	var verr *record.ValidationError
	if errors.As(err, &verr) {
		details = append(details, verr.Violations)
	}

	if !classified.Retryable {
		return temporal.NewNonRetryableApplicationError(err.Error(), classified.TemporalType(), err, details...)
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), classified.TemporalType(), err, details...)
}
