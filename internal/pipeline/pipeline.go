// Package pipeline 串联抽取、分析与输出，供 CLI 与 Temporal Activity 共用
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/extract"
	"github.com/autofund-ai/autofund/internal/record"
	"github.com/autofund-ai/autofund/internal/report"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/logging"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"github.com/autofund-ai/autofund/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SpreadsheetWriter 电子表格输出，*spreadsheet.Writer 实现该接口
type SpreadsheetWriter interface {
	Write(path string, rec record.Record, res analysis.Result) error
}

// forgetter 可以丢弃缓存抽取结果的抽取器
type forgetter interface {
	Forget(ctx context.Context, doc []byte) error
}

// Runner 单次运行之间不共享可变状态
type Runner struct {
	extractor extract.Extractor
	assembler *analysis.Assembler
	sheets    SpreadsheetWriter
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

// Option Runner 选项
type Option func(*Runner)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner 创建 Runner
func NewRunner(extractor extract.Extractor, assembler *analysis.Assembler, sheets SpreadsheetWriter, outputDir string, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		extractor: extractor,
		assembler: assembler,
		sheets:    sheets,
		outputDir: outputDir,
		logger:    logger.With(zap.String("component", "pipeline")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract 抽取原始数据映射；抽取结果无法通过校验时丢弃其缓存
func (r *Runner) Extract(ctx context.Context, doc []byte) (map[string]interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.extract")
	defer span.End()
	tracing.SetAttributes(ctx, attribute.Int("document.bytes", len(doc)))

	raw, err := r.extractor.Extract(ctx, doc)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	if f, ok := r.extractor.(forgetter); ok {
		if _, verr := record.New(raw); verr != nil {
			if err := f.Forget(ctx, doc); err != nil {
				r.logger.Warn("Failed to drop cached extraction", zap.Error(err))
			}
		}
	}
	return raw, nil
}

// Analyze 校验数据并生成分析结果；ctx 取消后返回错误
func (r *Runner) Analyze(ctx context.Context, raw map[string]interface{}, companyContext string) (record.Record, analysis.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.analyze")
	defer span.End()

	rec, err := record.New(raw, record.WithLogger(r.logger))
	if err != nil {
		var verr *record.ValidationError
		if errors.As(err, &verr) {
			for _, field := range verr.Fields() {
				metrics.ValidationFailures.WithLabelValues(field).Inc()
			}
			r.logger.Warn("Extracted data failed validation",
				zap.Strings("fields", verr.Fields()),
				zap.Int("violations", len(verr.Violations)))
		}
		tracing.RecordError(ctx, err)
		return record.Record{}, analysis.Result{}, err
	}

	if rec.AccountingBalanced() {
		metrics.BalanceChecks.WithLabelValues("balanced").Inc()
	} else {
		metrics.BalanceChecks.WithLabelValues("unbalanced").Inc()
	}

	ratios := analysis.ComputeRatios(rec)
	risk := analysis.Classify(ratios)
	tracing.SetAttributes(ctx,
		attribute.String("analysis.risk_level", string(risk)),
		attribute.Bool("analysis.balanced", rec.AccountingBalanced()))

	res := r.assembler.Assemble(ctx, rec, ratios, risk, companyContext)
	if err := ctx.Err(); err != nil {
		return record.Record{}, analysis.Result{}, fmt.Errorf("analysis canceled: %w", err)
	}
	return rec, res, nil
}

// WriteOutputs 写入电子表格与 JSON 报告；任一步失败时删除本次已写文件
func (r *Runner) WriteOutputs(ctx context.Context, rec record.Record, res analysis.Result) (report.Report, error) {
	return r.WriteOutputsAt(ctx, rec, res, r.now())
}

// WriteOutputsAt 与 WriteOutputs 相同，文件名与报告时间戳取 now
func (r *Runner) WriteOutputsAt(ctx context.Context, rec record.Record, res analysis.Result, now time.Time) (rep report.Report, err error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.write")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return report.Report{}, fmt.Errorf("write canceled: %w", err)
	}

	taxID := rec.Identity().TaxID
	var files report.Files
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
			if cerr := Cleanup(files); cerr != nil {
				r.logger.Error("Failed to remove partial outputs", zap.Error(cerr))
			}
			err = fmt.Errorf("%w: %w", apperrors.ErrOutputFailed, err)
		}
	}()

	excelPath, err := report.Reserve(r.outputDir, report.FileName(report.ExcelPrefix, taxID, now, "xlsx"))
	if err != nil {
		return report.Report{}, err
	}
	files.Excel = excelPath
	if err := r.sheets.Write(excelPath, rec, res); err != nil {
		return report.Report{}, err
	}

	jsonPath, err := report.Reserve(r.outputDir, report.FileName(report.JSONPrefix, taxID, now, "json"))
	if err != nil {
		return report.Report{}, err
	}
	files.JSON = jsonPath

	rep = report.Build(rec, res, files, now)
	if err := report.SaveJSON(jsonPath, rep); err != nil {
		return report.Report{}, err
	}

	r.logger.Info("Outputs written",
		logging.NIF(taxID),
		zap.String("excel", filepath.Base(files.Excel)),
		zap.String("json", filepath.Base(files.JSON)))
	return rep, nil
}

// Run 完整执行一次分析
func (r *Runner) Run(ctx context.Context, doc []byte, companyContext string) (report.Report, error) {
	startTime := time.Now()
	status := "failed"
	defer func() {
		metrics.WorkflowDuration.WithLabelValues("pipeline", status).Observe(time.Since(startTime).Seconds())
	}()

	raw, err := r.Extract(ctx, doc)
	if err != nil {
		return report.Report{}, err
	}
	rec, res, err := r.Analyze(ctx, raw, companyContext)
	if err != nil {
		return report.Report{}, err
	}
	rep, err := r.WriteOutputs(ctx, rec, res)
	if err != nil {
		return report.Report{}, err
	}
	status = "completed"
	return rep, nil
}

// OutputDir 输出目录
func (r *Runner) OutputDir() string { return r.outputDir }

// CleanupRun 删除某次运行 (税号 + 时间戳) 生成的全部输出文件，返回删除的文件数
func (r *Runner) CleanupRun(taxID string, at time.Time) (int, error) {
	var paths []string
	for _, kind := range []struct{ prefix, ext string }{
		{report.ExcelPrefix, "xlsx"},
		{report.JSONPrefix, "json"},
	} {
		matches, err := report.Matches(r.outputDir, kind.prefix, taxID, at, kind.ext)
		if err != nil {
			return 0, err
		}
		paths = append(paths, matches...)
	}

	var errs []error
	removed := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("Removed run outputs", logging.NIF(taxID), zap.Int("files", removed))
	}
	return removed, errors.Join(errs...)
}

// Cleanup 删除生成的文件，文件不存在不视为错误
func Cleanup(files report.Files) error {
	var errs []error
	for _, path := range []string{files.Excel, files.JSON} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
