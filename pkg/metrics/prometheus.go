// Prometheus 指标定义
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowDuration 工作流执行时长
	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autofund_workflow_duration_seconds",
			Help:    "Workflow execution duration",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"workflow_type", "status"},
	)

	// ActivityDuration 活动执行时长
	ActivityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autofund_activity_duration_seconds",
			Help:    "Activity execution duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"activity_name", "status"},
	)

	// LLMTokenUsage Token 使用量
	LLMTokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_llm_token_usage_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: prompt/completion
	)

	// LLMLatency LLM 调用延迟
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autofund_llm_latency_seconds",
			Help:    "LLM inference latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model", "status"},
	)

	// CacheOperations 缓存命中情况
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_cache_operations_total",
			Help: "Cache operations count",
		},
		[]string{"operation", "result"}, // result: hit/miss/error
	)

	// ErrorsTotal 错误计数
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_errors_total",
			Help: "Total errors by level and code",
		},
		[]string{"level", "code"},
	)

	// ActiveWorkflows 活跃工作流数
	ActiveWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autofund_active_workflows",
			Help: "Number of currently active workflows",
		},
	)

	// AnalysesTotal 完成的分析，按风险等级与叙述来源
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_analyses_total",
			Help: "Completed analyses by risk level and narrative source",
		},
		[]string{"risk_level", "source"}, // source: model/fallback
	)

	// NarrativeFallbacks 叙述降级原因
	NarrativeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_narrative_fallbacks_total",
			Help: "Narrative generations that fell back to rule-based text",
		},
		[]string{"reason"},
	)

	// ValidationFailures 记录构建失败，按字段
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_validation_failures_total",
			Help: "Financial record violations by field",
		},
		[]string{"field"},
	)

	// BalanceChecks 资产负债表平衡校验结果
	BalanceChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_balance_checks_total",
			Help: "Balance sheet consistency checks",
		},
		[]string{"result"}, // result: balanced/unbalanced
	)

	// UploadsTotal API 上传计数
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autofund_uploads_total",
			Help: "IES documents received through the API",
		},
		[]string{"status"},
	)
)
