// Activity 类型定义
package activity

import (
	"encoding/json"
	"time"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/record"
	"github.com/autofund-ai/autofund/internal/report"
)

// ExtractInput 抽取输入，文档以路径传递，避免大文件进入工作流历史
type ExtractInput struct {
	JobID        string `json:"job_id"`
	DocumentPath string `json:"document_path"`
}

// ExtractResult 抽取结果，Raw 保留模型返回的原始数值文本
type ExtractResult struct {
	JobID       string          `json:"job_id"`
	Fingerprint string          `json:"fingerprint"`
	Raw         json.RawMessage `json:"raw"`
}

// AnalyzeInput 分析输入
type AnalyzeInput struct {
	JobID          string          `json:"job_id"`
	Raw            json.RawMessage `json:"raw"`
	CompanyContext string          `json:"company_context,omitempty"`
}

// AnalyzeResult 分析结果
type AnalyzeResult struct {
	Record   record.Record   `json:"record"`
	Analysis analysis.Result `json:"analysis"`
}

// WriteOutputsInput 输出输入，ProcessedAt 由工作流确定，补偿时据此定位文件
type WriteOutputsInput struct {
	JobID       string          `json:"job_id"`
	Record      record.Record   `json:"record"`
	Analysis    analysis.Result `json:"analysis"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// WriteOutputsResult 输出结果
type WriteOutputsResult struct {
	Files     report.Files `json:"files"`
	RiskLevel string       `json:"risk_level"`
	Balanced  bool         `json:"accounting_balanced"`
}

// CleanupInput 清理某次运行生成的文件
type CleanupInput struct {
	JobID       string    `json:"job_id"`
	TaxID       string    `json:"tax_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CompensationFailure 补偿失败通知
type CompensationFailure struct {
	JobID string `json:"job_id"`
	Step  string `json:"step"`
	Error string `json:"error"`
}
