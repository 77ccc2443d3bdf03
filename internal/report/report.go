// Package report 组装并持久化分析报告
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/record"
)

// FormatVersion 报告格式版本
const FormatVersion = "1.0.0"

// Metadata 报告元数据
type Metadata struct {
	Company     string    `json:"empresa"`
	TaxID       string    `json:"nif"`
	Period      string    `json:"periodo"`
	ProcessedAt time.Time `json:"data_processamento"`
	Version     string    `json:"versao"`
}

// AccountingValidation 会计恒等式校验结果
type AccountingValidation struct {
	Balanced    bool        `json:"equilibrada"`
	Discrepancy json.Number `json:"discrepancia"`
	Tolerance   json.Number `json:"tolerancia"`
}

// Files 生成文件的位置
type Files struct {
	Excel string `json:"excel,omitempty"`
	JSON  string `json:"json,omitempty"`
}

// Report 最终报告
type Report struct {
	Metadata   Metadata             `json:"metadata"`
	Financials record.Record        `json:"dados_financeiros"`
	Validation AccountingValidation `json:"validacao_contabilistica"`
	Analysis   analysis.Result      `json:"analise"`
	Files      Files                `json:"ficheiros_gerados"`
}

// Build 组装报告，不做额外校验
func Build(rec record.Record, result analysis.Result, files Files, now time.Time) Report {
	id := rec.Identity()
	check := rec.BalanceCheck()
	return Report{
		Metadata: Metadata{
			Company:     id.CompanyName,
			TaxID:       id.TaxID,
			Period:      id.Period,
			ProcessedAt: now,
			Version:     FormatVersion,
		},
		Financials: rec,
		Validation: AccountingValidation{
			Balanced:    check.Balanced,
			Discrepancy: record.Number(check.Discrepancy),
			Tolerance:   record.Number(check.Tolerance),
		},
		Analysis: result,
		Files:    files,
	}
}

// WriteJSON UTF-8、保留非 ASCII 字符、两空格缩进
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Marshal 返回 WriteJSON 的字节形式
func Marshal(r Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadJSON 读取报告，财务数据重新经过校验
func ReadJSON(rd io.Reader) (Report, error) {
	var r Report
	dec := json.NewDecoder(rd)
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
