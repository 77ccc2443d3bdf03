// Package spreadsheet 将分析结果写入 Portugal 2030 申请表模板
package spreadsheet

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/record"
	"github.com/autofund-ai/autofund/pkg/logging"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// 颜色编码
const (
	ColorRed    = "FF0000"
	ColorYellow = "FFFF00"
	ColorGreen  = "00FF00"
)

var (
	redBelow    = decimal.RequireFromString("0.2")
	yellowBelow = decimal.RequireFromString("0.3")
)

// excelize 内置数字格式
const (
	numFmtCurrency = 4  // #,##0.00
	numFmtDecimal  = 2  // 0.00
	numFmtPercent  = 10 // 0.00%
)

// ColorForRatio 比率单元格颜色
func ColorForRatio(v decimal.Decimal) string {
	switch {
	case v.LessThan(redBelow):
		return ColorRed
	case v.LessThan(yellowBelow):
		return ColorYellow
	default:
		return ColorGreen
	}
}

// ColorForRisk 风险单元格颜色
func ColorForRisk(level analysis.RiskLevel) string {
	switch level {
	case analysis.RiskCritical:
		return ColorRed
	case analysis.RiskHigh:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// Writer 电子表格输出适配器
type Writer struct {
	templatePath string
	layout       Layout
	logger       *zap.Logger
}

// NewWriter 创建写入器，未知模板版本返回错误
func NewWriter(templatePath, version string, logger *zap.Logger) (*Writer, error) {
	layout, err := LayoutFor(version)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		templatePath: templatePath,
		layout:       layout,
		logger:       logger.With(zap.String("component", "spreadsheet")),
	}, nil
}

// Write 填充模板并保存到 path
func (w *Writer) Write(path string, rec record.Record, res analysis.Result) error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := w.fill(f, rec, res); err != nil {
		return fmt.Errorf("fill spreadsheet: %w", err)
	}
	if err := writeSummary(f, rec, res); err != nil {
		return fmt.Errorf("write summary sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(w.layout.Sheet); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save spreadsheet: %w", err)
	}

	w.logger.Info("Spreadsheet written",
		zap.String("path", path),
		logging.NIF(rec.Identity().TaxID))
	return nil
}

func (w *Writer) open() (*excelize.File, error) {
	if w.templatePath != "" {
		f, err := excelize.OpenFile(w.templatePath)
		if err == nil {
			if idx, _ := f.GetSheetIndex(w.layout.Sheet); idx < 0 {
				f.Close()
				return nil, fmt.Errorf("template %s has no sheet %q", w.templatePath, w.layout.Sheet)
			}
			return f, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open template: %w", err)
		}
		w.logger.Warn("Template not found, using built-in layout", zap.String("path", w.templatePath))
	}
	return NewTemplate()
}

func (w *Writer) fill(f *excelize.File, rec record.Record, res analysis.Result) error {
	sheet := w.layout.Sheet
	id := rec.Identity()
	income := rec.Income()
	balance := rec.Balance()
	ratios := res.Ratios()
	cells := w.layout.Indicators

	texts := []struct{ cell, value string }{
		{w.layout.Identity.CompanyName, id.CompanyName},
		{w.layout.Identity.TaxID, id.TaxID},
		{w.layout.Identity.Period, id.Period},
		{w.layout.Identity.SectorCode, id.SectorCode},
	}
	for _, t := range texts {
		if err := f.SetCellStr(sheet, t.cell, t.value); err != nil {
			return err
		}
	}

	numbers := []struct {
		cell   string
		value  decimal.Decimal
		numFmt int
	}{
		{cells.Revenue, income.Revenue, numFmtCurrency},
		{cells.EBITDA, income.EBITDA, numFmtCurrency},
		{cells.NetResult, income.NetResult, numFmtCurrency},
		{cells.TotalAssets, balance.TotalAssets, numFmtCurrency},
		{cells.Equity, balance.Equity, numFmtCurrency},
	}
	for _, n := range numbers {
		if err := setNumber(f, sheet, n.cell, n.value, n.numFmt, ""); err != nil {
			return err
		}
	}

	coloured := []struct {
		cell   string
		value  decimal.Decimal
		numFmt int
	}{
		{cells.FinancialAutonomy, ratios.FinancialAutonomy, numFmtPercent},
		{cells.CurrentLiquidity, ratios.CurrentLiquidity, numFmtDecimal},
		{cells.EBITDAMargin, ratios.EBITDAMargin, numFmtPercent},
	}
	for _, c := range coloured {
		if err := setNumber(f, sheet, c.cell, c.value, c.numFmt, ColorForRatio(c.value)); err != nil {
			return err
		}
	}

	if err := f.SetCellStr(sheet, cells.Risk, res.Risk().Label(analysis.LanguagePT)); err != nil {
		return err
	}
	riskStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: solidFill(ColorForRisk(res.Risk())),
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, cells.Risk, cells.Risk, riskStyle); err != nil {
		return err
	}

	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}
	lists := []struct {
		cell  string
		items []string
	}{
		{w.layout.Lists.Strengths, res.Strengths()},
		{w.layout.Lists.Weaknesses, res.Weaknesses()},
		{w.layout.Lists.Recommendations, res.Recommendations()},
	}
	for _, l := range lists {
		if err := f.SetCellStr(sheet, l.cell, bulletList(l.items)); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, l.cell, l.cell, wrap); err != nil {
			return err
		}
	}

	if err := f.SetCellStr(sheet, w.layout.Narrative, res.Narrative()); err != nil {
		return err
	}
	r := w.layout.NarrativeRange
	return f.SetCellStyle(sheet, r[0], r[1], wrap)
}

func setNumber(f *excelize.File, sheet, cell string, v decimal.Decimal, numFmt int, color string) error {
	if err := f.SetCellFloat(sheet, cell, v.InexactFloat64(), -1, 64); err != nil {
		return err
	}
	style := &excelize.Style{NumFmt: numFmt}
	if color != "" {
		style.Fill = solidFill(color)
	}
	id, err := f.NewStyle(style)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, cell, id)
}

func solidFill(color string) excelize.Fill {
	return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}

func writeSummary(f *excelize.File, rec record.Record, res analysis.Result) error {
	if idx, _ := f.GetSheetIndex(SummarySheet); idx >= 0 {
		if err := f.DeleteSheet(SummarySheet); err != nil {
			return err
		}
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}

	id := rec.Identity()
	rows := []string{
		"Resumo da Análise - AutoFund AI",
		"",
		"Empresa: " + id.CompanyName,
		"NIF: " + id.TaxID,
		"Período: " + id.Period,
		"Nível de Risco: " + res.Risk().Label(analysis.LanguagePT),
		"",
		"Pontos Fortes:",
	}
	for _, s := range res.Strengths() {
		rows = append(rows, "• "+s)
	}
	rows = append(rows, "", "Pontos Fracos:")
	for _, s := range res.Weaknesses() {
		rows = append(rows, "• "+s)
	}
	rows = append(rows, "", "Recomendações:")
	for i, s := range res.Recommendations() {
		rows = append(rows, fmt.Sprintf("%d. %s", i+1, s))
	}

	width := 0
	for i, text := range rows {
		if text == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SummarySheet, cell, text); err != nil {
			return err
		}
		if n := utf8.RuneCountInString(text); n > width {
			width = n
		}
	}

	heading, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "A1", heading); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", float64(min(width+2, 50)))
}
