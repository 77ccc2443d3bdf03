package spreadsheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Layout 模板版本的字段到单元格映射
type Layout struct {
	Sheet      string
	Identity   IdentityCells
	Indicators IndicatorCells
	Lists      ListCells
	// Narrative 为合并区域左上角
	Narrative      string
	NarrativeRange [2]string
}

// IdentityCells 公司信息单元格
type IdentityCells struct {
	CompanyName string
	TaxID       string
	Period      string
	SectorCode  string
}

// IndicatorCells 财务指标单元格
type IndicatorCells struct {
	Revenue           string
	EBITDA            string
	NetResult         string
	TotalAssets       string
	Equity            string
	FinancialAutonomy string
	CurrentLiquidity  string
	EBITDAMargin      string
	Risk              string
}

// ListCells 分析列表单元格
type ListCells struct {
	Strengths       string
	Weaknesses      string
	Recommendations string
}

const (
	// DefaultVersion 默认模板版本
	DefaultVersion = "v1"
	// SummarySheet 摘要工作表名称
	SummarySheet = "Resumo"
)

var layoutV1 = Layout{
	Sheet: "Candidatura Portugal 2030",
	Identity: IdentityCells{
		CompanyName: "B4",
		TaxID:       "B5",
		Period:      "B6",
		SectorCode:  "B7",
	},
	Indicators: IndicatorCells{
		Revenue:           "B10",
		EBITDA:            "B11",
		NetResult:         "B12",
		TotalAssets:       "B13",
		Equity:            "B14",
		FinancialAutonomy: "B15",
		CurrentLiquidity:  "B16",
		EBITDAMargin:      "B17",
		Risk:              "B18",
	},
	Lists: ListCells{
		Strengths:       "B21",
		Weaknesses:      "B22",
		Recommendations: "B23",
	},
	Narrative:      "A26",
	NarrativeRange: [2]string{"A26", "E36"},
}

var layouts = map[string]Layout{
	"v1": layoutV1,
}

// LayoutFor 按版本查找模板布局
func LayoutFor(version string) (Layout, error) {
	if version == "" {
		version = DefaultVersion
	}
	l, ok := layouts[version]
	if !ok {
		return Layout{}, fmt.Errorf("unknown template version %q", version)
	}
	return l, nil
}

type labelCell struct {
	cell string
	text string
}

var v1Labels = []labelCell{
	{"A3", "DADOS DA EMPRESA"},
	{"A4", "Nome da empresa:"},
	{"A5", "NIF:"},
	{"A6", "Período:"},
	{"A7", "CAE:"},
	{"A9", "INDICADORES FINANCEIROS"},
	{"A10", "Volume de Negócios"},
	{"A11", "EBITDA"},
	{"A12", "Resultado Líquido"},
	{"A13", "Total do Ativo"},
	{"A14", "Capital Próprio"},
	{"A15", "Autonomia Financeira"},
	{"A16", "Liquidez Geral"},
	{"A17", "Margem EBITDA"},
	{"A18", "Nível de Risco"},
	{"A20", "ANÁLISE E RECOMENDAÇÕES"},
	{"A21", "Pontos Fortes:"},
	{"A22", "Pontos Fracos:"},
	{"A23", "Recomendações:"},
	{"A25", "MEMÓRIA DESCRITIVA"},
}

var v1Sections = []string{"A3", "A9", "A20", "A25"}

const v1Title = "FORMULÁRIO DE CANDIDATURA - PORTUGAL 2030"

// NewTemplate 在内存中构建 v1 模板
func NewTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := layoutV1.Sheet
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := buildV1(f, sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("build template: %w", err)
	}
	return f, nil
}

func buildV1(f *excelize.File, sheet string) error {
	if err := f.SetCellValue(sheet, "A1", v1Title); err != nil {
		return err
	}
	if err := f.MergeCell(sheet, "A1", "E1"); err != nil {
		return err
	}
	title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "E1", title); err != nil {
		return err
	}

	for _, l := range v1Labels {
		if err := f.SetCellValue(sheet, l.cell, l.text); err != nil {
			return err
		}
	}

	section, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}})
	if err != nil {
		return err
	}
	for _, cell := range v1Sections {
		if err := f.SetCellStyle(sheet, cell, cell, section); err != nil {
			return err
		}
	}

	r := layoutV1.NarrativeRange
	if err := f.MergeCell(sheet, r[0], r[1]); err != nil {
		return err
	}

	widths := []struct {
		col   string
		width float64
	}{{"A", 30}, {"B", 20}, {"C", 20}, {"D", 20}, {"E", 50}}
	for _, w := range widths {
		if err := f.SetColWidth(sheet, w.col, w.col, w.width); err != nil {
			return err
		}
	}
	return nil
}

// CreateTemplate 生成 v1 模板文件
func CreateTemplate(path string) error {
	f, err := NewTemplate()
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}
