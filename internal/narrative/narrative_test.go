package narrative_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/narrative"
	"github.com/autofund-ai/autofund/internal/record/recordtest"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

func request(t *testing.T) analysis.NarrativeRequest {
	rec := recordtest.MustNew(t, nil)
	r := analysis.ComputeRatios(rec)
	return analysis.NarrativeRequest{Record: rec, Ratios: r, Risk: analysis.Classify(r), Context: "Exportadora de software"}
}

const validResponse = `{
  "pontos_fortes": ["Crescimento sustentado"],
  "pontos_fracos": ["Margem EBITDA reduzida"],
  "recomendacoes": ["Otimizar custos operacionais"],
  "memoria_descritiva": "A empresa apresenta uma trajetória consistente."
}`

func TestGenerate(t *testing.T) {
	model := &mockModel{}
	model.On("Generate", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return req.JSON && req.Document == nil &&
			strings.Contains(req.Prompt, `"nif": "123456789"`) &&
			strings.Contains(req.Prompt, `"volume_negocios": 245831.27`) &&
			strings.Contains(req.Prompt, "Exportadora de software") &&
			strings.Contains(req.System, "European Portuguese")
	})).Return(&llm.Response{Text: validResponse}, nil).Once()

	n, err := narrative.NewGenerator(model, nil, narrative.WithLanguage(analysis.LanguagePT)).
		Generate(context.Background(), request(t))
	require.NoError(t, err)
	model.AssertExpectations(t)

	assert.Equal(t, []string{"Crescimento sustentado"}, n.Strengths)
	assert.Equal(t, []string{"Otimizar custos operacionais"}, n.Recommendations)
	assert.Equal(t, "A empresa apresenta uma trajetória consistente.", n.Description)
}

func TestGenerateEnglishAndLimits(t *testing.T) {
	model := &mockModel{}
	model.On("Generate", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return strings.Contains(req.System, "English") &&
			strings.Contains(req.System, "at most 250 words") &&
			strings.Contains(req.System, "up to 2 strengths")
	})).Return(&llm.Response{Text: validResponse}, nil).Once()

	g := narrative.NewGenerator(model, nil,
		narrative.WithLanguage(analysis.LanguageEN),
		narrative.WithLimits(2, 250))
	_, err := g.Generate(context.Background(), request(t))
	require.NoError(t, err)
	model.AssertExpectations(t)
}

func TestGenerateWithoutContext(t *testing.T) {
	model := &mockModel{}
	model.On("Generate", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return strings.Contains(req.Prompt, "[no additional context]")
	})).Return(&llm.Response{Text: validResponse}, nil).Once()

	req := request(t)
	req.Context = "   "
	_, err := narrative.NewGenerator(model, nil).Generate(context.Background(), req)
	require.NoError(t, err)
}

func TestGeneratePropagatesModelErrors(t *testing.T) {
	model := &mockModel{}
	model.On("Generate", mock.Anything, mock.Anything).Return(nil, apperrors.ErrLLMUnavailable)
	_, err := narrative.NewGenerator(model, nil).Generate(context.Background(), request(t))
	assert.ErrorIs(t, err, apperrors.ErrLLMUnavailable)
}

func TestParseStrictKeys(t *testing.T) {
	tests := map[string]string{
		"unknown key":   `{"pontos_fortes": [], "pontos_fracos": [], "recomendacoes": [], "memoria_descritiva": "x", "nota": 1}`,
		"missing key":   `{"pontos_fortes": ["a"], "pontos_fracos": [], "memoria_descritiva": "x"}`,
		"wrong type":    `{"pontos_fortes": "a", "pontos_fracos": [], "recomendacoes": [], "memoria_descritiva": "x"}`,
		"not json":      `Sorry, I cannot help with that.`,
		"array at root": `[{"pontos_fortes": []}]`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := narrative.Parse(text)
			assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
		})
	}
}

func TestParseTolerantFormatting(t *testing.T) {
	n, err := narrative.Parse("```json\n" + validResponse + "\n```")
	require.NoError(t, err)
	assert.Len(t, n.Strengths, 1)

	n, err = narrative.Parse(`{"pontos_fortes": ["a",], "pontos_fracos": [], "recomendacoes": [], "memoria_descritiva": "x",}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, n.Strengths)
}

func TestSummarize(t *testing.T) {
	s := narrative.Summarize(request(t))
	data, err := json.Marshal(s)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"autonomia_financeira":0.5694`)
	assert.Contains(t, string(data), `"contabilidade_valida":true`)
	assert.Contains(t, string(data), `"risco":"MEDIUM"`)
	assert.Equal(t, json.Number("7606.1"), s.EBITDA)
}

func TestGeneratorSatisfiesAssembler(t *testing.T) {
	model := &mockModel{}
	model.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Text: validResponse}, nil)

	req := request(t)
	res := analysis.NewAssembler(narrative.NewGenerator(model, nil), nil).
		Assemble(context.Background(), req.Record, req.Ratios, req.Risk, req.Context)
	assert.Equal(t, []string{"Crescimento sustentado"}, res.Strengths())
}
