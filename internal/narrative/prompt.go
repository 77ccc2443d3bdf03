package narrative

import (
	"fmt"
	"strings"

	"github.com/autofund-ai/autofund/internal/analysis"
)

var languageNames = map[analysis.Language]string{
	analysis.LanguageEN: "English",
	analysis.LanguagePT: "European Portuguese",
}

func (g *Generator) systemPrompt() string {
	lang, ok := languageNames[g.language]
	if !ok {
		lang = languageNames[analysis.LanguageEN]
	}
	return fmt.Sprintf(`You are a senior financial consultant who prepares Portugal 2030 / IAPMEI funding applications.

Your analysis must be objective and based only on the figures provided, focused on what matters
for approval, constructive (every problem comes with a solution) and written in the formal register
of an application report.

Answer structure:
- up to %[1]d strengths (when applicable)
- up to %[1]d weaknesses
- %[1]d actionable recommendations
- a project description ("memória descritiva") of at most %[2]d words

Write every text value in %[3]s.`, g.maxItems, g.maxWords, lang)
}

const userPromptTemplate = `Analyse this company for a Portugal 2030 application.

FINANCIAL DATA:
%s

ADDITIONAL CONTEXT:
%s

SPECIFIC INSTRUCTIONS:
1. If the net result is negative, explain it as cyclical rather than structural.
2. If financial autonomy is below 30%%, suggest a capital increase or converting shareholder loans.
3. If current liquidity is below 1.5, warn about short-term solvency risk.
4. If EBITDA is positive but the net result is negative, explain the impact of non-recurring costs.

The project description must open with a positive framing, address the challenges honestly,
present an improvement plan and close with an optimistic but realistic outlook.

Return valid JSON with exactly these keys:
{
  "pontos_fortes": ["..."],
  "pontos_fracos": ["..."],
  "recomendacoes": ["..."],
  "memoria_descritiva": "..."
}`

func (g *Generator) userPrompt(summary, companyContext string) string {
	companyContext = strings.TrimSpace(companyContext)
	if companyContext == "" {
		companyContext = "[no additional context]"
	}
	return fmt.Sprintf(userPromptTemplate, summary, companyContext)
}
