package extract

import "strings"

// PortfolioRecommendations describes how a strategy could be combined with
// others.
type PortfolioRecommendations struct {
	Description  string   `json:"description"`
	Combinations []string `json:"combinations"`
}

// Result is the structured form of a backtest analysis.
type Result struct {
	Metrics                  Metrics                  `json:"metrics"`
	Strengths                []string                 `json:"strengths"`
	Weaknesses               []string                 `json:"weaknesses"`
	Suggestions              []string                 `json:"suggestions"`
	PortfolioRecommendations PortfolioRecommendations `json:"portfolioRecommendations"`
	RawResponse              string                   `json:"rawResponse"`
}

// HasCoreMetrics reports whether the headline figures were recognized. A
// false result usually means the model answered in an unexpected layout.
func (r Result) HasCoreMetrics() bool {
	m := r.Metrics
	return m.ProfitFactor != 0 || m.WinRate != 0 || m.NetProfit != 0 || m.TotalTrades != 0
}

// Placeholder entries used when a section is missing.
var (
	DefaultStrengths   = []string{"Strategy shows potential"}
	DefaultWeaknesses  = []string{"Needs further optimization"}
	DefaultSuggestions = []string{"Consider backtesting with different parameters"}

	DefaultPortfolioDescription  = "Consider combining this strategy with others for diversification"
	DefaultPortfolioCombinations = []string{"Trend following strategies", "Mean reversion strategies"}
)

const (
	secMetrics     = "metrics"
	secStrengths   = "strengths"
	secWeaknesses  = "weaknesses"
	secSuggestions = "suggestions"
	secPortfolio   = "portfolio"
)

var backtestSections = []sectionSpec{
	section(secMetrics, `metricas(?: de desempenho| principais)?|(?:key |performance )?metrics`),
	section(secStrengths, `(?:main |key )?strengths|pontos fortes|forcas|pontos positivos`),
	section(secWeaknesses, `(?:main |key )?weaknesses|pontos fracos|fraquezas|pontos negativos|pontos de melhoria`),
	section(secSuggestions, `(?:improvement |optimization )?suggestions|improvements|sugestoes(?: de (?:melhoria|otimizacao))?|melhorias|recomendacoes de melhoria`),
	section(secPortfolio, `portfolio(?: recommendations?)?|recommendations?|recomendacoes(?: de portfolio)?|portfolio recomendado`),
}

// Extract parses a backtest analysis. It never fails: unrecognized metrics
// are zero and missing sections get placeholder entries. The same input
// always produces the same Result.
func Extract(text string) Result {
	doc := newDocument(text)
	secs := doc.sections(backtestSections)

	return Result{
		Metrics:                  extractMetrics(strings.Join(doc.norm, "\n")),
		Strengths:                orDefault(listItems(secs[secStrengths]), DefaultStrengths),
		Weaknesses:               orDefault(listItems(secs[secWeaknesses]), DefaultWeaknesses),
		Suggestions:              orDefault(listItems(secs[secSuggestions]), DefaultSuggestions),
		PortfolioRecommendations: portfolio(secs[secPortfolio]),
		RawResponse:              text,
	}
}

// portfolio takes the first plain line as the description and the bullets
// (or, without bullets, the remaining lines) as combinations.
func portfolio(lines []string) PortfolioRecommendations {
	var (
		desc     string
		bullets  []string
		trailing []string
	)
	for _, l := range lines {
		if m := bulletLine.FindStringSubmatch(l); m != nil {
			if it := cleanItem(m[1]); it != "" {
				bullets = append(bullets, it)
			}
			continue
		}
		it := cleanItem(l)
		switch {
		case it == "":
		case desc == "":
			desc = it
		default:
			trailing = append(trailing, it)
		}
	}
	combos := bullets
	if len(combos) == 0 {
		combos = trailing
	}
	return PortfolioRecommendations{
		Description:  orDefaultString(desc, DefaultPortfolioDescription),
		Combinations: orDefault(combos, DefaultPortfolioCombinations),
	}
}
