package extract

import (
	"regexp"
	"strings"
)

// StrategyReport is the structured form of a strategy (rule set) analysis.
// Placeholders are Portuguese because the analysis prompt asks for answers in
// Portuguese.
type StrategyReport struct {
	Summary        string   `json:"summary"`
	BestFor        []string `json:"bestFor"`
	WorstFor       []string `json:"worstFor"`
	RiskLevel      string   `json:"riskLevel"`
	KeyRisks       []string `json:"keyRisks"`
	Mitigations    []string `json:"mitigations"`
	Optimization   []string `json:"optimization"`
	EntryRules     []string `json:"entryRules"`
	ExitRules      []string `json:"exitRules"`
	PositionSizing string   `json:"positionSizing"`
	TimeManagement string   `json:"timeManagement"`
	RawResponse    string   `json:"rawResponse"`
}

const (
	secSummary        = "summary"
	secBestFor        = "bestFor"
	secWorstFor       = "worstFor"
	secRiskLevel      = "riskLevel"
	secKeyRisks       = "keyRisks"
	secMitigations    = "mitigations"
	secOptimization   = "optimization"
	secEntryRules     = "entryRules"
	secExitRules      = "exitRules"
	secPositionSizing = "positionSizing"
	secTimeManagement = "timeManagement"
	secStructure      = "structure"
)

var strategySections = []sectionSpec{
	section(secSummary, `resumo(?: da estrategia)?|sumario|summary`),
	section(secBestFor, `melhores condicoes(?: de mercado)?|condicoes ideais|mercados? ideais?|best (?:market )?conditions|best for`),
	section(secWorstFor, `piores condicoes(?: de mercado)?|condicoes ruins|mercados? ruins?|worst (?:market )?conditions|worst for`),
	section(secRiskLevel, `nivel de risco|risk level`),
	section(secKeyRisks, `(?:principais )?riscos(?: principais)?|key risks|main risks`),
	section(secMitigations, `estrategias? de mitigacao|mitigacao(?: de riscos?)?|(?:risk )?mitigations?(?: strategies)?`),
	section(secOptimization, `sugestoes(?: de otimizacao)?|otimizacao|melhorias|optimization(?: suggestions)?`),
	section(secEntryRules, `regras? de entrada|entry rules`),
	section(secExitRules, `regras? de saida|exit rules`),
	section(secPositionSizing, `dimensionamento(?: de posicao)?|tamanho (?:de|da) posicao|position sizing`),
	section(secTimeManagement, `gerenciamento de tempo|horarios(?: de operacao)?|time management`),
	// Parent headings only end the previous section.
	section(secStructure, `condicoes de mercado|market conditions|analise de risco|risk analysis|plano de trading|trading plan|conclusao|conclusion`),
}

// Placeholders for missing strategy sections.
var (
	DefaultSummary        = "Estratégia com potencial para ser otimizada"
	DefaultBestFor        = []string{"Mercados em tendência", "Volatilidade moderada"}
	DefaultWorstFor       = []string{"Mercados lateralizados", "Volatilidade extrema"}
	DefaultRiskLevel      = "Médio"
	DefaultKeyRisks       = []string{"Drawdown em períodos de alta volatilidade", "Falsos sinais em mercados lateralizados"}
	DefaultMitigations    = []string{"Implementar stop loss adequado", "Filtrar sinais com indicadores adicionais"}
	DefaultOptimization   = []string{"Otimizar parâmetros dos indicadores", "Adicionar filtros para reduzir falsos sinais"}
	DefaultEntryRules     = []string{"Entrar quando houver confirmação de tendência", "Verificar volume antes de entrar"}
	DefaultExitRules      = []string{"Sair quando o preço atingir o alvo de lucro", "Sair quando o stop loss for atingido"}
	DefaultPositionSizing = "Utilizar 1-2% do capital por operação"
	DefaultTimeManagement = "Operar nos horários de maior liquidez do mercado"
)

var riskValueEnd = regexp.MustCompile(`[,.;]`)

// ExtractStrategy parses a strategy analysis. Like Extract it is total and
// deterministic.
func ExtractStrategy(text string) StrategyReport {
	doc := newDocument(text)
	secs := doc.sections(strategySections)

	summary := paragraph(secs[secSummary])
	if summary == "" {
		summary = firstParagraph(doc)
	}

	return StrategyReport{
		Summary:        orDefaultString(summary, DefaultSummary),
		BestFor:        orDefault(listItems(secs[secBestFor]), DefaultBestFor),
		WorstFor:       orDefault(listItems(secs[secWorstFor]), DefaultWorstFor),
		RiskLevel:      orDefaultString(riskLevel(secs[secRiskLevel]), DefaultRiskLevel),
		KeyRisks:       orDefault(listItems(secs[secKeyRisks]), DefaultKeyRisks),
		Mitigations:    orDefault(listItems(secs[secMitigations]), DefaultMitigations),
		Optimization:   orDefault(listItems(secs[secOptimization]), DefaultOptimization),
		EntryRules:     orDefault(listItems(secs[secEntryRules]), DefaultEntryRules),
		ExitRules:      orDefault(listItems(secs[secExitRules]), DefaultExitRules),
		PositionSizing: orDefaultString(paragraph(secs[secPositionSizing]), DefaultPositionSizing),
		TimeManagement: orDefaultString(paragraph(secs[secTimeManagement]), DefaultTimeManagement),
		RawResponse:    text,
	}
}

// riskLevel is the first line of the section cut at the first punctuation
// mark: "Alto, devido à alavancagem" -> "Alto".
func riskLevel(lines []string) string {
	first := paragraph(lines)
	if loc := riskValueEnd.FindStringIndex(first); loc != nil {
		first = first[:loc[0]]
	}
	return strings.TrimSpace(first)
}

// firstParagraph is the opening prose of the text, skipping markdown
// headings and recognized section headings.
func firstParagraph(d document) string {
	var lines []string
	for i, raw := range d.raw {
		n := d.norm[i]
		if strings.HasPrefix(n, "#") || match(strategySections, headingParts(n)) != "" {
			if len(lines) > 0 {
				break
			}
			continue
		}
		lines = append(lines, raw)
	}
	return paragraph(lines)
}
