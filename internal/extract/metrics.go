package extract

import (
	"math"
	"regexp"
	"time"
)

// Metrics holds the backtest statistics recognized in an analysis. Fields the
// text does not mention, and that cannot be derived, are zero. JSON names are
// the ones stored in strategy_analyses.data and read by the web client.
type Metrics struct {
	ProfitFactor         float64 `json:"profitFactor"`
	Payoff               float64 `json:"payoff"`
	WinRate              float64 `json:"winRate"`
	TotalTrades          int     `json:"totalTrades"`
	ProfitableTrades     int     `json:"profitableTrades"`
	LossTrades           int     `json:"lossTrades"`
	AverageWin           float64 `json:"averageWin"`
	AverageLoss          float64 `json:"averageLoss"`
	MaxDrawdown          float64 `json:"maxDrawdown"`
	MaxDrawdownAmount    float64 `json:"maxDrawdownAmount"`
	MaxDrawdownStart     string  `json:"maxDrawdownStart"`
	MaxDrawdownEnd       string  `json:"maxDrawdownEnd"`
	MaxDrawdownDuration  int     `json:"maxDrawdownDuration"`
	MaxConsecutiveLosses int     `json:"maxConsecutiveLosses"`
	MaxConsecutiveGains  int     `json:"maxConsecutiveGains"`
	SharpeRatio          float64 `json:"sharpeRatio"`
	NetProfit            float64 `json:"netProfit"`
	GrossProfit          float64 `json:"grossProfit"`
	GrossLoss            float64 `json:"grossLoss"`
	RecoveryFactor       float64 `json:"recoveryFactor"`
	Expectancy           float64 `json:"expectancy"`
	AverageTrade         float64 `json:"averageTrade"`
	TimeInMarket         float64 `json:"timeInMarket"`
	LastUpdated          string  `json:"lastUpdated,omitempty"`
}

// rule recognizes one numeric metric. Patterns are tried in order over the
// metrics block and the first match wins. fallback is tried only when no
// primary pattern matched, and searches the whole text.
type rule struct {
	key      string
	primary  []*regexp.Regexp
	fallback *regexp.Regexp
	set      func(*Metrics, float64)
}

const (
	drawdownLabel = `max(?:imum)?\s*drawdown|drawdown\s*max(?:imo)?|rebaixamento\s*max(?:imo)?`
)

var rules = []rule{
	{
		key:      "profitFactor",
		primary:  []*regexp.Regexp{labeled(`profit\s*factor|fator\s*de\s*lucro`, numPat)},
		fallback: regexp.MustCompile(`(?:profit\s*factor|fator\s*de\s*lucro)[^\n]*?` + numPat),
		set:      func(m *Metrics, v float64) { m.ProfitFactor = v },
	},
	{
		key:      "payoff",
		primary:  []*regexp.Regexp{labeled(`payoff(?:\s*ratio)?|razao\s*(?:de\s*)?payoff`, numPat)},
		fallback: regexp.MustCompile(`payoff[^\n]*?` + numPat),
		set:      func(m *Metrics, v float64) { m.Payoff = v },
	},
	{
		key:      "winRate",
		primary:  []*regexp.Regexp{labeled(`win\s*rate|taxa\s*de\s*(?:acerto|vitoria)|percentual\s*de\s*acerto`, numPat)},
		fallback: regexp.MustCompile(`(?:win\s*rate|taxa\s*de\s*acerto)[^\n]*?` + numPat + `\s*%?`),
		set:      func(m *Metrics, v float64) { m.WinRate = v },
	},
	{
		key:     "totalTrades",
		primary: []*regexp.Regexp{labeled(`total\s*(?:de\s*)?(?:trades|operacoes|negocios)|number\s*of\s*trades|numero\s*de\s*(?:trades|operacoes)`, numPat)},
		set:     func(m *Metrics, v float64) { m.TotalTrades = toInt(v) },
	},
	{
		key:     "profitableTrades",
		primary: []*regexp.Regexp{labeled(`(?:winning|profitable)\s*trades|trades\s*(?:vencedores|lucrativos|positivos)|operacoes\s*(?:vencedoras|lucrativas|positivas)`, numPat)},
		set:     func(m *Metrics, v float64) { m.ProfitableTrades = toInt(v) },
	},
	{
		key:     "lossTrades",
		primary: []*regexp.Regexp{labeled(`(?:losing|loss)\s*trades|trades\s*(?:perdedores|negativos)|operacoes\s*(?:perdedoras|negativas)`, numPat)},
		set:     func(m *Metrics, v float64) { m.LossTrades = toInt(v) },
	},
	{
		key:     "averageWin",
		primary: []*regexp.Regexp{labeled(`average\s*(?:win|gain)|avg\.?\s*win|ganho\s*medio|media\s*de\s*ganhos?`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.AverageWin = v },
	},
	{
		key:     "averageLoss",
		primary: []*regexp.Regexp{labeled(`average\s*loss|avg\.?\s*loss|perda\s*media|media\s*de\s*perdas?`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.AverageLoss = v },
	},
	{
		key:      "maxDrawdown",
		primary:  []*regexp.Regexp{labeled(drawdownLabel, numPat)},
		fallback: regexp.MustCompile(`drawdown[^\n]*?` + numPat + `\s*%`),
		set:      func(m *Metrics, v float64) { m.MaxDrawdown = v },
	},
	{
		key: "maxDrawdownAmount",
		primary: []*regexp.Regexp{
			labeled(`max(?:imum)?\s*drawdown\s*(?:amount|value)|drawdown\s*(?:financeiro|em\s*valor)|valor\s*do\s*drawdown`, moneyPat),
			labeled(`(?:`+drawdownLabel+`)\s*\((?:r|us)?\$\)`, numPat),
			labeled(drawdownLabel, currencyPat+numPat),
		},
		fallback: regexp.MustCompile(`drawdown[^\n]*?` + currencyPat + numPat),
		set:      func(m *Metrics, v float64) { m.MaxDrawdownAmount = v },
	},
	{
		key:     "maxDrawdownDuration",
		primary: []*regexp.Regexp{labeled(`(?:`+drawdownLabel+`)\s*duration|drawdown\s*duration|duracao\s*do\s*drawdown(?:\s*maximo)?`, `(\d+)`)},
		set:     func(m *Metrics, v float64) { m.MaxDrawdownDuration = toInt(v) },
	},
	{
		key:     "maxConsecutiveLosses",
		primary: []*regexp.Regexp{labeled(`max(?:imum)?\s*consecutive\s*loss(?:es)?|perdas\s*consecutivas(?:\s*maximas)?|maximo\s*de\s*perdas\s*consecutivas`, numPat)},
		set:     func(m *Metrics, v float64) { m.MaxConsecutiveLosses = toInt(v) },
	},
	{
		key:     "maxConsecutiveGains",
		primary: []*regexp.Regexp{labeled(`max(?:imum)?\s*consecutive\s*(?:gains|wins)|ganhos\s*consecutivos(?:\s*maximos)?|maximo\s*de\s*ganhos\s*consecutivos`, numPat)},
		set:     func(m *Metrics, v float64) { m.MaxConsecutiveGains = toInt(v) },
	},
	{
		key:     "sharpeRatio",
		primary: []*regexp.Regexp{labeled(`sharpe(?:\s*ratio)?|indice\s*(?:de\s*)?sharpe`, numPat)},
		set:     func(m *Metrics, v float64) { m.SharpeRatio = v },
	},
	{
		key:     "netProfit",
		primary: []*regexp.Regexp{labeled(`net\s*profit|lucro\s*liquido|resultado\s*liquido`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.NetProfit = v },
	},
	{
		key:     "grossProfit",
		primary: []*regexp.Regexp{labeled(`gross\s*profit|lucro\s*bruto`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.GrossProfit = v },
	},
	{
		key:     "grossLoss",
		primary: []*regexp.Regexp{labeled(`gross\s*loss|prejuizo\s*bruto|perda\s*bruta`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.GrossLoss = v },
	},
	{
		key:     "recoveryFactor",
		primary: []*regexp.Regexp{labeled(`recovery\s*factor|fator\s*de\s*recuperacao`, numPat)},
		set:     func(m *Metrics, v float64) { m.RecoveryFactor = v },
	},
	{
		key:     "expectancy",
		primary: []*regexp.Regexp{labeled(`expectancy|expectativa(?:\s*matematica)?`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.Expectancy = v },
	},
	{
		key:     "averageTrade",
		primary: []*regexp.Regexp{labeled(`average\s*trade|avg\.?\s*trade|media\s*por\s*(?:trade|operacao)|resultado\s*medio(?:\s*por\s*(?:trade|operacao))?`, moneyPat)},
		set:     func(m *Metrics, v float64) { m.AverageTrade = v },
	},
	{
		key:     "timeInMarket",
		primary: []*regexp.Regexp{labeled(`time\s*in\s*market|tempo\s*(?:no|em|de)\s*mercado|exposicao(?:\s*ao\s*mercado)?`, numPat)},
		set:     func(m *Metrics, v float64) { m.TimeInMarket = v },
	},
}

var (
	drawdownStart = labeled(`(?:`+drawdownLabel+`)\s*start|drawdown\s*start|inicio\s*do\s*drawdown(?:\s*maximo)?`, datePat)
	drawdownEnd   = labeled(`(?:`+drawdownLabel+`)\s*end|drawdown\s*end|fim\s*do\s*drawdown(?:\s*maximo)?`, datePat)

	// metricsBlock isolates the bilingual "Métricas / Metrics" section up to
	// the next level-two heading.
	metricsBlock = regexp.MustCompile(`(?s)(?:metricas[^\n]*?metrics|metrics[^\n]*?metricas)(.*?)(?:\n\s*##|\z)`)
)

// extractMetrics runs the rule table over normalized text and fills in what
// can be derived from the values found.
func extractMetrics(normalized string) Metrics {
	block := normalized
	if m := metricsBlock.FindStringSubmatch(normalized); m != nil && m[1] != "" {
		block = m[1]
	}

	var out Metrics
	found := make(map[string]float64, len(rules))
	for _, r := range rules {
		v, ok := firstMatch(block, r.primary)
		if !ok && r.fallback != nil {
			v, ok = firstMatch(normalized, []*regexp.Regexp{r.fallback})
		}
		if ok {
			found[r.key] = v
			r.set(&out, v)
		}
	}
	if m := drawdownStart.FindStringSubmatch(block); m != nil {
		out.MaxDrawdownStart = m[1]
	}
	if m := drawdownEnd.FindStringSubmatch(block); m != nil {
		out.MaxDrawdownEnd = m[1]
	}

	derive(&out, found)
	return out
}

func firstMatch(s string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if v, ok := parseNumber(m[1]); ok {
			return v, true
		}
	}
	return 0, false
}

// derive computes missing values from related ones. Only absent keys are
// written; an explicitly stated value is never overwritten.
func derive(m *Metrics, found map[string]float64) {
	has := func(k string) bool { _, ok := found[k]; return ok }

	if !has("winRate") && has("profitableTrades") && m.TotalTrades > 0 {
		m.WinRate = round2(float64(m.ProfitableTrades) / float64(m.TotalTrades) * 100)
		found["winRate"] = m.WinRate
	}
	if !has("profitableTrades") && has("winRate") && m.TotalTrades > 0 {
		m.ProfitableTrades = int(math.Round(float64(m.TotalTrades) * m.WinRate / 100))
		found["profitableTrades"] = float64(m.ProfitableTrades)
	}
	if !has("lossTrades") && has("profitableTrades") && m.TotalTrades > 0 {
		m.LossTrades = max(m.TotalTrades-m.ProfitableTrades, 0)
	}
	if !has("netProfit") && has("grossProfit") && has("grossLoss") {
		m.NetProfit = round2(m.GrossProfit - math.Abs(m.GrossLoss))
		found["netProfit"] = m.NetProfit
	}
	if !has("maxDrawdownAmount") && has("netProfit") && m.MaxDrawdown != 0 {
		m.MaxDrawdownAmount = round2(m.NetProfit * m.MaxDrawdown / 100)
		found["maxDrawdownAmount"] = m.MaxDrawdownAmount
	}
	if !has("recoveryFactor") && has("netProfit") && m.MaxDrawdownAmount != 0 {
		m.RecoveryFactor = round2(m.NetProfit / math.Abs(m.MaxDrawdownAmount))
	}
	if !has("averageTrade") && has("netProfit") && m.TotalTrades > 0 {
		m.AverageTrade = round2(m.NetProfit / float64(m.TotalTrades))
	}
	if !has("expectancy") && has("winRate") && has("averageWin") && has("averageLoss") {
		p := m.WinRate / 100
		m.Expectancy = round2(p*m.AverageWin - (1-p)*math.Abs(m.AverageLoss))
	}
	if !has("maxDrawdownDuration") && m.MaxDrawdownStart != "" && m.MaxDrawdownEnd != "" {
		if d, ok := daysBetween(m.MaxDrawdownStart, m.MaxDrawdownEnd); ok {
			m.MaxDrawdownDuration = d
		}
	}
}

var dateLayouts = []string{"2006-01-02", "2/1/2006"}

func parseDate(s string) (time.Time, bool) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func daysBetween(a, b string) (int, bool) {
	start, ok1 := parseDate(a)
	end, ok2 := parseDate(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	return int(math.Ceil(math.Abs(end.Sub(start).Hours()) / 24)), true
}

func toInt(v float64) int {
	return int(math.Round(v))
}
