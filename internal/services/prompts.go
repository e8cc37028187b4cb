package services

import "fmt"

const backtestPrompt = `Analyze this backtest data from the attached CSV file. I need a comprehensive analysis of the trading strategy performance.

Calculate all key performance metrics and answer in plain text, not JSON. Include these metrics with their numerical values:
- Profit Factor
- Win Rate (%)
- Payoff
- Max Drawdown ($) and Max Drawdown (%)
- Net Profit (gross profit minus gross loss)
- Gross Profit
- Gross Loss
- Total Trades
- Profitable Trades
- Loss Trades
- Average Win
- Average Loss
- Max Consecutive Losses
- Max Consecutive Gains
- Recovery Factor
- Sharpe Ratio
- Average Trade

Format the metrics section as:

## Métricas / Metrics

Profit Factor: X.XX
Win Rate: XX.XX%
Payoff: X.XX
...

Then add the sections "## Strengths", "## Weaknesses", "## Suggestions" and "## Portfolio Recommendations", each as a bulleted list.`

func strategyPrompt(description string) string {
	return fmt.Sprintf(`Analise a seguinte estratégia de trading e forneça uma análise detalhada, incluindo condições de mercado ideais, análise de risco, sugestões de otimização e um plano de trading estruturado.

Estratégia:
%s

Por favor, forneça uma análise estruturada com seções claras para:
1. Resumo da estratégia
2. Condições de mercado ideais e ruins
3. Análise de risco (nível, riscos principais, estratégias de mitigação)
4. Sugestões de otimização
5. Plano de trading (regras de entrada, regras de saída, dimensionamento de posição, gerenciamento de tempo)

NÃO retorne um objeto JSON. Apenas forneça uma análise de texto clara e bem estruturada com seções.`, description)
}
