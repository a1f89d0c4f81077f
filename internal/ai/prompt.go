package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a disciplined crypto swing trader running a paper-trading strategy.
You receive the current price of one instrument, the strategy's open trades and its recently
closed trades. Propose at most one new trade setup, or none.

Rules:
1. A long needs stop_loss < entry_price < every take_profit. A short needs the reverse.
2. Give one to three take_profits, nearest first. Position capital is split evenly across them.
3. entry_price may equal the current price for an immediate entry, or be a limit level.
4. Do not propose a setup when the strategy already has an open trade.
5. confidence is 0 to 100.
6. Keep the risk to the stop-loss below 5% of entry.

Answer strictly in JSON (an array of objects):
[
  {
    "direction": "long",
    "entry_price": 3000.0,
    "stop_loss": 2900.0,
    "take_profits": [3100.0, 3200.0],
    "confidence": 72,
    "reasoning": "Why"
  }
]

If there is no good opportunity, return an empty array [].`

func BuildUserPrompt(req *SignalRequest) string {
	var sb strings.Builder

	sb.WriteString("## Strategy\n")
	sb.WriteString(fmt.Sprintf("Name: %s\n", req.Strategy.Name))
	if req.Strategy.Description != "" {
		sb.WriteString(fmt.Sprintf("Style: %s\n", req.Strategy.Description))
	}
	sb.WriteString(fmt.Sprintf("Balance: $%.2f\n\n", req.Strategy.Balance))

	sb.WriteString("## Market\n")
	sb.WriteString(fmt.Sprintf("%s last price: %.4f\n\n", req.Symbol, req.Price))

	if len(req.OpenTrades) > 0 {
		sb.WriteString("## Open trades\n")
		for _, t := range req.OpenTrades {
			sb.WriteString(fmt.Sprintf("- %s %s entry %.2f, SL %.2f, %d/%d TPs hit, PnL %.2f\n",
				t.Direction, t.Status, t.EntryPrice, t.StopLoss, t.HitCount(), len(t.TakeProfits), t.PnL))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("No open trades.\n\n")
	}

	if len(req.RecentTrades) > 0 {
		sb.WriteString("## Recently closed\n")
		sb.WriteString("| Direction | Entry | Exit | Outcome | PnL |\n")
		sb.WriteString("|-----------|-------|------|---------|-----|\n")
		for _, t := range req.RecentTrades {
			exit := 0.0
			if t.ExitPrice != nil {
				exit = *t.ExitPrice
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %s | %+.2f |\n",
				t.Direction, t.EntryPrice, exit, t.Status, t.PnL))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Analyze and answer in JSON.")

	return sb.String()
}
