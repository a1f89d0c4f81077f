package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/logger"
	"github.com/camuig/paper-trader/internal/trade"
)

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	bot     sender
	chatID  int64
	symbol  string
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{enabled: false, logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &Notifier{
		bot:     bot,
		chatID:  cfg.Telegram.ChatID,
		symbol:  cfg.Price.Symbol,
		enabled: true,
		logger:  log,
	}
}

func (n *Notifier) NotifyEntered(t *trade.Trade, price float64) {
	msg := fmt.Sprintf("🟢 *ENTERED* %s %s\nPrice: %s\nEntry: %s\nSL: %s\nTPs: %s\nSize: $%s",
		strings.ToUpper(string(t.Direction)), n.symbol,
		money(price), money(t.EntryPrice), money(t.StopLoss), levels(t.TakeProfits), money(t.Size()))
	n.send(msg)
}

func (n *Notifier) NotifyTakeProfit(t *trade.Trade, hit trade.TakeProfitHit) {
	msg := fmt.Sprintf("🎯 *TP HIT* %s %s\nTP: %s\nProfit: $%s",
		strings.ToUpper(string(t.Direction)), n.symbol, money(hit.Price), money(hit.PnLPortion))
	n.send(msg)
}

func (n *Notifier) NotifyClosed(t *trade.Trade, c trade.Closure) {
	emoji := "🔴"
	if c.FinalPnL > 0 {
		emoji = "💰"
	}
	msg := fmt.Sprintf("%s *CLOSED* %s %s\nOutcome: %s\nExit: %s\nP&L: $%s",
		emoji, strings.ToUpper(string(t.Direction)), n.symbol,
		strings.ReplaceAll(string(c.Status), "_", " "), money(c.ExitPrice), money(c.FinalPnL))
	n.send(msg)
}

func (n *Notifier) NotifyError(context string, err error) {
	msg := fmt.Sprintf("⚠️ *Error* [%s]\n%v", context, err)
	n.send(msg)
}

func (n *Notifier) NotifyStatus(message string) {
	n.send(message)
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func levels(tps []trade.TakeProfit) string {
	if len(tps) == 0 {
		return "none"
	}
	parts := make([]string, len(tps))
	for i, tp := range tps {
		parts[i] = money(tp.Price)
	}
	return strings.Join(parts, " / ")
}
