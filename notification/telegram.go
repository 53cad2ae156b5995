// Package notification provides implementations for human-facing event
// delivery.
package notification

import (
	"fmt"
	"time"

	"github.com/lcerda/tidebot/core"
	tb "gopkg.in/tucnak/telebot.v2"
)

const pollingTimeout = 10 * time.Second

// StatusProvider supplies the state the /status and /summary commands
// report on.
type StatusProvider interface {
	LastResult() (core.SignalCheckResult, bool)
}

// SummaryProvider renders the realized trade statistics.
type SummaryProvider interface {
	String() string
}

// Telegram implements core.NotifierWithStart over a single chat.
type Telegram struct {
	client  *tb.Bot
	chat    *tb.Chat
	status  StatusProvider
	summary SummaryProvider
	log     core.Logger
}

// Option configures a Telegram notifier.
type Option func(*Telegram)

// WithStatusProvider wires the /status command.
func WithStatusProvider(p StatusProvider) Option {
	return func(t *Telegram) {
		t.status = p
	}
}

// WithSummaryProvider wires the /summary command.
func WithSummaryProvider(p SummaryProvider) Option {
	return func(t *Telegram) {
		t.summary = p
	}
}

// NewTelegram connects the bot and registers the command handlers. Only
// messages from the configured chat are accepted.
func NewTelegram(cfg core.TelegramConfig, log core.Logger, options ...Option) (core.NotifierWithStart, error) {
	poller := &tb.LongPoller{Timeout: pollingTimeout}
	authorized := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Chat == nil {
			return false
		}
		if u.Message.Chat.ID != cfg.ChatID {
			log.Errorf("unauthorized telegram chat %d", u.Message.Chat.ID)
			return false
		}
		return true
	})

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     cfg.Token,
		Poller:    authorized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	t := &Telegram{
		client: client,
		chat:   &tb.Chat{ID: cfg.ChatID},
		log:    log,
	}
	for _, option := range options {
		option(t)
	}

	client.Handle("/status", t.handleStatus)
	client.Handle("/summary", t.handleSummary)

	return t, nil
}

// Start runs the long-polling receive loop. Blocks; run in a goroutine.
func (t *Telegram) Start() {
	t.log.Info("telegram notifier started")
	t.client.Start()
}

// Notify sends a plain message to the configured chat.
func (t *Telegram) Notify(message string) {
	if _, err := t.client.Send(t.chat, message); err != nil {
		t.log.WithError(err).Error("failed to send telegram message")
	}
}

// OnSignal reports an executed or skipped signal.
func (t *Telegram) OnSignal(signal core.EmittedSignal) {
	// Pure noops would flood the chat; only report decisions that acted.
	if signal.ActionTaken == core.ActionNoop {
		return
	}
	t.Notify(fmt.Sprintf("*%s* %s %s\nscore %.3f, confidence %.2f @ %.4f",
		signal.ActionTaken, signal.SignalType, signal.Symbol,
		signal.TradeScore, signal.Confidence, signal.Price))
}

// OnError reports an engine error.
func (t *Telegram) OnError(err error) {
	t.Notify(fmt.Sprintf("🚨 error: %v", err))
}

func (t *Telegram) handleStatus(_ *tb.Message) {
	if t.status == nil {
		t.Notify("status unavailable")
		return
	}
	result, ok := t.status.LastResult()
	if !ok {
		t.Notify("no signal check yet")
		return
	}
	t.Notify(fmt.Sprintf("last check: %s\nscore %.3f, confidence %.2f\n%s",
		result.SignalType, result.TradeScore, result.FusedConfidence, result.Message))
}

func (t *Telegram) handleSummary(_ *tb.Message) {
	if t.summary == nil {
		t.Notify("summary unavailable")
		return
	}
	t.Notify(fmt.Sprintf("```\n%s```", t.summary.String()))
}
