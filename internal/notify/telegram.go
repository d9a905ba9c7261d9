// Package notify sends Telegram alerts when the recommendation flips to BUY
// or SELL.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/aurumlabs/goldwatch/internal/engine"
)

// Notifier watches engine state changes and alerts on action transitions.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	engine *engine.Engine

	lastAction engine.Action
}

func New(token string, chatID int64, eng *engine.Engine) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("telegram notifier connected")
	return &Notifier{api: api, chatID: chatID, engine: eng, lastAction: engine.ActionHold}, nil
}

// Run consumes state updates until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	states, cancel := n.engine.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			n.observe(st)
		}
	}
}

func (n *Notifier) observe(st engine.State) {
	if st.Decision == nil || st.Signal == nil {
		return
	}
	action := st.Decision.Action
	if action == n.lastAction || action == engine.ActionHold {
		n.lastAction = action
		return
	}
	n.lastAction = action

	emoji := "🟢"
	if action == engine.ActionSell {
		emoji = "🔴"
	}
	text := fmt.Sprintf(`%s *Goldwatch: %s*

💰 Price: %.2f
📊 P(up): %.2f  Confidence: %.2f
🎯 Expected: %.2f
📝 %s`,
		emoji, action,
		st.Signal.Price,
		st.Signal.PUp, st.Signal.Confidence,
		st.Decision.ExpectedPrice,
		st.Decision.Reason,
	)

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("telegram send failed")
	}
}
