package notifyhub

import (
	"log"
	"strconv"

	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramFallback delivers quota events as Telegram DMs to users without a
// live WebSocket connection. Only users whose profile carries a TelegramID
// are reachable.
type TelegramFallback struct {
	BotAPI  *tgbotapi.BotAPI
	Storage storage.Storage
}

// NewTelegramFallback creates the fallback over an authorized bot.
func NewTelegramFallback(botToken string, s storage.Storage) (*TelegramFallback, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: Telegram fallback authorized as %s", bot.Self.UserName)
	return &TelegramFallback{BotAPI: bot, Storage: s}, nil
}

// Deliver sends the event as a DM. Failures are logged only; a missed
// notification must never affect message processing.
func (t *TelegramFallback) Deliver(ev models.QuotaEvent) {
	profile, err := t.Storage.GetProfile(ev.UserID)
	if err != nil || profile == nil || profile.TelegramID == "" {
		return
	}

	chatID, err := strconv.ParseInt(profile.TelegramID, 10, 64)
	if err != nil || chatID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(chatID, messageText(ev))
	if _, err := t.BotAPI.Send(msg); err != nil {
		log.Printf("WARNING: failed to deliver Telegram notification to %s: %v", ev.UserID, err)
	}
}

func messageText(ev models.QuotaEvent) string {
	switch ev.Type {
	case models.EventFreeQuotaLow:
		return "⏳ Only " + strconv.Itoa(ev.Remaining) + " free messages left in this chat."
	case models.EventFreeQuotaExhausted:
		return "🚫 You've used all your free messages in this chat. Waiting for the other side to catch up."
	case models.EventChatPaywalled:
		return "💬 The free window for this chat is over. Further messages are billed in tokens."
	case models.EventDepositRequired:
		return "💰 Your token balance is too low to send this message. Top up to continue."
	default:
		return "Chat update: " + ev.Type
	}
}
