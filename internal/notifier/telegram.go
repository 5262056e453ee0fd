package notifier

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender delivers notifications through the Telegram Bot API.
// The HTTP client timeout bounds every send, so one unresponsive
// recipient cannot stall a whole cycle.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewTelegramSender(token string, sendTimeout time.Duration, log zerolog.Logger) (*TelegramSender, error) {
	client := &http.Client{Timeout: sendTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSender{
		bot: bot,
		log: log.With().Str("component", "telegram").Logger(),
	}, nil
}

func (s *TelegramSender) SendPhoto(chatID int64, photo []byte, caption string) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "vehicle.jpg", Bytes: photo})
	msg.Caption = caption

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send photo to chat %d: %w", chatID, err)
	}
	s.log.Debug().Int64("chat_id", chatID).Msg("photo sent")
	return nil
}
