package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Bot API types used by the chat front end.
type (
	Update              = tgbotapi.Update
	Message             = tgbotapi.Message
	User                = tgbotapi.User
	Chat                = tgbotapi.Chat
	BotCommand          = tgbotapi.BotCommand
	ReplyKeyboardMarkup = tgbotapi.ReplyKeyboardMarkup
	ReplyKeyboardRemove = tgbotapi.ReplyKeyboardRemove
)

// Keyboard builds a resized reply keyboard with rows of plain buttons.
func Keyboard(rows ...[]string) ReplyKeyboardMarkup {
	buttons := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, text := range row {
			r = append(r, tgbotapi.NewKeyboardButton(text))
		}
		buttons = append(buttons, tgbotapi.NewKeyboardButtonRow(r...))
	}
	return tgbotapi.NewReplyKeyboard(buttons...)
}

// RemoveKeyboard hides a previously sent keyboard.
func RemoveKeyboard() ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(false)
}
