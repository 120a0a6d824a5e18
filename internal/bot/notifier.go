// internal/bot/notifier.go
package bot

import (
	"bytes"
	"context"
	"strconv"

	"gopkg.in/tucnak/telebot.v2"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
)

// Notifier delivers chat messages through the Telegram Bot API.
type Notifier struct {
	api *telebot.Bot
}

func NewNotifier(api *telebot.Bot) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Send(ctx context.Context, chatID int64, msg chat.Message) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}

	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}
	if len(msg.Buttons) > 0 {
		opts.ReplyMarkup = &telebot.ReplyMarkup{InlineKeyboard: inlineKeyboard(msg.Buttons)}
	}

	var what interface{} = msg.Text
	if len(msg.Photo) > 0 {
		what = &telebot.Photo{
			File:    telebot.FromReader(bytes.NewReader(msg.Photo)),
			Caption: msg.Text,
		}
	}

	sent, err := n.api.Send(telebot.ChatID(chatID), what, opts)
	if err != nil {
		return chat.MessageRef{}, err
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.ID}, nil
}

func (n *Notifier) Delete(ctx context.Context, ref chat.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.api.Delete(telebot.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	})
}

func inlineKeyboard(rows [][]chat.Button) [][]telebot.InlineButton {
	out := make([][]telebot.InlineButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]telebot.InlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telebot.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		out = append(out, buttons)
	}
	return out
}
