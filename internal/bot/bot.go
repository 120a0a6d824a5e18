// internal/bot/bot.go
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
)

var commands = []string{"/start", "/profile", "/products", "/topup", "/support", "/cancel"}

// NewAPI connects to Telegram with long polling.
func NewAPI(token string) (*telebot.Bot, error) {
	api, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		Reporter: func(err error) {
			logging.Error("Telegram client error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return api, nil
}

// ResolveChannel turns a numeric id or an @channel handle into a chat id.
// An empty value disables the channel.
func ResolveChannel(api *telebot.Bot, channel string) (int64, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id, nil
	}

	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	c, err := api.ChatByID(channel)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve channel %s: %w", channel, err)
	}
	return c.ID, nil
}

type Bot struct {
	api    *telebot.Bot
	router *Router
	ctx    context.Context
}

func New(api *telebot.Bot, router *Router) *Bot {
	return &Bot{api: api, router: router, ctx: context.Background()}
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.registerHandlers()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.api.Start()
	}()
	logging.Info("The bot has been launched", zap.String("username", b.api.Me.Username))

	<-ctx.Done()
	b.api.Stop()
	<-done
	logging.Info("The bot has been stopped")
	return nil
}

func (b *Bot) registerHandlers() {
	for _, cmd := range commands {
		cmd := cmd
		b.api.Handle(cmd, func(m *telebot.Message) {
			if req, ok := requestFromMessage(m); ok {
				b.router.Command(b.ctx, req, cmd)
			}
		})
	}

	b.api.Handle(telebot.OnText, func(m *telebot.Message) {
		if req, ok := requestFromMessage(m); ok {
			b.router.Text(b.ctx, req, m.Text)
		}
	})

	b.api.Handle(telebot.OnCallback, b.handleCallback)
}

func (b *Bot) handleCallback(c *telebot.Callback) {
	if c.Sender == nil {
		return
	}

	req := requestFromUser(c.Sender)
	if c.Message != nil && c.Message.Chat != nil {
		req.Origin = chat.MessageRef{ChatID: c.Message.Chat.ID, MessageID: c.Message.ID}
	}

	alert := b.router.Callback(b.ctx, req, c.Data)

	resp := &telebot.CallbackResponse{}
	if alert != "" {
		resp.Text = alert
		resp.ShowAlert = true
	}
	if err := b.api.Respond(c, resp); err != nil {
		logging.Warn("Failed to answer callback", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
}

// Only private chats drive the conversation.
func requestFromMessage(m *telebot.Message) (chat.Request, bool) {
	if m.Sender == nil || !m.Private() {
		return chat.Request{}, false
	}
	return requestFromUser(m.Sender), true
}

func requestFromUser(u *telebot.User) chat.Request {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return chat.Request{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		FullName:  full,
	}
}
