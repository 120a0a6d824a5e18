// internal/account/account.go
package account

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
	"github.com/rovshanmuradov/topup-shop-bot/pkg/utils"
)

type Ledger interface {
	GetUser(ctx context.Context, userID int64) (db.User, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	UserLanguage(ctx context.Context, userID int64) (string, bool, error)
	RegisterUser(ctx context.Context, userID int64, username, lang string) (bool, error)
	SetUserLanguage(ctx context.Context, userID int64, lang string) error
	UpdateUsername(ctx context.Context, userID int64, username string) error
}

type Config struct {
	AdminIDs      []int64
	AdminLanguage i18n.Lang
	Currency      string
	SupportHandle string
	// ChannelID receives a card for every new user. Zero disables it.
	ChannelID int64
}

// Service covers registration, language choice, profile and support.
type Service struct {
	cfg      Config
	ledger   Ledger
	notifier chat.Notifier
	catalog  *i18n.Catalog
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg Config, l Ledger, n chat.Notifier, c *i18n.Catalog) *Service {
	return &Service{
		cfg:      cfg,
		ledger:   l,
		notifier: n,
		catalog:  c,
		log:      logging.Named("account"),
		now:      time.Now,
	}
}

// Registered reports whether the user has a stored record.
func (s *Service) Registered(ctx context.Context, userID int64) (bool, error) {
	return s.ledger.UserExists(ctx, userID)
}

// Start asks for a language when none is stored. Otherwise it registers the
// user if needed and opens the main menu.
func (s *Service) Start(ctx context.Context, req chat.Request) error {
	code, found, err := s.ledger.UserLanguage(ctx, req.UserID)
	if err != nil {
		s.sendError(ctx, req)
		return fmt.Errorf("start for %d: %w", req.UserID, err)
	}
	if !found {
		_, err := s.notifier.Send(ctx, req.UserID, chat.Message{
			Text:    s.catalog.T(i18n.Default, "lang_prompt"),
			Buttons: chat.LanguageMenu(),
		})
		return err
	}

	lang := i18n.OrDefault(code)
	req.Lang = lang

	created, err := s.ledger.RegisterUser(ctx, req.UserID, req.Username, string(lang))
	if err != nil {
		s.sendError(ctx, req)
		return fmt.Errorf("register %d: %w", req.UserID, err)
	}
	if created {
		s.postChannelCard(ctx, req)
	} else if req.Username != "" {
		if err := s.ledger.UpdateUsername(ctx, req.UserID, req.Username); err != nil {
			s.log.Warn("Failed to refresh username", zap.Int64("user_id", req.UserID), zap.Error(err))
		}
	}

	return s.greet(ctx, req)
}

// ChooseLanguage stores the picked language, registering the user on first
// use, and opens the main menu in that language.
func (s *Service) ChooseLanguage(ctx context.Context, req chat.Request, code string) error {
	lang, ok := i18n.Parse(code)
	if !ok {
		return fmt.Errorf("unsupported language %q", code)
	}
	req.Lang = lang

	created, err := s.ledger.RegisterUser(ctx, req.UserID, req.Username, string(lang))
	if err != nil {
		s.sendError(ctx, req)
		return fmt.Errorf("register %d: %w", req.UserID, err)
	}
	if !created {
		if err := s.ledger.SetUserLanguage(ctx, req.UserID, string(lang)); err != nil {
			s.sendError(ctx, req)
			return fmt.Errorf("set language for %d: %w", req.UserID, err)
		}
	} else {
		s.log.Info("New user chose language", zap.Int64("user_id", req.UserID), zap.String("language", string(lang)))
		s.postChannelCard(ctx, req)
	}

	if !req.Origin.IsZero() {
		if err := s.notifier.Delete(ctx, req.Origin); err != nil {
			s.log.Debug("Cannot delete language prompt", zap.Error(err))
		}
	}
	if _, err := s.notifier.Send(ctx, req.UserID, chat.Message{Text: s.catalog.T(lang, "lang_set")}); err != nil {
		return err
	}
	return s.greet(ctx, req)
}

func (s *Service) greet(ctx context.Context, req chat.Request) error {
	name := req.FirstName
	if name == "" {
		name = req.FullName
	}
	_, err := s.notifier.Send(ctx, req.UserID, chat.Message{
		Text:    s.catalog.T(req.Lang, "greeting", html.EscapeString(name)),
		Buttons: chat.MainMenu(s.catalog, req.Lang),
	})
	return err
}

// MainMenu re-sends the menu, for example after a finished action.
func (s *Service) MainMenu(ctx context.Context, req chat.Request) error {
	_, err := s.notifier.Send(ctx, req.UserID, chat.Message{
		Text:    s.catalog.T(req.Lang, "main_menu"),
		Buttons: chat.MainMenu(s.catalog, req.Lang),
	})
	return err
}

func (s *Service) Profile(ctx context.Context, req chat.Request) error {
	u, err := s.ledger.GetUser(ctx, req.UserID)
	if err != nil {
		s.sendError(ctx, req)
		return fmt.Errorf("profile for %d: %w", req.UserID, err)
	}

	name := html.EscapeString(req.FullName)
	if name == "" {
		name = "N/A"
	}
	username := "N/A"
	if u.Username != nil && *u.Username != "" {
		username = utils.AtHandle(*u.Username)
	}
	registered := "N/A"
	if !u.RegistrationDate.IsZero() {
		registered = u.RegistrationDate.Format("2006-01-02 15:04")
	}

	_, err = s.notifier.Send(ctx, req.UserID, chat.Message{
		Text: s.catalog.T(req.Lang, "profile_body",
			name,
			req.UserID,
			utils.FormatMoney(u.BalanceValue()),
			s.cfg.Currency,
			registered,
			username,
		),
		Buttons: chat.MainMenu(s.catalog, req.Lang),
	})
	return err
}

func (s *Service) Support(ctx context.Context, req chat.Request) error {
	msg := chat.Message{Text: s.catalog.T(req.Lang, "support_text")}
	if url := utils.TelegramURL(s.cfg.SupportHandle); url != "" {
		msg.Buttons = [][]chat.Button{chat.Row(chat.URLButton(s.catalog.T(req.Lang, "btn_contact_support"), url))}
	}
	_, err := s.notifier.Send(ctx, req.UserID, msg)
	return err
}

// NotifyStartup tells every administrator that the bot is up.
func (s *Service) NotifyStartup(ctx context.Context) {
	text := s.catalog.T(s.cfg.AdminLanguage, "bot_started")
	for _, adminID := range s.cfg.AdminIDs {
		if _, err := s.notifier.Send(ctx, adminID, chat.Message{Text: text}); err != nil {
			s.log.Error("Failed to send startup notice", zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

func (s *Service) postChannelCard(ctx context.Context, req chat.Request) {
	if s.cfg.ChannelID == 0 {
		s.log.Debug("Channel not configured, new user card skipped")
		return
	}

	fullName := html.EscapeString(req.FullName)
	if fullName == "" {
		fullName = "N/A"
	}
	username := "N/A"
	if req.Username != "" {
		username = utils.AtHandle(req.Username)
	}

	text := s.catalog.T(s.cfg.AdminLanguage, "new_user_card",
		fullName,
		username,
		req.UserID,
		s.now().Format("2006-01-02 15:04:05"),
	)
	if _, err := s.notifier.Send(ctx, s.cfg.ChannelID, chat.Message{Text: text}); err != nil {
		s.log.Error("Failed to post new user card", zap.Int64("channel_id", s.cfg.ChannelID), zap.Error(err))
	}
}

func (s *Service) sendError(ctx context.Context, req chat.Request) {
	lang := req.Lang
	if lang == "" {
		lang = i18n.Default
	}
	if _, err := s.notifier.Send(ctx, req.UserID, chat.Message{Text: s.catalog.T(lang, "error_try_later")}); err != nil {
		s.log.Warn("Failed to send error message", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
}
