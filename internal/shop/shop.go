// internal/shop/shop.go
package shop

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
	"github.com/rovshanmuradov/topup-shop-bot/pkg/utils"
)

type Product struct {
	ID string
	// NameKey is the catalog key of the display name.
	NameKey string
	Price   float64
}

var products = []Product{
	{ID: "1", NameKey: "product_1", Price: 100},
	{ID: "2", NameKey: "product_2", Price: 200},
	{ID: "3", NameKey: "product_3", Price: 300},
}

func Products() []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

func ProductByID(id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

type Ledger interface {
	GetUser(ctx context.Context, userID int64) (db.User, error)
	Debit(ctx context.Context, userID int64, amount float64) (float64, error)
}

type Config struct {
	AdminIDs      []int64
	AdminLanguage i18n.Lang
	Currency      string
	// CuratorHandle is where buyers collect their order.
	CuratorHandle string
}

type Shop struct {
	cfg      Config
	ledger   Ledger
	notifier chat.Notifier
	catalog  *i18n.Catalog
	log      *zap.Logger
}

func New(cfg Config, l Ledger, n chat.Notifier, c *i18n.Catalog) *Shop {
	return &Shop{
		cfg:      cfg,
		ledger:   l,
		notifier: n,
		catalog:  c,
		log:      logging.Named("shop"),
	}
}

// HandleAction routes a shop:* callback.
func (s *Shop) HandleAction(ctx context.Context, req chat.Request, data string) error {
	if id, ok := chat.Suffix(data, chat.PrefixShopSelect); ok {
		return s.Select(ctx, req, id)
	}
	if id, ok := chat.Suffix(data, chat.PrefixShopBuy); ok {
		return s.Buy(ctx, req, id)
	}
	if data == chat.ActionShopCancel {
		return s.Cancel(ctx, req)
	}
	return s.send(ctx, req, chat.Message{
		Text:    s.t(req, "invalid_action"),
		Buttons: chat.MainMenu(s.catalog, req.Lang),
	})
}

// Catalog lists the products.
func (s *Shop) Catalog(ctx context.Context, req chat.Request) error {
	buttons := make([][]chat.Button, 0, len(products))
	for _, p := range products {
		label := fmt.Sprintf("%s | %s %s", s.t(req, p.NameKey), utils.FormatMoney(p.Price), s.cfg.Currency)
		buttons = append(buttons, chat.Row(chat.DataButton(label, chat.PrefixShopSelect+p.ID)))
	}
	return s.replace(ctx, req, chat.Message{Text: s.t(req, "choose_product"), Buttons: buttons})
}

func (s *Shop) Select(ctx context.Context, req chat.Request, productID string) error {
	p, ok := ProductByID(productID)
	if !ok {
		return s.replace(ctx, req, chat.Message{
			Text:    s.t(req, "product_not_found"),
			Buttons: chat.MainMenu(s.catalog, req.Lang),
		})
	}

	return s.replace(ctx, req, chat.Message{
		Text: s.t(req, "purchase_confirm_body", s.t(req, p.NameKey), utils.FormatMoney(p.Price), s.cfg.Currency),
		Buttons: [][]chat.Button{chat.Row(
			chat.DataButton(s.t(req, "confirm"), chat.PrefixShopBuy+p.ID),
			chat.DataButton(s.t(req, "cancel"), chat.ActionShopCancel),
		)},
	})
}

// Buy debits the price and tells the administrators and the buyer. A short
// balance leaves the ledger untouched. The confirmation message is single use:
// deleting it claims the purchase, so a second tap on it buys nothing.
func (s *Shop) Buy(ctx context.Context, req chat.Request, productID string) error {
	p, ok := ProductByID(productID)
	if !ok {
		return s.replace(ctx, req, chat.Message{
			Text:    s.t(req, "product_not_found"),
			Buttons: chat.MainMenu(s.catalog, req.Lang),
		})
	}

	if !req.Origin.IsZero() {
		if err := s.notifier.Delete(ctx, req.Origin); err != nil {
			s.log.Warn("Purchase confirmation already used",
				zap.Int64("user_id", req.UserID),
				zap.Int("message_id", req.Origin.MessageID),
				zap.Error(err))
			return nil
		}
		req.Origin = chat.MessageRef{}
	}

	balance, err := s.ledger.Debit(ctx, req.UserID, p.Price)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return s.insufficient(ctx, req, p)
	}
	if err != nil {
		s.log.Error("Purchase failed", zap.Int64("user_id", req.UserID), zap.String("product", p.ID), zap.Error(err))
		_ = s.replace(ctx, req, chat.Message{Text: s.t(req, "error_try_later")})
		return fmt.Errorf("buy product %s: %w", p.ID, err)
	}

	s.log.Info("Product purchased",
		zap.Int64("user_id", req.UserID),
		zap.String("product", p.ID),
		zap.Float64("price", p.Price),
		zap.Float64("balance", balance))

	text := s.t(req, "purchase_success", s.t(req, p.NameKey), utils.FormatMoney(p.Price), utils.FormatMoney(balance), s.cfg.Currency)
	msg := chat.Message{Text: text, Buttons: chat.MainMenu(s.catalog, req.Lang)}
	if handle := utils.AtHandle(s.cfg.CuratorHandle); handle != "" {
		msg.Text += "\n\n" + s.t(req, "purchase_contact", handle)
	}

	s.notifyAdmins(ctx, req, p)
	if err := s.send(ctx, req, msg); err != nil {
		s.log.Error("Failed to confirm purchase to buyer", zap.Int64("user_id", req.UserID), zap.Error(err))
		return fmt.Errorf("notify buyer of product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Shop) insufficient(ctx context.Context, req chat.Request, p Product) error {
	u, err := s.ledger.GetUser(ctx, req.UserID)
	if err != nil {
		_ = s.replace(ctx, req, chat.Message{Text: s.t(req, "error_try_later")})
		return fmt.Errorf("read balance: %w", err)
	}
	balance := u.BalanceValue()
	missing := p.Price - balance
	if missing < 0 {
		missing = 0
	}

	return s.replace(ctx, req, chat.Message{
		Text: s.t(req, "insufficient_body",
			utils.FormatMoney(p.Price),
			utils.FormatMoney(balance),
			utils.FormatMoney(missing),
			s.cfg.Currency),
		Buttons: [][]chat.Button{
			chat.Row(chat.DataButton(s.t(req, "btn_topup"), chat.ActionTopup)),
			chat.Row(chat.DataButton(s.t(req, "btn_products"), chat.ActionProducts)),
		},
	})
}

func (s *Shop) Cancel(ctx context.Context, req chat.Request) error {
	return s.replace(ctx, req, chat.Message{
		Text:    s.t(req, "purchase_cancelled"),
		Buttons: chat.MainMenu(s.catalog, req.Lang),
	})
}

func (s *Shop) notifyAdmins(ctx context.Context, req chat.Request, p Product) {
	username := "N/A"
	if req.Username != "" {
		username = utils.AtHandle(req.Username)
	}
	text := s.catalog.T(s.cfg.AdminLanguage, "admin_purchase",
		req.UserID,
		username,
		s.catalog.T(s.cfg.AdminLanguage, p.NameKey),
		utils.FormatMoney(p.Price),
		s.cfg.Currency,
	)
	for _, adminID := range s.cfg.AdminIDs {
		if _, err := s.notifier.Send(ctx, adminID, chat.Message{Text: text}); err != nil {
			s.log.Error("Failed to notify admin about purchase", zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

func (s *Shop) replace(ctx context.Context, req chat.Request, msg chat.Message) error {
	if !req.Origin.IsZero() {
		if err := s.notifier.Delete(ctx, req.Origin); err != nil {
			s.log.Debug("Cannot delete previous message", zap.Error(err))
		}
	}
	return s.send(ctx, req, msg)
}

func (s *Shop) send(ctx context.Context, req chat.Request, msg chat.Message) error {
	_, err := s.notifier.Send(ctx, req.UserID, msg)
	return err
}

func (s *Shop) t(req chat.Request, key string, args ...any) string {
	return s.catalog.T(req.Lang, key, args...)
}
