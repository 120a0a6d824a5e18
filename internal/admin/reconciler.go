// internal/admin/reconciler.go
package admin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
	"github.com/rovshanmuradov/topup-shop-bot/internal/pending"
	"github.com/rovshanmuradov/topup-shop-bot/pkg/utils"
)

var ErrNotAdmin = errors.New("sender is not an administrator")

type Decision int

const (
	DecisionConfirm Decision = iota + 1
	DecisionReject
)

// ParseAction splits confirm_<id> and reject_<id> tokens. The remainder is
// taken literally as the payment id.
func ParseAction(data string) (Decision, string, bool) {
	if id, ok := chat.Suffix(data, chat.PrefixAdminConfirm); ok && id != "" {
		return DecisionConfirm, id, true
	}
	if id, ok := chat.Suffix(data, chat.PrefixAdminReject); ok && id != "" {
		return DecisionReject, id, true
	}
	return 0, "", false
}

type Ledger interface {
	ConfirmPayment(ctx context.Context, paymentID string) (ledger.Confirmation, error)
	RejectPayment(ctx context.Context, paymentID string) (int64, bool, error)
	UserLanguage(ctx context.Context, userID int64) (string, bool, error)
}

type Config struct {
	AdminIDs      []int64
	AdminLanguage i18n.Lang
	Currency      string
	// ContactHandle is shown to users whose payment was rejected.
	ContactHandle string
}

type Reconciler struct {
	cfg      Config
	ledger   Ledger
	notifier chat.Notifier
	tracker  pending.Tracker
	catalog  *i18n.Catalog
	log      *zap.Logger
}

func New(cfg Config, l Ledger, n chat.Notifier, tr pending.Tracker, c *i18n.Catalog) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		ledger:   l,
		notifier: n,
		tracker:  tr,
		catalog:  c,
		log:      logging.Named("admin"),
	}
}

func (r *Reconciler) IsAdmin(userID int64) bool {
	for _, id := range r.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Handle dispatches an administrator token. Tokens from anyone else return
// ErrNotAdmin and change nothing.
func (r *Reconciler) Handle(ctx context.Context, req chat.Request, data string) error {
	decision, paymentID, ok := ParseAction(data)
	if !ok {
		return fmt.Errorf("unknown admin action %q", data)
	}
	if !r.IsAdmin(req.UserID) {
		r.log.Warn("Admin action from non-admin", zap.Int64("user_id", req.UserID), zap.String("data", data))
		return ErrNotAdmin
	}

	if decision == DecisionConfirm {
		return r.Confirm(ctx, req, paymentID)
	}
	return r.Reject(ctx, req, paymentID)
}

// Confirm credits the payment and tells everyone involved.
func (r *Reconciler) Confirm(ctx context.Context, req chat.Request, paymentID string) error {
	log := r.log.With(zap.String("payment_id", paymentID), zap.Int64("admin_id", req.UserID))
	log.Info("Admin confirming payment")

	conf, err := r.ledger.ConfirmPayment(ctx, paymentID)
	if errors.Is(err, ledger.ErrPaymentNotFound) {
		log.Warn("Payment not found or already processed")
		r.tellAdmin(ctx, req.UserID, r.adminT("payment_not_found"))
		return nil
	}
	if err != nil {
		r.tellAdmin(ctx, req.UserID, r.adminT("error_check_payment"))
		return fmt.Errorf("confirm %s: %w", paymentID, err)
	}

	r.clearAdminCopies(ctx, req, paymentID)
	r.tellAdmin(ctx, req.UserID, r.adminT("admin_payment_confirmed", paymentID))
	r.forgetOwner(ctx, paymentID)
	r.clearWait(ctx, conf.UserID)

	lang := r.userLang(ctx, conf.UserID)
	msg := chat.Message{
		Text: r.catalog.T(lang, "payment_confirmed_user",
			utils.FormatMoney(conf.Amount),
			utils.FormatMoney(conf.NewBalance),
			r.cfg.Currency,
		),
		Buttons: chat.MainMenu(r.catalog, lang),
	}
	if _, err := r.notifier.Send(ctx, conf.UserID, msg); err != nil {
		log.Error("Failed to notify user about confirmation", zap.Int64("user_id", conf.UserID), zap.Error(err))
	} else {
		log.Info("Client notified about confirmed payment", zap.Int64("user_id", conf.UserID))
	}
	return nil
}

// Reject closes the payment without crediting and points the user to the
// administration.
func (r *Reconciler) Reject(ctx context.Context, req chat.Request, paymentID string) error {
	log := r.log.With(zap.String("payment_id", paymentID), zap.Int64("admin_id", req.UserID))
	log.Info("Admin rejecting payment")

	userID, rejected, err := r.ledger.RejectPayment(ctx, paymentID)
	if err != nil {
		r.tellAdmin(ctx, req.UserID, r.adminT("error_check_payment"))
		return fmt.Errorf("reject %s: %w", paymentID, err)
	}

	owner, hasOwner := r.forgetOwner(ctx, paymentID)
	if userID == 0 && hasOwner {
		userID = owner
	}

	if !rejected {
		log.Warn("Payment not found or not pending")
		r.tellAdmin(ctx, req.UserID, r.adminT("payment_not_found_or_not_pending"))
		return nil
	}

	r.clearAdminCopies(ctx, req, paymentID)
	r.tellAdmin(ctx, req.UserID, r.adminT("admin_payment_rejected", paymentID))

	if userID == 0 {
		log.Warn("Rejected payment has no known owner")
		return nil
	}
	r.clearWait(ctx, userID)

	if _, err := r.notifier.Send(ctx, userID, r.rejectionMessage(ctx, userID)); err != nil {
		log.Error("Failed to notify user about rejection", zap.Int64("user_id", userID), zap.Error(err))
	}
	log.Info("Payment rejected", zap.Int64("user_id", userID))
	return nil
}

func (r *Reconciler) rejectionMessage(ctx context.Context, userID int64) chat.Message {
	lang := r.userLang(ctx, userID)
	text := r.catalog.T(lang, "payment_rejected_user") + "\n" + r.catalog.T(lang, "contact_administration")

	handle := utils.AtHandle(r.cfg.ContactHandle)
	if handle == "" {
		return chat.Message{Text: text + ".", Buttons: chat.MainMenu(r.catalog, lang)}
	}
	return chat.Message{
		Text: text + " " + handle + ".",
		Buttons: [][]chat.Button{chat.Row(
			chat.URLButton(r.catalog.T(lang, "btn_contact_support"), utils.TelegramURL(handle)),
		)},
	}
}

// clearAdminCopies removes the pressed message and every other admin's copy.
func (r *Reconciler) clearAdminCopies(ctx context.Context, req chat.Request, paymentID string) {
	refs, err := r.tracker.TakeAdminMessages(ctx, paymentID)
	if err != nil {
		r.log.Warn("Failed to load admin messages", zap.String("payment_id", paymentID), zap.Error(err))
	}
	if !req.Origin.IsZero() {
		refs = append(refs, req.Origin)
	}

	seen := make(map[chat.MessageRef]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if err := r.notifier.Delete(ctx, ref); err != nil {
			r.log.Warn("Failed to delete admin message", zap.Int64("chat_id", ref.ChatID), zap.Error(err))
		}
	}
}

func (r *Reconciler) clearWait(ctx context.Context, userID int64) {
	ref, ok, err := r.tracker.TakeWait(ctx, userID)
	if err != nil {
		r.log.Warn("Failed to load wait message", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := r.notifier.Delete(ctx, ref); err != nil {
		r.log.Warn("Failed to delete wait message", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (r *Reconciler) forgetOwner(ctx context.Context, paymentID string) (int64, bool) {
	userID, ok, err := r.tracker.TakeOwner(ctx, paymentID)
	if err != nil {
		r.log.Warn("Failed to load payment owner", zap.String("payment_id", paymentID), zap.Error(err))
		return 0, false
	}
	return userID, ok
}

func (r *Reconciler) userLang(ctx context.Context, userID int64) i18n.Lang {
	code, ok, err := r.ledger.UserLanguage(ctx, userID)
	if err != nil {
		r.log.Warn("Failed to load user language", zap.Int64("user_id", userID), zap.Error(err))
	}
	if !ok {
		return i18n.Default
	}
	return i18n.OrDefault(code)
}

func (r *Reconciler) tellAdmin(ctx context.Context, adminID int64, text string) {
	if _, err := r.notifier.Send(ctx, adminID, chat.Message{Text: text}); err != nil {
		r.log.Error("Failed to reply to admin", zap.Int64("admin_id", adminID), zap.Error(err))
	}
}

func (r *Reconciler) adminT(key string, args ...any) string {
	return r.catalog.T(r.cfg.AdminLanguage, key, args...)
}
