// internal/bot/router.go
package bot

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/account"
	"github.com/rovshanmuradov/topup-shop-bot/internal/admin"
	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
	"github.com/rovshanmuradov/topup-shop-bot/internal/shop"
	"github.com/rovshanmuradov/topup-shop-bot/internal/topup"
)

type LanguageSource interface {
	UserLanguage(ctx context.Context, userID int64) (string, bool, error)
}

// Services are the handlers an update can reach.
type Services struct {
	Languages LanguageSource
	Account   *account.Service
	Topup     *topup.Workflow
	Admin     *admin.Reconciler
	Shop      *shop.Shop
	Catalog   *i18n.Catalog
	Notifier  chat.Notifier
}

// Router maps commands, text and callback tokens to services. It knows nothing
// about the Telegram client, which keeps it testable with a recording notifier.
type Router struct {
	svc   Services
	locks *userLocks
	log   *zap.Logger
}

func NewRouter(svc Services) *Router {
	return &Router{
		svc:   svc,
		locks: newUserLocks(),
		log:   logging.Named("router"),
	}
}

// Command handles a slash command such as "/profile" or "/start@shop_bot".
func (r *Router) Command(ctx context.Context, req chat.Request, text string) {
	cmd := commandName(text)
	if cmd == "/cancel" {
		r.cancel(ctx, req)
		return
	}

	defer r.locks.Lock(req.UserID)()
	r.command(ctx, r.resolve(ctx, req), cmd)
}

// cancel skips the user lock: it must not wait behind a slow transition.
// The workflow drops any result a concurrent transition tries to store.
func (r *Router) cancel(ctx context.Context, req chat.Request) {
	req = r.resolve(ctx, req)
	r.log.Debug("Cancel", zap.Int64("user_id", req.UserID))
	r.svc.Topup.Cancel(ctx, req)
}

func (r *Router) command(ctx context.Context, req chat.Request, cmd string) {
	r.log.Debug("Command", zap.Int64("user_id", req.UserID), zap.String("command", cmd))

	if cmd != "/start" && !r.registered(ctx, req) {
		cmd = "/start"
	}

	switch cmd {
	case "/profile":
		r.svc.Topup.Reset(req.UserID)
		r.report("profile", r.svc.Account.Profile(ctx, req))
	case "/products":
		r.svc.Topup.Reset(req.UserID)
		r.report("catalog", r.svc.Shop.Catalog(ctx, req))
	case "/topup":
		r.svc.Topup.Start(ctx, req)
	case "/support":
		r.svc.Topup.Reset(req.UserID)
		r.report("support", r.svc.Account.Support(ctx, req))
	default:
		// /start and anything unknown begin from scratch.
		r.svc.Topup.Reset(req.UserID)
		r.report("start", r.svc.Account.Start(ctx, req))
	}
}

// Text handles plain messages. Inside a top-up they are the amount, anywhere
// else they are stray input.
func (r *Router) Text(ctx context.Context, req chat.Request, text string) {
	if strings.HasPrefix(text, "/") {
		r.Command(ctx, req, text)
		return
	}

	defer r.locks.Lock(req.UserID)()
	req = r.resolve(ctx, req)

	if r.svc.Topup.Active(req.UserID) {
		r.svc.Topup.EnterAmount(ctx, req, text)
		return
	}
	if !r.registered(ctx, req) {
		r.report("start", r.svc.Account.Start(ctx, req))
		return
	}
	r.svc.Topup.Stray(ctx, req)
}

// Callback handles an inline button press and returns the alert to show, if any.
func (r *Router) Callback(ctx context.Context, req chat.Request, data string) string {
	if data == chat.ActionCancel {
		r.cancel(ctx, req)
		return ""
	}

	defer r.locks.Lock(req.UserID)()
	req = r.resolve(ctx, req)

	r.log.Debug("Callback", zap.Int64("user_id", req.UserID), zap.String("data", data))

	if code, ok := chat.Suffix(data, chat.PrefixLanguage); ok {
		r.report("language", r.svc.Account.ChooseLanguage(ctx, req, code))
		return ""
	}

	if _, _, ok := admin.ParseAction(data); ok {
		err := r.svc.Admin.Handle(ctx, req, data)
		if errors.Is(err, admin.ErrNotAdmin) {
			return r.svc.Catalog.T(req.Lang, "admin_only")
		}
		r.report("admin decision", err)
		return ""
	}

	if !r.registered(ctx, req) {
		r.report("start", r.svc.Account.Start(ctx, req))
		return ""
	}

	switch {
	case data == chat.ActionProfile:
		r.svc.Topup.Reset(req.UserID)
		r.report("profile", r.svc.Account.Profile(ctx, req))
	case data == chat.ActionProducts:
		r.svc.Topup.Reset(req.UserID)
		r.report("catalog", r.svc.Shop.Catalog(ctx, req))
	case data == chat.ActionTopup:
		r.svc.Topup.Start(ctx, req)
	case data == chat.ActionSupport:
		r.svc.Topup.Reset(req.UserID)
		r.report("support", r.svc.Account.Support(ctx, req))
	case strings.HasPrefix(data, chat.PrefixTopup):
		r.svc.Topup.HandleAction(ctx, req, data)
	case strings.HasPrefix(data, chat.PrefixShop):
		r.svc.Topup.Reset(req.UserID)
		r.report("shop", r.svc.Shop.HandleAction(ctx, req, data))
	default:
		r.svc.Topup.Stray(ctx, req)
	}
	return ""
}

// resolve fills in the stored language. Unknown users get the default.
func (r *Router) resolve(ctx context.Context, req chat.Request) chat.Request {
	req.Lang = i18n.Default
	code, found, err := r.svc.Languages.UserLanguage(ctx, req.UserID)
	if err != nil {
		r.log.Warn("Cannot read user language", zap.Int64("user_id", req.UserID), zap.Error(err))
		return req
	}
	if found {
		req.Lang = i18n.OrDefault(code)
	}
	return req
}

func (r *Router) registered(ctx context.Context, req chat.Request) bool {
	ok, err := r.svc.Account.Registered(ctx, req.UserID)
	if err != nil {
		r.log.Warn("Cannot check registration", zap.Int64("user_id", req.UserID), zap.Error(err))
		return false
	}
	return ok
}

func (r *Router) report(op string, err error) {
	if err != nil {
		r.log.Error("Handler failed", zap.String("op", op), zap.Error(err))
	}
}

func commandName(text string) string {
	cmd := strings.Fields(text)
	if len(cmd) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(cmd[0], "@")
	return strings.ToLower(name)
}
