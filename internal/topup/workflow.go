// internal/topup/workflow.go
package topup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
	"github.com/rovshanmuradov/topup-shop-bot/internal/pending"
	"github.com/rovshanmuradov/topup-shop-bot/pkg/utils"
)

// Outcome tags the result of a transition.
type Outcome int

const (
	// Advanced means the session moved on, or finished with a recorded request.
	Advanced Outcome = iota
	// Retry means the input was rejected and the step is unchanged.
	Retry
	// Aborted means the session was discarded.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Retry:
		return "retry"
	default:
		return "aborted"
	}
}

type Ledger interface {
	RecordPaymentRequest(ctx context.Context, p ledger.NewPayment) (string, error)
}

type PriceOracle interface {
	Price(ctx context.Context, coinID string) (float64, error)
}

// PriceFunc adapts a function to PriceOracle.
type PriceFunc func(ctx context.Context, coinID string) (float64, error)

func (f PriceFunc) Price(ctx context.Context, coinID string) (float64, error) {
	return f(ctx, coinID)
}

type Config struct {
	AdminIDs      []int64
	AdminLanguage i18n.Lang
	Currency      string
	FiatLink      string
	Addresses     AddressBook
	StrayDelay    time.Duration
}

type Workflow struct {
	cfg      Config
	ledger   Ledger
	prices   PriceOracle
	notifier chat.Notifier
	tracker  pending.Tracker
	catalog  *i18n.Catalog
	sessions *sessions
	log      *zap.Logger
}

func New(cfg Config, l Ledger, prices PriceOracle, n chat.Notifier, tr pending.Tracker, c *i18n.Catalog) *Workflow {
	return &Workflow{
		cfg:      cfg,
		ledger:   l,
		prices:   prices,
		notifier: n,
		tracker:  tr,
		catalog:  c,
		sessions: newSessions(),
		log:      logging.Named("topup"),
	}
}

// Active reports whether the user is inside a top-up.
func (w *Workflow) Active(userID int64) bool {
	_, ok := w.sessions.get(userID)
	return ok
}

// Session returns a copy of the user's session, if any.
func (w *Workflow) Session(userID int64) (Session, bool) {
	return w.sessions.get(userID)
}

// Reset discards the session without telling the user, for when they move to
// another part of the bot.
func (w *Workflow) Reset(userID int64) {
	w.sessions.drop(userID)
}

// Start opens a fresh session at method selection.
func (w *Workflow) Start(ctx context.Context, req chat.Request) Outcome {
	gen := w.sessions.drop(req.UserID)

	var rows [][]chat.Button
	if w.cfg.FiatLink != "" {
		rows = append(rows, chat.Row(chat.DataButton(w.t(req, "btn_fiat"), chat.ActionMethodFiat)))
	}
	rows = append(rows,
		chat.Row(chat.DataButton(w.t(req, "btn_crypto"), chat.ActionMethodCrypto)),
		w.cancelRow(req),
	)

	if _, err := w.notifier.Send(ctx, req.UserID, chat.Message{Text: w.t(req, "topup_choose_method"), Buttons: rows}); err != nil {
		return w.fail(ctx, req, "start", err)
	}

	if !w.sessions.put(req.UserID, Session{Step: StepSelectMethod, gen: gen}) {
		return Aborted
	}
	w.log.Info("Top-up started", zap.Int64("user_id", req.UserID))
	return Advanced
}

// HandleAction applies a topup:* callback token.
func (w *Workflow) HandleAction(ctx context.Context, req chat.Request, data string) Outcome {
	if data == chat.ActionCancel {
		return w.Cancel(ctx, req)
	}

	sess, ok := w.sessions.get(req.UserID)
	if !ok {
		return w.Stray(ctx, req)
	}

	w.log.Debug("Top-up action", zap.Int64("user_id", req.UserID), zap.Stringer("step", sess.Step), zap.String("data", data))

	switch sess.Step {
	case StepSelectMethod:
		return w.selectMethod(ctx, req, sess, data)
	case StepSelectCrypto:
		return w.selectCrypto(ctx, req, sess, data)
	case StepSelectUSDTNetwork:
		return w.selectNetwork(ctx, req, sess, data)
	case StepConfirmPayment:
		if data == chat.ActionConfirm {
			return w.confirm(ctx, req, sess)
		}
	}
	return w.Stray(ctx, req)
}

func (w *Workflow) selectMethod(ctx context.Context, req chat.Request, sess Session, data string) Outcome {
	switch data {
	case chat.ActionMethodFiat:
		if w.cfg.FiatLink == "" {
			return w.Stray(ctx, req)
		}
		sess = Session{Step: StepEnterAmount, Method: db.MethodFiatLink, gen: sess.gen}
		return w.promptAmount(ctx, req, sess)

	case chat.ActionMethodCrypto:
		var rows [][]chat.Button
		var row []chat.Button
		for _, a := range assets {
			row = append(row, chat.DataButton(a.Label, chat.PrefixCrypto+a.Code))
			if len(row) == 3 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		rows = append(rows, w.cancelRow(req))

		if err := w.replace(ctx, req, chat.Message{Text: w.t(req, "choose_crypto"), Buttons: rows}); err != nil {
			return w.fail(ctx, req, "select_method", err)
		}
		if !w.sessions.put(req.UserID, Session{Step: StepSelectCrypto, Method: db.MethodCrypto, gen: sess.gen}) {
			return Aborted
		}
		return Advanced
	}
	return w.Stray(ctx, req)
}

func (w *Workflow) selectCrypto(ctx context.Context, req chat.Request, sess Session, data string) Outcome {
	code, ok := chat.Suffix(data, chat.PrefixCrypto)
	if !ok {
		return w.Stray(ctx, req)
	}
	asset, ok := AssetByCode(code)
	if !ok {
		return w.Stray(ctx, req)
	}
	sess.Asset = &asset

	if !asset.NeedsNetwork() {
		sess.Step = StepEnterAmount
		return w.promptAmount(ctx, req, sess)
	}

	var row []chat.Button
	for _, n := range asset.Networks {
		row = append(row, chat.DataButton(n.Label, chat.PrefixNetwork+n.Code))
	}
	msg := chat.Message{
		Text:    w.t(req, "choose_usdt_network"),
		Buttons: [][]chat.Button{row, w.cancelRow(req)},
	}
	if err := w.replace(ctx, req, msg); err != nil {
		return w.fail(ctx, req, "select_crypto", err)
	}
	sess.Step = StepSelectUSDTNetwork
	if !w.sessions.put(req.UserID, sess) {
		return Aborted
	}
	return Advanced
}

func (w *Workflow) selectNetwork(ctx context.Context, req chat.Request, sess Session, data string) Outcome {
	code, ok := chat.Suffix(data, chat.PrefixNetwork)
	if !ok || sess.Asset == nil {
		return w.Stray(ctx, req)
	}
	network, ok := sess.Asset.Network(code)
	if !ok {
		return w.Stray(ctx, req)
	}
	sess.Network = &network
	sess.Step = StepEnterAmount
	return w.promptAmount(ctx, req, sess)
}

func (w *Workflow) promptAmount(ctx context.Context, req chat.Request, sess Session) Outcome {
	msg := chat.Message{
		Text:    w.t(req, "prompt_enter_amount", w.cfg.Currency),
		Buttons: [][]chat.Button{w.cancelRow(req)},
	}
	if err := w.replace(ctx, req, msg); err != nil {
		return w.fail(ctx, req, "prompt_amount", err)
	}
	if !w.sessions.put(req.UserID, sess) {
		return Aborted
	}
	return Advanced
}

// EnterAmount handles free text while a session is open. Text outside the
// amount step is stray input.
func (w *Workflow) EnterAmount(ctx context.Context, req chat.Request, text string) Outcome {
	sess, ok := w.sessions.get(req.UserID)
	if !ok || sess.Step != StepEnterAmount {
		return w.Stray(ctx, req)
	}

	amount, err := ParseAmount(text)
	if err != nil {
		reply := w.t(req, "enter_valid_number")
		switch {
		case errors.Is(err, ErrNotPositive):
			reply = w.t(req, "enter_positive_amount")
		case errors.Is(err, ErrTooLarge):
			reply = w.t(req, "enter_amount_too_large", MaxAmount.StringFixed(2), w.cfg.Currency)
		}
		if _, sendErr := w.notifier.Send(ctx, req.UserID, chat.Message{Text: reply}); sendErr != nil {
			return w.fail(ctx, req, "enter_amount", sendErr)
		}
		return Retry
	}

	sess.Amount = amount
	sess.CryptoAmount = nil
	if sess.IsCrypto() && sess.Asset != nil {
		sess.CryptoAmount = w.snapshot(ctx, *sess.Asset, amount)
	}
	// The price lookup may be slow; a cancel meanwhile wins.
	if !w.sessions.live(req.UserID, sess.gen) {
		w.log.Info("Top-up cancelled during amount entry", zap.Int64("user_id", req.UserID))
		return Aborted
	}

	msg := w.confirmationMessage(req, sess)
	ref, err := w.notifier.Send(ctx, req.UserID, msg)
	if err != nil {
		return w.fail(ctx, req, "enter_amount", err)
	}

	sess.Step = StepConfirmPayment
	if !w.sessions.put(req.UserID, sess) {
		if err := w.notifier.Delete(ctx, ref); err != nil {
			w.log.Debug("Cannot delete stale confirmation", zap.Error(err))
		}
		return Aborted
	}
	return Advanced
}

// snapshot prices the amount once. An oracle failure leaves it unknown.
func (w *Workflow) snapshot(ctx context.Context, asset Asset, amount float64) *float64 {
	price, err := w.prices.Price(ctx, asset.CoinID)
	if err != nil {
		w.log.Warn("Price unavailable", zap.String("asset", asset.Code), zap.Error(err))
		return nil
	}
	q := Convert(amount, price, asset.Decimals)
	if q == nil {
		w.log.Warn("Unusable price", zap.String("asset", asset.Code), zap.Float64("price", price))
	}
	return q
}

func (w *Workflow) confirmationMessage(req chat.Request, sess Session) chat.Message {
	amount := utils.FormatMoney(sess.Amount)

	if !sess.IsCrypto() {
		return chat.Message{
			Text: w.t(req, "fiat_confirm_body", amount, w.cfg.Currency),
			Buttons: [][]chat.Button{
				chat.Row(chat.URLButton(w.t(req, "fiat_open"), w.cfg.FiatLink)),
				chat.Row(chat.DataButton(w.t(req, "fiat_confirm_btn"), chat.ActionConfirm)),
				w.cancelRow(req),
			},
		}
	}

	network, networkCode := "N/A", ""
	if sess.Network != nil {
		network, networkCode = sess.Network.Label, sess.Network.Code
	}
	addr := w.cfg.Addresses.Address(sess.Asset.Code, networkCode)

	msg := chat.Message{
		Text: w.t(req, "crypto_confirm_body",
			sess.Method,
			amount,
			w.cfg.Currency,
			sess.Asset.Label,
			network,
			utils.FormatCryptoAmount(sess.CryptoAmount, int(sess.Asset.Decimals)),
			orNA(addr),
		),
		Buttons: [][]chat.Button{chat.Row(
			chat.DataButton(w.t(req, "confirm"), chat.ActionConfirm),
			chat.DataButton(w.t(req, "cancel"), chat.ActionCancel),
		)},
	}
	if addr != "" {
		if png, err := utils.AddressQR(addr); err == nil {
			msg.Photo = png
		} else {
			w.log.Warn("QR code not rendered", zap.Error(err))
		}
	}
	return msg
}

func (w *Workflow) confirm(ctx context.Context, req chat.Request, sess Session) Outcome {
	if !w.sessions.live(req.UserID, sess.gen) {
		return Aborted
	}
	w.deleteOrigin(ctx, req)

	np := ledger.NewPayment{
		UserID:       req.UserID,
		Method:       sess.Method,
		Amount:       sess.Amount,
		CryptoAmount: sess.CryptoAmount,
	}
	if sess.Asset != nil {
		code := sess.Asset.Code
		np.Crypto = &code
	}
	if sess.Network != nil {
		code := sess.Network.Code
		np.Network = &code
	}

	paymentID, err := w.ledger.RecordPaymentRequest(ctx, np)
	if err != nil {
		return w.fail(ctx, req, "confirm", err)
	}
	w.sessions.drop(req.UserID)

	log := w.log.With(zap.String("payment_id", paymentID), zap.Int64("user_id", req.UserID))

	if err := w.tracker.SetOwner(ctx, paymentID, req.UserID); err != nil {
		log.Warn("Failed to remember payment owner", zap.Error(err))
	}

	ref, err := w.notifier.Send(ctx, req.UserID, chat.Message{Text: w.t(req, "payment_request_sent")})
	if err != nil {
		log.Error("Failed to send wait message", zap.Error(err))
	} else if err := w.tracker.SetWait(ctx, req.UserID, ref); err != nil {
		log.Warn("Failed to remember wait message", zap.Error(err))
	}

	w.broadcast(ctx, req, np, paymentID)
	log.Info("Payment request sent to admins")
	return Advanced
}

// broadcast sends the request to every administrator. A failing admin is
// logged and skipped.
func (w *Workflow) broadcast(ctx context.Context, req chat.Request, np ledger.NewPayment, paymentID string) {
	lang := w.cfg.AdminLanguage
	decimals := 6
	if np.Crypto != nil {
		if a, ok := AssetByCode(*np.Crypto); ok {
			decimals = int(a.Decimals)
		}
	}

	username := "N/A"
	if req.Username != "" {
		username = utils.AtHandle(req.Username)
	}

	msg := chat.Message{
		Text: w.catalog.T(lang, "admin_request",
			req.UserID,
			username,
			np.Method,
			utils.FormatMoney(np.Amount),
			w.cfg.Currency,
			utils.OrNA(np.Crypto),
			utils.FormatCryptoAmount(np.CryptoAmount, decimals),
			utils.OrNA(np.Network),
			paymentID,
		),
		Buttons: [][]chat.Button{chat.Row(
			chat.DataButton(w.catalog.T(lang, "confirm"), chat.PrefixAdminConfirm+paymentID),
			chat.DataButton(w.catalog.T(lang, "btn_reject"), chat.PrefixAdminReject+paymentID),
		)},
	}

	for _, adminID := range w.cfg.AdminIDs {
		ref, err := w.notifier.Send(ctx, adminID, msg)
		if err != nil {
			w.log.Error("Failed to notify admin", zap.Int64("admin_id", adminID), zap.String("payment_id", paymentID), zap.Error(err))
			continue
		}
		if err := w.tracker.AddAdminMessage(ctx, paymentID, ref); err != nil {
			w.log.Warn("Failed to remember admin message", zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

// Cancel discards the session. No request exists before confirmation, so
// nothing else needs undoing.
func (w *Workflow) Cancel(ctx context.Context, req chat.Request) Outcome {
	w.sessions.drop(req.UserID)
	w.deleteOrigin(ctx, req)

	msg := chat.Message{
		Text:    w.t(req, "payment_cancelled"),
		Buttons: chat.MainMenu(w.catalog, req.Lang),
	}
	if _, err := w.notifier.Send(ctx, req.UserID, msg); err != nil {
		w.log.Warn("Failed to confirm cancellation", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
	w.log.Info("Top-up cancelled", zap.Int64("user_id", req.UserID))
	return Aborted
}

// Stray ends the session on unrelated input and shows the main menu after a
// short pause, so a burst of messages collapses into fewer replies.
func (w *Workflow) Stray(ctx context.Context, req chat.Request) Outcome {
	w.sessions.drop(req.UserID)

	if w.cfg.StrayDelay > 0 {
		timer := time.NewTimer(w.cfg.StrayDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Aborted
		case <-timer.C:
		}
	}

	msg := chat.Message{
		Text:    w.t(req, "invalid_action"),
		Buttons: chat.MainMenu(w.catalog, req.Lang),
	}
	if _, err := w.notifier.Send(ctx, req.UserID, msg); err != nil {
		w.log.Warn("Failed to answer stray input", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
	return Aborted
}

// fail is the error boundary of every transition: log, drop the session and
// show the generic retry message.
func (w *Workflow) fail(ctx context.Context, req chat.Request, op string, err error) Outcome {
	w.log.Error("Top-up step failed", zap.String("op", op), zap.Int64("user_id", req.UserID), zap.Error(err))
	w.sessions.drop(req.UserID)

	msg := chat.Message{
		Text:    w.t(req, "error_try_later"),
		Buttons: chat.MainMenu(w.catalog, req.Lang),
	}
	if _, sendErr := w.notifier.Send(ctx, req.UserID, msg); sendErr != nil {
		w.log.Warn("Failed to send error message", zap.Int64("user_id", req.UserID), zap.Error(sendErr))
	}
	return Aborted
}

// replace swaps the message that carried the pressed button for msg.
func (w *Workflow) replace(ctx context.Context, req chat.Request, msg chat.Message) error {
	w.deleteOrigin(ctx, req)
	_, err := w.notifier.Send(ctx, req.UserID, msg)
	return err
}

func (w *Workflow) deleteOrigin(ctx context.Context, req chat.Request) {
	if req.Origin.IsZero() {
		return
	}
	if err := w.notifier.Delete(ctx, req.Origin); err != nil {
		w.log.Debug("Cannot delete message", zap.Int("message_id", req.Origin.MessageID), zap.Error(err))
	}
}

func (w *Workflow) cancelRow(req chat.Request) []chat.Button {
	return chat.Row(chat.DataButton(w.t(req, "cancel"), chat.ActionCancel))
}

func (w *Workflow) t(req chat.Request, key string, args ...any) string {
	return w.catalog.T(req.Lang, key, args...)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
