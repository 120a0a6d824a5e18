package topup

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/chat/chattest"
	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
	"github.com/rovshanmuradov/topup-shop-bot/internal/pending"
)

const (
	userID  int64 = 1001
	admin1  int64 = 900
	admin2  int64 = 901
	fiatURL       = "https://pay.example.com/shop"
)

type fixture struct {
	wf      *Workflow
	store   *ledger.Store
	rec     *chattest.Recorder
	tracker *pending.Memory
	cat     *i18n.Catalog
	req     chat.Request
}

func newFixture(t *testing.T, prices PriceFunc, mutate ...func(*Config)) *fixture {
	t.Helper()
	gdb, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "topup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	cfg := Config{
		AdminIDs:      []int64{admin1, admin2},
		AdminLanguage: i18n.RU,
		Currency:      "EUR",
		FiatLink:      fiatURL,
		Addresses: AddressBook{
			Fallback:  "fallback-address",
			ByAsset:   map[string]string{"btc": "bc1-btc-address"},
			ByNetwork: map[string]string{"trc20": "T-trc20-address"},
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	if prices == nil {
		prices = func(context.Context, string) (float64, error) { return 20, nil }
	}

	f := &fixture{
		store:   ledger.NewStore(gdb),
		rec:     chattest.New(),
		tracker: pending.NewMemory(),
		cat:     i18n.MustLoad(),
		req:     chat.Request{UserID: userID, Username: "buyer", FullName: "Buyer", Lang: i18n.EN},
	}
	f.wf = New(cfg, f.store, prices, f.rec, f.tracker, f.cat)
	return f
}

func (f *fixture) step(t *testing.T) Step {
	t.Helper()
	sess, ok := f.wf.Session(userID)
	if !ok {
		return StepIdle
	}
	return sess.Step
}

func (f *fixture) lastToUser(t *testing.T) chat.Message {
	t.Helper()
	last, ok := f.rec.Last(userID)
	require.True(t, ok, "no message to user")
	return last.Msg
}

func (f *fixture) payments(t *testing.T) []db.PaymentRequest {
	t.Helper()
	out, err := f.store.ListPayments(context.Background(), "", 100)
	require.NoError(t, err)
	return out
}

func TestFiatTopUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.Equal(t, Advanced, f.wf.Start(ctx, f.req))
	assert.Equal(t, StepSelectMethod, f.step(t))
	assert.Equal(t,
		[]string{chat.ActionMethodFiat, chat.ActionMethodCrypto, chat.ActionCancel},
		chattest.ButtonData(f.lastToUser(t)))

	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionMethodFiat))
	assert.Equal(t, StepEnterAmount, f.step(t))
	assert.Equal(t, f.cat.T(i18n.EN, "prompt_enter_amount", "EUR"), f.lastToUser(t).Text)

	require.Equal(t, Advanced, f.wf.EnterAmount(ctx, f.req, "25"))
	assert.Equal(t, StepConfirmPayment, f.step(t))
	confirmMsg := f.lastToUser(t)
	assert.Contains(t, confirmMsg.Text, "25.00 EUR")
	assert.Equal(t, []string{fiatURL}, chattest.ButtonURLs(confirmMsg))
	assert.Contains(t, chattest.ButtonData(confirmMsg), chat.ActionConfirm)

	f.req.Origin = chat.MessageRef{ChatID: userID, MessageID: 3}
	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))
	assert.False(t, f.wf.Active(userID))
	assert.True(t, f.rec.WasDeleted(f.req.Origin))

	payments := f.payments(t)
	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, db.MethodFiatLink, p.Method)
	assert.Equal(t, 25.0, p.Amount)
	assert.Equal(t, db.StatusPending, p.Status)
	assert.Nil(t, p.Crypto)
	assert.Nil(t, p.CryptoAmount)

	assert.Equal(t, f.cat.T(i18n.EN, "payment_request_sent"), f.lastToUser(t).Text)

	for _, adminID := range []int64{admin1, admin2} {
		last, ok := f.rec.Last(adminID)
		require.True(t, ok)
		assert.Contains(t, last.Msg.Text, p.PaymentID)
		assert.Contains(t, last.Msg.Text, "@buyer")
		assert.Equal(t, []string{"confirm_" + p.PaymentID, "reject_" + p.PaymentID}, chattest.ButtonData(last.Msg))
	}

	ctxb := context.Background()
	wait, ok, err := f.tracker.TakeWait(ctxb, userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, userID, wait.ChatID)

	owner, ok, err := f.tracker.TakeOwner(ctxb, p.PaymentID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, userID, owner)

	refs, err := f.tracker.TakeAdminMessages(ctxb, p.PaymentID)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestCryptoSnapshotForVolatileAsset(t *testing.T) {
	var asked string
	f := newFixture(t, func(_ context.Context, coinID string) (float64, error) {
		asked = coinID
		return 20.0, nil
	})
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionMethodCrypto))
	assert.Equal(t, StepSelectCrypto, f.step(t))
	assert.Contains(t, chattest.ButtonData(f.lastToUser(t)), chat.PrefixCrypto+"usdt")

	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.PrefixCrypto+"btc"))
	assert.Equal(t, StepEnterAmount, f.step(t))

	require.Equal(t, Advanced, f.wf.EnterAmount(ctx, f.req, "100"))
	assert.Equal(t, "bitcoin", asked)

	msg := f.lastToUser(t)
	assert.Contains(t, msg.Text, "5.000000")
	assert.Contains(t, msg.Text, "bc1-btc-address")
	assert.NotEmpty(t, msg.Photo)

	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))
	payments := f.payments(t)
	require.Len(t, payments, 1)
	require.NotNil(t, payments[0].CryptoAmount)
	assert.Equal(t, 5.0, *payments[0].CryptoAmount)
	assert.Equal(t, "btc", *payments[0].Crypto)
	assert.Nil(t, payments[0].Network)
}

func TestUSDTNeedsNetworkAndRoundsToCents(t *testing.T) {
	f := newFixture(t, func(context.Context, string) (float64, error) { return 0.92, nil })
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodCrypto)
	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.PrefixCrypto+"usdt"))
	assert.Equal(t, StepSelectUSDTNetwork, f.step(t))
	assert.Equal(t,
		[]string{"topup:net:trc20", "topup:net:erc20", "topup:net:bep20", "topup:net:sol", chat.ActionCancel},
		chattest.ButtonData(f.lastToUser(t)))

	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.PrefixNetwork+"trc20"))
	require.Equal(t, Advanced, f.wf.EnterAmount(ctx, f.req, "10"))
	msg := f.lastToUser(t)
	assert.Contains(t, msg.Text, "10.87")
	assert.Contains(t, msg.Text, "T-trc20-address")

	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))
	p := f.payments(t)[0]
	assert.Equal(t, "usdt", *p.Crypto)
	assert.Equal(t, "trc20", *p.Network)
	assert.Equal(t, 10.87, *p.CryptoAmount)
}

func TestUSDTNetworkWithoutAddressUsesFallback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodCrypto)
	f.wf.HandleAction(ctx, f.req, chat.PrefixCrypto+"usdt")
	f.wf.HandleAction(ctx, f.req, chat.PrefixNetwork+"bep20")
	f.wf.EnterAmount(ctx, f.req, "5")

	assert.Contains(t, f.lastToUser(t).Text, "fallback-address")
}

func TestOracleFailureDoesNotBlock(t *testing.T) {
	tests := []struct {
		name  string
		price PriceFunc
	}{
		{"error", func(context.Context, string) (float64, error) { return 0, errors.New("timeout") }},
		{"zero", func(context.Context, string) (float64, error) { return 0, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.price)
			ctx := context.Background()

			f.wf.Start(ctx, f.req)
			f.wf.HandleAction(ctx, f.req, chat.ActionMethodCrypto)
			f.wf.HandleAction(ctx, f.req, chat.PrefixCrypto+"eth")
			require.Equal(t, Advanced, f.wf.EnterAmount(ctx, f.req, "50"))
			assert.Contains(t, f.lastToUser(t).Text, "N/A")

			require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))
			p := f.payments(t)[0]
			assert.Equal(t, 50.0, p.Amount)
			assert.Nil(t, p.CryptoAmount)
		})
	}
}

func TestInvalidAmountRePrompts(t *testing.T) {
	tests := []struct {
		in  string
		key string
	}{
		{"abc", "enter_valid_number"},
		{"", "enter_valid_number"},
		{"NaN", "enter_valid_number"},
		{"Inf", "enter_valid_number"},
		{"0", "enter_positive_amount"},
		{"-5", "enter_positive_amount"},
	}
	f := newFixture(t, nil)
	ctx := context.Background()
	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodFiat)

	for _, tt := range tests {
		assert.Equal(t, Retry, f.wf.EnterAmount(ctx, f.req, tt.in), tt.in)
		assert.Equal(t, StepEnterAmount, f.step(t), tt.in)
		assert.Equal(t, f.cat.T(i18n.EN, tt.key), f.lastToUser(t).Text, tt.in)
	}
	for _, huge := range []string{"1e400", "1e309", "2000000000"} {
		assert.Equal(t, Retry, f.wf.EnterAmount(ctx, f.req, huge), huge)
		assert.Equal(t, f.cat.T(i18n.EN, "enter_amount_too_large", "1000000000.00", "EUR"), f.lastToUser(t).Text, huge)
	}
	assert.Empty(t, f.payments(t))

	require.Equal(t, Advanced, f.wf.EnterAmount(ctx, f.req, "12,5"))
	assert.Contains(t, f.lastToUser(t).Text, "12.50")
}

func TestCancelFromEveryStep(t *testing.T) {
	drive := map[Step][]string{
		StepSelectMethod:      nil,
		StepSelectCrypto:      {chat.ActionMethodCrypto},
		StepSelectUSDTNetwork: {chat.ActionMethodCrypto, chat.PrefixCrypto + "usdt"},
		StepEnterAmount:       {chat.ActionMethodFiat},
	}
	for want, actions := range drive {
		t.Run(want.String(), func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			f.wf.Start(ctx, f.req)
			for _, a := range actions {
				f.wf.HandleAction(ctx, f.req, a)
			}
			require.Equal(t, want, f.step(t))

			assert.Equal(t, Aborted, f.wf.HandleAction(ctx, f.req, chat.ActionCancel))
			assert.False(t, f.wf.Active(userID))
			assert.Equal(t, f.cat.T(i18n.EN, "payment_cancelled"), f.lastToUser(t).Text)
			assert.Empty(t, f.payments(t))
		})
	}

	t.Run("confirm_payment", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		f.wf.Start(ctx, f.req)
		f.wf.HandleAction(ctx, f.req, chat.ActionMethodFiat)
		f.wf.EnterAmount(ctx, f.req, "10")
		require.Equal(t, StepConfirmPayment, f.step(t))

		assert.Equal(t, Aborted, f.wf.Cancel(ctx, f.req))
		assert.Empty(t, f.payments(t))

		// A stale confirm button after cancel records nothing.
		assert.Equal(t, Aborted, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))
		assert.Empty(t, f.payments(t))
	})
}

func TestStrayInputEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodCrypto)

	assert.Equal(t, Aborted, f.wf.HandleAction(ctx, f.req, chat.PrefixCrypto+"doge"))
	assert.False(t, f.wf.Active(userID))
	last := f.lastToUser(t)
	assert.Equal(t, f.cat.T(i18n.EN, "invalid_action"), last.Text)
	assert.Contains(t, chattest.ButtonData(last), chat.ActionTopup)

	f.wf.Start(ctx, f.req)
	assert.Equal(t, Aborted, f.wf.EnterAmount(ctx, f.req, "100"))
	assert.False(t, f.wf.Active(userID))
	assert.Empty(t, f.payments(t))
}

func TestStrayWaitsForDebounce(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) { c.StrayDelay = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, Aborted, f.wf.Stray(ctx, f.req))
	assert.Empty(t, f.rec.To(userID), "a cancelled debounce sends nothing")
}

func TestFiatHiddenWithoutLink(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) { c.FiatLink = "" })
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	assert.NotContains(t, chattest.ButtonData(f.lastToUser(t)), chat.ActionMethodFiat)
	assert.Equal(t, Aborted, f.wf.HandleAction(ctx, f.req, chat.ActionMethodFiat))
}

func TestBlockedAdminIsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.Block(admin1)
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodFiat)
	f.wf.EnterAmount(ctx, f.req, "7")
	require.Equal(t, Advanced, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))

	p := f.payments(t)
	require.Len(t, p, 1)
	assert.Empty(t, f.rec.To(admin1))
	assert.Len(t, f.rec.To(admin2), 1)

	refs, err := f.tracker.TakeAdminMessages(ctx, p[0].PaymentID)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

type failingLedger struct{}

func (failingLedger) RecordPaymentRequest(context.Context, ledger.NewPayment) (string, error) {
	return "", errors.New("disk I/O error")
}

func TestLedgerErrorAbortsWithGenericMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.wf.ledger = failingLedger{}
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodFiat)
	f.wf.EnterAmount(ctx, f.req, "10")

	assert.Equal(t, Aborted, f.wf.HandleAction(ctx, f.req, chat.ActionConfirm))
	assert.False(t, f.wf.Active(userID))
	last := f.lastToUser(t)
	assert.Equal(t, f.cat.T(i18n.EN, "error_try_later"), last.Text)
	assert.False(t, strings.Contains(last.Text, "disk"))
	assert.Empty(t, f.rec.To(admin1))
}

func TestCancelDuringPriceLookupWins(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(ctx context.Context, _ string) (float64, error) {
		f.wf.Cancel(ctx, f.req)
		return 20, nil
	})
	ctx := context.Background()

	f.wf.Start(ctx, f.req)
	f.wf.HandleAction(ctx, f.req, chat.ActionMethodCrypto)
	f.wf.HandleAction(ctx, f.req, chat.PrefixCrypto+"btc")
	require.Equal(t, StepEnterAmount, f.step(t))

	assert.Equal(t, Aborted, f.wf.EnterAmount(ctx, f.req, "100"))
	assert.False(t, f.wf.Active(userID))
	assert.Equal(t, f.cat.T(i18n.EN, "payment_cancelled"), f.lastToUser(t).Text)
	assert.Empty(t, f.payments(t))
}
