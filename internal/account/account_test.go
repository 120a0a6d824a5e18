package account

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
	"github.com/rovshanmuradov/topup-shop-bot/internal/chat/chattest"
	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
)

const (
	userID    int64 = 3001
	channelID int64 = -100500
	adminID   int64 = 900
)

func newService(t *testing.T) (*Service, *ledger.Store, *chattest.Recorder, *i18n.Catalog) {
	t.Helper()
	gdb, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "account.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	store := ledger.NewStore(gdb)
	rec := chattest.New()
	cat := i18n.MustLoad()
	svc := New(Config{
		AdminIDs:      []int64{adminID},
		AdminLanguage: i18n.RU,
		Currency:      "EUR",
		SupportHandle: "@shop_support",
		ChannelID:     channelID,
	}, store, rec, cat)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return svc, store, rec, cat
}

func req() chat.Request {
	return chat.Request{UserID: userID, Username: "newbie", FirstName: "Ann", FullName: "Ann Lee", Lang: i18n.Default}
}

func TestStartWithoutLanguagePromptsAndCreatesNothing(t *testing.T) {
	svc, store, rec, cat := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, req()))

	last, ok := rec.Last(userID)
	require.True(t, ok)
	assert.Equal(t, cat.T(i18n.RU, "lang_prompt"), last.Msg.Text)
	assert.Equal(t, []string{"lang:ru", "lang:en", "lang:de", "lang:pl"}, chattest.ButtonData(last.Msg))

	exists, err := store.UserExists(ctx, userID)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, rec.To(channelID))
}

func TestChooseLanguageRegisters(t *testing.T) {
	svc, store, rec, cat := newService(t)
	ctx := context.Background()

	r := req()
	r.Origin = chat.MessageRef{ChatID: userID, MessageID: 1}
	require.NoError(t, svc.ChooseLanguage(ctx, r, "en"))

	u, err := store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Language)
	assert.Equal(t, 0.0, u.BalanceValue())
	assert.True(t, rec.WasDeleted(r.Origin))

	msgs := rec.To(userID)
	require.Len(t, msgs, 2)
	assert.Equal(t, cat.T(i18n.EN, "lang_set"), msgs[0].Msg.Text)
	assert.Equal(t, cat.T(i18n.EN, "greeting", "Ann"), msgs[1].Msg.Text)
	assert.Contains(t, chattest.ButtonData(msgs[1].Msg), chat.ActionProfile)

	card, ok := rec.Last(channelID)
	require.True(t, ok)
	assert.Contains(t, card.Msg.Text, "@newbie")
	assert.Contains(t, card.Msg.Text, "2024-03-01 10:00:00")

	// Switching language later keeps the record and posts no second card.
	require.NoError(t, svc.ChooseLanguage(ctx, req(), "pl"))
	u, err = store.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "pl", u.Language)
	assert.Len(t, rec.To(channelID), 1)

	assert.Error(t, svc.ChooseLanguage(ctx, req(), "xx"))
}

func TestStartWithStoredLanguageGreets(t *testing.T) {
	svc, store, rec, cat := newService(t)
	ctx := context.Background()

	require.NoError(t, store.SetUserLanguage(ctx, userID, "de"))
	require.NoError(t, svc.Start(ctx, req()))

	last, _ := rec.Last(userID)
	assert.Equal(t, cat.T(i18n.DE, "greeting", "Ann"), last.Msg.Text)
	assert.Empty(t, rec.To(channelID), "existing user is not announced")

	u, err := store.GetUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, u.Username)
	assert.Equal(t, "newbie", *u.Username)
}

func TestProfile(t *testing.T) {
	svc, store, rec, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.ChooseLanguage(ctx, req(), "en"))
	require.NoError(t, store.UpdateBalance(ctx, userID, 42.5))

	r := req()
	r.Lang = i18n.EN
	require.NoError(t, svc.Profile(ctx, r))

	last, _ := rec.Last(userID)
	assert.Contains(t, last.Msg.Text, "Ann Lee")
	assert.Contains(t, last.Msg.Text, "42.50 EUR")
	assert.Contains(t, last.Msg.Text, "@newbie")
}

func TestSupportLinksHandle(t *testing.T) {
	svc, _, rec, _ := newService(t)
	require.NoError(t, svc.Support(context.Background(), req()))

	last, _ := rec.Last(userID)
	assert.Equal(t, []string{"https://t.me/shop_support"}, chattest.ButtonURLs(last.Msg))
}

func TestNotifyStartup(t *testing.T) {
	svc, _, rec, cat := newService(t)
	svc.NotifyStartup(context.Background())

	last, ok := rec.Last(adminID)
	require.True(t, ok)
	assert.Equal(t, cat.T(i18n.RU, "bot_started"), last.Msg.Text)
}

func TestUserNamesAreEscapedForHTML(t *testing.T) {
	svc, _, rec, cat := newService(t)
	ctx := context.Background()

	r := req()
	r.FirstName = "Tom & <Jerry>"
	r.FullName = "Tom & <Jerry> <3"
	require.NoError(t, svc.ChooseLanguage(ctx, r, "en"))

	last, _ := rec.Last(userID)
	assert.Equal(t, cat.T(i18n.EN, "greeting", "Tom &amp; &lt;Jerry&gt;"), last.Msg.Text)

	card, ok := rec.Last(channelID)
	require.True(t, ok)
	assert.Contains(t, card.Msg.Text, "Tom &amp; &lt;Jerry&gt; &lt;3")
	assert.NotContains(t, card.Msg.Text, "<Jerry>")

	r.Lang = i18n.EN
	require.NoError(t, svc.Profile(ctx, r))
	last, _ = rec.Last(userID)
	assert.Contains(t, last.Msg.Text, "Tom &amp; &lt;Jerry&gt; &lt;3")
	assert.NotContains(t, last.Msg.Text, "<3")
}
