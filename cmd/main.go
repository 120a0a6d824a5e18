// cmd/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/topup-shop-bot/internal/account"
	"github.com/rovshanmuradov/topup-shop-bot/internal/admin"
	"github.com/rovshanmuradov/topup-shop-bot/internal/bot"
	"github.com/rovshanmuradov/topup-shop-bot/internal/config"
	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/i18n"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ops"
	"github.com/rovshanmuradov/topup-shop-bot/internal/pending"
	"github.com/rovshanmuradov/topup-shop-bot/internal/shop"
	"github.com/rovshanmuradov/topup-shop-bot/internal/topup"
	"github.com/rovshanmuradov/topup-shop-bot/pkg/coingecko"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логирования
	if err := logging.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		log.Fatalf("Ошибка инициализации логирования: %v", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("Shutting down with error", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("Завершение работы")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Инициализация базы данных
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if err := db.CheckSchema(gdb); err != nil {
		return err
	}

	tracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	api, err := bot.NewAPI(cfg.TelegramToken)
	if err != nil {
		return err
	}
	channelID, err := bot.ResolveChannel(api, cfg.ChannelID)
	if err != nil {
		logging.Warn("New user cards disabled", zap.Error(err))
	}

	store := ledger.NewStore(gdb)
	catalog, err := i18n.Load()
	if err != nil {
		return err
	}
	notifier := bot.NewNotifier(api)
	prices := coingecko.NewClient(cfg.PriceAPIURL, cfg.Currency)
	adminLang := i18n.OrDefault(cfg.AdminLanguage)

	accounts := account.New(account.Config{
		AdminIDs:      cfg.AdminIDs,
		AdminLanguage: adminLang,
		Currency:      cfg.Currency,
		SupportHandle: cfg.SupportUsername,
		ChannelID:     channelID,
	}, store, notifier, catalog)

	router := bot.NewRouter(bot.Services{
		Languages: store,
		Account:   accounts,
		Topup: topup.New(topup.Config{
			AdminIDs:      cfg.AdminIDs,
			AdminLanguage: adminLang,
			Currency:      cfg.Currency,
			FiatLink:      cfg.FiatPaymentLink,
			Addresses:     topup.AddressBookFromConfig(cfg.Addresses),
			StrayDelay:    cfg.StrayInputDelay,
		}, store, prices, notifier, tracker, catalog),
		Admin: admin.New(admin.Config{
			AdminIDs:      cfg.AdminIDs,
			AdminLanguage: adminLang,
			Currency:      cfg.Currency,
			ContactHandle: cfg.ContactHandle(),
		}, store, notifier, tracker, catalog),
		Shop: shop.New(shop.Config{
			AdminIDs:      cfg.AdminIDs,
			AdminLanguage: adminLang,
			Currency:      cfg.Currency,
			CuratorHandle: cfg.ContactHandle(),
		}, store, notifier, catalog),
		Catalog:  catalog,
		Notifier: notifier,
	})

	g, ctx := errgroup.WithContext(ctx)

	// Создание и запуск бота
	g.Go(func() error {
		return bot.New(api, router).Run(ctx)
	})

	if cfg.OpsAddr != "" {
		handler := ops.NewHandler(store, func(ctx context.Context) error { return db.Ping(ctx, gdb) })
		g.Go(func() error {
			return ops.Serve(ctx, cfg.OpsAddr, handler.Router())
		})
	}

	accounts.NotifyStartup(ctx)

	return g.Wait()
}

func newTracker(ctx context.Context, cfg *config.Config) (pending.Tracker, func(), error) {
	if cfg.PendingStore != "redis" {
		return pending.NewMemory(), func() {}, nil
	}

	rdb, err := pending.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	logging.Info("Pending notifications kept in Redis", zap.String("addr", cfg.RedisAddr))
	return pending.NewRedis(rdb, cfg.PendingTTL), func() { _ = rdb.Close() }, nil
}
