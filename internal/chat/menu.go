// internal/chat/menu.go
package chat

import "github.com/rovshanmuradov/topup-shop-bot/internal/i18n"

func MainMenu(c *i18n.Catalog, lang i18n.Lang) [][]Button {
	return [][]Button{
		Row(
			DataButton(c.T(lang, "btn_profile"), ActionProfile),
			DataButton(c.T(lang, "btn_products"), ActionProducts),
		),
		Row(
			DataButton(c.T(lang, "btn_topup"), ActionTopup),
			DataButton(c.T(lang, "btn_support"), ActionSupport),
		),
	}
}

func LanguageMenu() [][]Button {
	return [][]Button{
		Row(
			DataButton("🇷🇺 Русский", PrefixLanguage+string(i18n.RU)),
			DataButton("🇬🇧 English", PrefixLanguage+string(i18n.EN)),
		),
		Row(
			DataButton("🇩🇪 Deutsch", PrefixLanguage+string(i18n.DE)),
			DataButton("🇵🇱 Polski", PrefixLanguage+string(i18n.PL)),
		),
	}
}
