// internal/chat/actions.go
package chat

import "strings"

// Callback tokens. They carry canonical identifiers, never display text.
const (
	ActionProfile  = "menu:profile"
	ActionProducts = "menu:products"
	ActionTopup    = "menu:topup"
	ActionSupport  = "menu:support"

	PrefixLanguage = "lang:"

	PrefixTopup        = "topup:"
	ActionMethodFiat   = "topup:method:fiat"
	ActionMethodCrypto = "topup:method:crypto"
	PrefixCrypto       = "topup:crypto:"
	PrefixNetwork      = "topup:net:"
	ActionConfirm      = "topup:confirm"
	ActionCancel       = "topup:cancel"

	PrefixShop       = "shop:"
	PrefixShopSelect = "shop:select:"
	PrefixShopBuy    = "shop:buy:"
	ActionShopCancel = "shop:cancel"

	PrefixAdminConfirm = "confirm_"
	PrefixAdminReject  = "reject_"
)

// Suffix returns the part of data after prefix and whether prefix matched.
func Suffix(data, prefix string) (string, bool) {
	if !strings.HasPrefix(data, prefix) {
		return "", false
	}
	return strings.TrimPrefix(data, prefix), true
}
