// pkg/utils/format.go
package utils

import (
	"fmt"
	"strings"
)

// FormatMoney prints a fiat amount with two decimals.
func FormatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatCryptoAmount prints a snapshot quantity with the given number of
// decimals, or "N/A" when no quantity is known.
func FormatCryptoAmount(v *float64, decimals int) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}

// OrNA returns "N/A" for empty or nil strings.
func OrNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

// AtHandle normalizes a Telegram handle to "@name".
func AtHandle(handle string) string {
	h := strings.TrimSpace(handle)
	if h == "" {
		return ""
	}
	if strings.HasPrefix(h, "https://") || strings.HasPrefix(h, "http://") {
		h = h[strings.LastIndex(h, "/")+1:]
	}
	return "@" + strings.TrimPrefix(h, "@")
}

// TelegramURL turns "name", "@name" or a full URL into a t.me link.
func TelegramURL(handle string) string {
	h := strings.TrimSpace(handle)
	if h == "" {
		return ""
	}
	if strings.HasPrefix(h, "https://") || strings.HasPrefix(h, "http://") {
		return h
	}
	return "https://t.me/" + strings.TrimPrefix(h, "@")
}
