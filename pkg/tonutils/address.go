// pkg/tonutils/address.go
package tonutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

var ErrEmptyAddress = errors.New("empty TON address")

// ParseAddress accepts both the user-friendly base64 form and the raw
// "<workchain>:<hex>" form.
func ParseAddress(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAddress
	}

	addr, err := address.ParseAddr(s)
	if err == nil {
		return addr, nil
	}

	if strings.Contains(s, ":") {
		raw, rawErr := address.ParseRawAddr(s)
		if rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("invalid raw TON address: %w", rawErr)
	}

	return nil, fmt.Errorf("invalid TON address: %w", err)
}

func ValidateAddress(s string) error {
	_, err := ParseAddress(s)
	return err
}

// FriendlyAddress renders the address the way wallets display it, so a raw
// address from config is shown to users in the familiar form.
func FriendlyAddress(s string) (string, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}
