// pkg/utils/qr.go
package utils

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 320

// AddressQR renders a deposit address as a PNG QR code.
func AddressQR(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	png, err := qrcode.Encode(addr, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
