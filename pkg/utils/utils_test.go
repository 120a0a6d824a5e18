package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressQR(t *testing.T) {
	png, err := AddressQR("TXYZ-deposit")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = AddressQR("")
	assert.Error(t, err)
}

func TestFormatCryptoAmount(t *testing.T) {
	v := 5.0
	assert.Equal(t, "5.000000", FormatCryptoAmount(&v, 6))
	assert.Equal(t, "5.00", FormatCryptoAmount(&v, 2))
	assert.Equal(t, "N/A", FormatCryptoAmount(nil, 6))
	assert.Equal(t, "75.00", FormatMoney(75))
}

func TestHandles(t *testing.T) {
	tests := []struct {
		in, at, url string
	}{
		{"support", "@support", "https://t.me/support"},
		{"@support", "@support", "https://t.me/support"},
		{" https://t.me/support ", "@support", "https://t.me/support"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.at, AtHandle(tt.in), tt.in)
		assert.Equal(t, tt.url, TelegramURL(tt.in), tt.in)
	}

	empty := ""
	assert.Equal(t, "N/A", OrNA(&empty))
	assert.Equal(t, "N/A", OrNA(nil))
}
