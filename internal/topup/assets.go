// internal/topup/assets.go
package topup

import (
	"strings"

	"github.com/rovshanmuradov/topup-shop-bot/internal/config"
	"github.com/rovshanmuradov/topup-shop-bot/pkg/tonutils"
)

type Asset struct {
	Code   string
	Label  string
	CoinID string
	// Decimals is the precision of the snapshot quantity.
	Decimals int32
	Networks []Network
}

type Network struct {
	Code  string
	Label string
}

// NeedsNetwork reports whether the asset exists on several chains.
func (a Asset) NeedsNetwork() bool {
	return len(a.Networks) > 0
}

func (a Asset) Network(code string) (Network, bool) {
	for _, n := range a.Networks {
		if n.Code == code {
			return n, true
		}
	}
	return Network{}, false
}

var assets = []Asset{
	{Code: "btc", Label: "BTC", CoinID: "bitcoin", Decimals: 6},
	{Code: "eth", Label: "ETH", CoinID: "ethereum", Decimals: 6},
	{Code: "sol", Label: "SOL", CoinID: "solana", Decimals: 6},
	{Code: "bnb", Label: "BNB", CoinID: "binancecoin", Decimals: 6},
	{Code: "ton", Label: "TON", CoinID: "the-open-network", Decimals: 6},
	{
		Code: "usdt", Label: "USDT", CoinID: "tether", Decimals: 2,
		Networks: []Network{
			{Code: "trc20", Label: "TRC20"},
			{Code: "erc20", Label: "ERC20"},
			{Code: "bep20", Label: "BEP20"},
			{Code: "sol", Label: "SOL"},
		},
	},
}

func Assets() []Asset {
	out := make([]Asset, len(assets))
	copy(out, assets)
	return out
}

func AssetByCode(code string) (Asset, bool) {
	code = strings.ToLower(code)
	for _, a := range assets {
		if a.Code == code {
			return a, true
		}
	}
	return Asset{}, false
}

// AddressBook maps an asset, or an asset on a network, to a deposit address.
type AddressBook struct {
	Fallback  string
	ByAsset   map[string]string
	ByNetwork map[string]string
}

func AddressBookFromConfig(a config.Addresses) AddressBook {
	ton := a.TON
	if friendly, err := tonutils.FriendlyAddress(ton); err == nil {
		ton = friendly
	}
	return AddressBook{
		Fallback: a.Fallback,
		ByAsset: map[string]string{
			"btc": a.BTC,
			"eth": a.ETH,
			"sol": a.SOL,
			"bnb": a.BNB,
			"ton": ton,
		},
		ByNetwork: map[string]string{
			"trc20": a.USDTTRC20,
			"erc20": a.USDTERC20,
			"bep20": a.USDTBEP20,
			"sol":   a.USDTSOL,
		},
	}
}

// Address returns the specific address when configured, else the fallback.
func (b AddressBook) Address(asset, network string) string {
	var addr string
	if network != "" {
		addr = b.ByNetwork[network]
	} else {
		addr = b.ByAsset[asset]
	}
	if strings.TrimSpace(addr) == "" {
		return b.Fallback
	}
	return strings.TrimSpace(addr)
}
