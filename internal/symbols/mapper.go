package symbols

import (
	"strings"

	"fundingflow/internal/model"
)

const (
	okxSwapSuffix     = "-SWAP"
	bitgetUSDTMSuffix = "_UMCBL"
)

// mexcQuoteSuffixes are trimmed in order; the first match wins.
var mexcQuoteSuffixes = []string{"_USDT", "_USDC", "_USD"}

// Canonical converts an exchange-local contract id to the symbol shown to
// users. Binance and Bybit ids are already in the desired form.
//
//	okx     BTC-USD-SWAP   -> BTC-USD
//	bitget  BTCUSDT_UMCBL  -> BTCUSDT
//	mexc    BTC_USDT       -> BTC
func Canonical(exchange model.ExchangeID, raw string) string {
	sym := strings.TrimSpace(raw)
	switch exchange {
	case model.OKX:
		sym = strings.TrimSuffix(sym, okxSwapSuffix)
	case model.Bitget:
		sym = strings.TrimSuffix(sym, bitgetUSDTMSuffix)
	case model.MEXC:
		for _, suffix := range mexcQuoteSuffixes {
			if strings.HasSuffix(sym, suffix) {
				sym = strings.TrimSuffix(sym, suffix)
				break
			}
		}
	default:
		// others already use the desired format
	}
	return sym
}

// IsLinearPerpetual reports whether a Bybit linear symbol is a plain
// perpetual. Dated futures and spreads carry a hyphen (BTC-27DEC24).
func IsLinearPerpetual(sym string) bool {
	return sym != "" && !strings.Contains(sym, "-")
}

// ExchangeURL builds the deep link to the contract's trading page. OKX links
// use the raw instrument id lower-cased, MEXC the raw id, Bitget the
// canonical symbol.
func ExchangeURL(exchange model.ExchangeID, raw string) string {
	switch exchange {
	case model.Binance:
		return "https://www.binance.com/en/futures/" + raw
	case model.Bybit:
		return "https://www.bybit.com/trade/usdt/" + raw
	case model.OKX:
		return "https://www.okx.com/trade-swap/" + strings.ToLower(raw)
	case model.Bitget:
		return "https://www.bitget.com/futures/usdt/" + Canonical(model.Bitget, raw)
	case model.MEXC:
		return "https://futures.mexc.com/exchange/" + raw
	default:
		return ""
	}
}
