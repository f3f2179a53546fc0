package metrics

import (
	"net/http"
	"strconv"

	"fundingflow/logger"
)

var binanceWeightHeaders = []struct {
	key    string
	window string
}{
	{"X-MBX-USED-WEIGHT-1M", "1m"},
	{"X-MBX-USED-WEIGHT", "1m"},
	{"X-MBX-USED-WEIGHT-1S", "1s"},
}

// ReportUsedWeight inspects the rate-limit headers an exchange attaches to a
// response and emits a used_weight gauge. It returns the parsed weight and
// whether a metric was recorded. Exchanges without such headers are ignored.
func ReportUsedWeight(log *logger.Log, exchange string, header http.Header) (float64, bool) {
	if header == nil {
		return 0, false
	}
	switch exchange {
	case "binance":
		return reportBinanceWeight(log, header)
	case "bybit":
		return reportBybitWeight(log, header)
	default:
		return 0, false
	}
}

func reportBinanceWeight(log *logger.Log, header http.Header) (float64, bool) {
	for _, h := range binanceWeightHeaders {
		value := header.Get(h.key)
		if value == "" {
			continue
		}
		used, err := strconv.ParseFloat(value, 64)
		if err != nil {
			logOrDefault(log).WithComponent("fetcher").WithFields(logger.Fields{
				"header": h.key,
				"value":  value,
			}).WithError(err).Debug("failed to parse used weight header")
			continue
		}
		EmitMetric(log, "fetcher", "used_weight", used, "gauge", logger.Fields{
			"exchange": "binance",
			"window":   h.window,
		})
		return used, true
	}
	return 0, false
}

// reportBybitWeight derives usage from the limit and remaining headers, trying
// the legacy X-Bapi-* names before the X-RateLimit-* variants.
func reportBybitWeight(log *logger.Log, header http.Header) (float64, bool) {
	limitStr := header.Get("X-Bapi-Limit")
	if limitStr == "" {
		limitStr = header.Get("X-RateLimit-Limit")
	}
	remainingStr := header.Get("X-Bapi-Limit-Status")
	if remainingStr == "" {
		remainingStr = header.Get("X-RateLimit-Remaining")
	}
	if limitStr == "" || remainingStr == "" {
		return 0, false
	}

	limit, err := strconv.ParseFloat(limitStr, 64)
	if err != nil || limit <= 0 {
		return 0, false
	}
	remaining, err := strconv.ParseFloat(remainingStr, 64)
	if err != nil {
		return 0, false
	}

	used := limit - remaining
	if used < 0 {
		used = 0
	}
	EmitMetric(log, "fetcher", "used_weight", used, "gauge", logger.Fields{"exchange": "bybit"})
	return used, true
}
