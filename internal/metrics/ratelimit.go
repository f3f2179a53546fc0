package metrics

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"fundingflow/logger"
)

// messagePaths lists where each upstream puts its human readable error text.
var messagePaths = []string{"msg", "retMsg", "message", "error"}

// ReportRateLimitExceeded emits a rate_limit_exceeded counter for exchange.
func ReportRateLimitExceeded(log *logger.Log, exchange, endpoint string) {
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"endpoint": endpoint,
	}
	EmitMetric(log, "fetcher", "rate_limit_exceeded", int64(1), "counter", fields)
	logOrDefault(log).WithComponent("fetcher").WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan emits an ip_ban counter for exchange.
func ReportIPBan(log *logger.Log, exchange, endpoint string) {
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"endpoint": endpoint,
	}
	EmitMetric(log, "fetcher", "ip_ban", int64(1), "counter", fields)
	logOrDefault(log).WithComponent("fetcher").WithFields(fields).Error("ip banned")
}

// detectLimit inspects the message returned from an exchange and determines whether
// it signals a rate limit exceed or an IP ban. Each exchange uses different wording.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	case "bitget":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "request too frequent") || strings.Contains(lowerMsg, "frequency")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "ban") || strings.Contains(lowerMsg, "forbidden"))
	case "mexc":
		rateLimit = strings.Contains(lowerMsg, "too frequent") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// extractMessage pulls the error text out of a JSON error body, falling back
// to the raw body for non-JSON responses.
func extractMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range messagePaths {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return string(body)
}

// ReportLimitFromResponse records rate limit or IP ban events based on the
// status code and the exchange-specific wording of the response body.
// It reports whether anything was recorded.
func ReportLimitFromResponse(log *logger.Log, exchange, endpoint string, status int, body []byte) bool {
	rateLimit, ipBan := detectLimit(exchange, extractMessage(body))
	switch status {
	case http.StatusTooManyRequests:
		rateLimit = true
	case http.StatusTeapot:
		// binance answers 418 once an IP is auto-banned
		ipBan = true
	}
	if rateLimit {
		ReportRateLimitExceeded(log, exchange, endpoint)
	}
	if ipBan {
		ReportIPBan(log, exchange, endpoint)
	}
	return rateLimit || ipBan
}

func logOrDefault(log *logger.Log) *logger.Log {
	if log == nil {
		return logger.GetLogger()
	}
	return log
}
