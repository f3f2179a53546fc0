package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/internal/metrics"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

const (
	maxBodyBytes     = 32 << 20
	maxErrorBodySize = 512
)

// Limit is a client-side request budget for one exchange.
type Limit struct {
	RequestsPerSecond float64
	Burst             int
}

// Options shape the shared HTTP client.
type Options struct {
	Timeout         time.Duration
	UserAgent       string
	MaxIdleConns    int
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
	Limits          map[model.ExchangeID]Limit
}

// Fetcher issues bounded GET requests on behalf of the exchange adapters.
// Every request gets its own deadline; a slow exchange never delays another.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	limiters map[model.ExchangeID]*rate.Limiter
	log      *logger.Log
}

// OptionsFromConfig maps the fetcher and exchanges sections to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	limits := map[model.ExchangeID]Limit{
		model.Binance: {cfg.Exchanges.Binance.RequestsPerSecond, cfg.Exchanges.Binance.Burst},
		model.Bybit:   {cfg.Exchanges.Bybit.RequestsPerSecond, cfg.Exchanges.Bybit.Burst},
		model.Bitget:  {cfg.Exchanges.Bitget.RequestsPerSecond, cfg.Exchanges.Bitget.Burst},
		model.OKX:     {cfg.Exchanges.Okx.RequestsPerSecond, cfg.Exchanges.Okx.Burst},
		model.MEXC:    {cfg.Exchanges.Mexc.RequestsPerSecond, cfg.Exchanges.Mexc.Burst},
	}
	return Options{
		Timeout:         cfg.Fetcher.Timeout,
		UserAgent:       cfg.Fetcher.UserAgent,
		MaxIdleConns:    cfg.Fetcher.MaxIdleConns,
		MaxConnsPerHost: cfg.Fetcher.MaxConnsPerHost,
		IdleConnTimeout: cfg.Fetcher.IdleConnTimeout,
		Limits:          limits,
	}
}

// New builds a Fetcher. A zero or oversized timeout falls back to the
// ten second ceiling.
func New(opts Options, log *logger.Log) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 || timeout > config.MaxFetchTimeout {
		timeout = config.MaxFetchTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConns,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     opts.IdleConnTimeout,
		DisableCompression:  false,
	}

	var rt http.RoundTripper = transport
	if opts.UserAgent != "" {
		rt = userAgentTransport{agent: opts.UserAgent, base: transport}
	}

	limiters := make(map[model.ExchangeID]*rate.Limiter, len(opts.Limits))
	for id, l := range opts.Limits {
		if l.RequestsPerSecond <= 0 {
			continue
		}
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		limiters[id] = rate.NewLimiter(rate.Limit(l.RequestsPerSecond), burst)
	}

	return &Fetcher{
		client:   &http.Client{Transport: rt},
		timeout:  timeout,
		limiters: limiters,
		log:      log,
	}
}

// Timeout returns the per-request bound in effect.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Get performs one GET against url and returns the trimmed JSON body.
// Failures are always *Error values.
func (f *Fetcher) Get(ctx context.Context, exchange model.ExchangeID, url string) (body []byte, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	log := f.log.WithComponent("fetcher").WithFields(logger.Fields{
		"exchange": string(exchange),
		"url":      url,
	})
	defer func() {
		elapsed := time.Since(start)
		metrics.ObserveFetch(string(exchange), outcome(err), elapsed)
		if err != nil {
			log.WithError(err).Debug("fetch failed")
			return
		}
		logger.LogPerformanceEntry(log, "fetcher", "get", elapsed, logger.Fields{"bytes": len(body)})
	}()

	if lim := f.limiters[exchange]; lim != nil {
		if werr := lim.Wait(ctx); werr != nil {
			if ctx.Err() == nil {
				// the next token lies beyond the deadline
				return nil, &Error{Kind: KindTimeout, URL: url, Err: werr}
			}
			return nil, classify(ctx, url, werr)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	defer resp.Body.Close()

	metrics.ReportUsedWeight(f.log, string(exchange), resp.Header)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, url, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ReportLimitFromResponse(f.log, string(exchange), req.URL.Path, resp.StatusCode, raw)
		return nil, &Error{
			Kind:       KindHTTPStatus,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       truncate(raw, maxErrorBodySize),
		}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || !gjson.ValidBytes(trimmed) {
		return nil, &Error{Kind: KindEmptyBody, URL: url}
	}
	return trimmed, nil
}

// classify maps a transport error to a Kind using the request context.
func classify(ctx context.Context, url string, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, URL: url, Err: err}
	default:
		return &Error{Kind: KindNetwork, URL: url, Err: err}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}
