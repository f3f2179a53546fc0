package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fundingflow/internal/model"
	"fundingflow/internal/refresh"
	"fundingflow/logger"
)

const requestIDHeader = "X-Request-ID"

// parseSelection decodes the exchanges and priority query parameters. The
// exchanges map defaults to the configured one (all off unless set), and
// priority is on only for the literal "true".
func (s *Server) parseSelection(c *gin.Context) (model.Selection, bool, error) {
	exchanges := s.cfg.DefaultExchanges
	raw, given := c.GetQuery("exchanges")
	if given && strings.TrimSpace(raw) != "" {
		parsed := map[string]bool{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return model.Selection{}, false, fmt.Errorf("invalid exchanges parameter: %w", err)
		}
		exchanges = parsed
	} else {
		given = false
	}

	priority := strings.EqualFold(strings.TrimSpace(c.Query("priority")), "true")
	return model.Selection{Exchanges: exchanges, Mode: model.ModeFromFlag(priority)}, given, nil
}

func (s *Server) handleFundings(c *gin.Context) {
	sel, _, err := s.parseSelection(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rates, err := s.source.Fundings(c.Request.Context(), sel)
	if err != nil {
		s.requestLog(c).WithError(err).Error("fundings request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if rates == nil {
		rates = []model.FundingRate{}
	}
	c.JSON(http.StatusOK, rates)
}

// handleLatest serves the background snapshot, overlaid with a fresh
// priority aggregation when one is requested.
func (s *Server) handleLatest(c *gin.Context) {
	if s.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "background refresh is disabled"})
		return
	}

	sel, filtered, err := s.parseSelection(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := s.snapshots.Latest()
	rates := snap.Rates
	if sel.Mode == model.ModePriority && len(sel.Enabled()) > 0 {
		fresh, err := s.source.Fundings(c.Request.Context(), sel)
		if err != nil {
			s.requestLog(c).WithError(err).Error("priority refresh failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		rates = refresh.Merge(rates, fresh)
	}
	if filtered {
		rates = onlyEnabled(rates, sel)
	}
	if rates == nil {
		rates = []model.FundingRate{}
	}

	c.JSON(http.StatusOK, refresh.Snapshot{Rates: rates, UpdatedAt: snap.UpdatedAt})
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"name":      s.app.Name,
		"version":   s.app.Version,
		"exchanges": s.exchanges,
	}
	if s.snapshots != nil {
		if updated := s.snapshots.Latest().UpdatedAt; !updated.IsZero() {
			body["snapshotUpdatedAt"] = updated.Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleMetricEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot(c.Query("exchange"))})
}

func (s *Server) handleLogs(c *gin.Context) {
	minLevel := logrus.TraceLevel
	if raw := c.Query("level"); raw != "" {
		lvl, err := logrus.ParseLevel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		minLevel = lvl
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot(c.Query("exchange"), minLevel)})
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.sampler.snapshot()})
}

func onlyEnabled(rates []model.FundingRate, sel model.Selection) []model.FundingRate {
	enabled := map[model.ExchangeID]bool{}
	for _, name := range sel.Enabled() {
		if id, ok := model.ParseExchangeID(name); ok {
			enabled[id] = true
		}
	}
	out := make([]model.FundingRate, 0, len(rates))
	for _, r := range rates {
		if enabled[r.Exchange] {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) requestLog(c *gin.Context) *logger.Entry {
	return s.log.WithComponent("api").WithFields(logger.Fields{requestIDField: c.GetString(requestIDField)})
}

// requestLogger tags each request with an id and logs it at debug level.
func requestLogger(log *logger.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Set(requestIDField, id)

		start := time.Now()
		c.Next()

		logger.LogPerformanceEntry(log.WithComponent("api"), "api", c.FullPath(), time.Since(start), logger.Fields{
			requestIDField: id,
			"method":     c.Request.Method,
			"status":     c.Writer.Status(),
		})
	}
}
