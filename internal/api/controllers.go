package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Jorgeperez0825/botnext/internal/engine"
	"github.com/Jorgeperez0825/botnext/internal/monitor"
)

type recentQuery struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit"`
}

func (q *recentQuery) normalize() {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status(c.Request.Context()))
}

func (s *Server) getRecentTrades(c *gin.Context) {
	var q recentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	q.normalize()

	trades, err := s.Engine.RecentTrades(c.Request.Context(), q.Symbol, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", "failed to load trades")
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) getRecentSignals(c *gin.Context) {
	var q recentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	q.normalize()

	signals, err := s.Engine.RecentSignals(c.Request.Context(), q.Symbol, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", "failed to load signals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) getPairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": s.Engine.Pairs()})
}

func (s *Server) getPerformance(c *gin.Context) {
	perf, err := s.Engine.Performance(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", "failed to compute performance")
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) getPrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prices": s.Engine.Prices()})
}

// getMetrics serves JSON by default and Prometheus text with ?format=prom.
func (s *Server) getMetrics(c *gin.Context) {
	snapshot := s.Engine.MetricsSnapshot()
	if c.Query("format") != "prom" {
		c.JSON(http.StatusOK, snapshot)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "botnext_cycles_total %d\n", snapshot.CyclesRun)
	fmt.Fprintf(&b, "botnext_ticks_processed_total %d\n", snapshot.TicksProcessed)
	fmt.Fprintf(&b, "botnext_signals_generated_total %d\n", snapshot.SignalsGenerated)
	fmt.Fprintf(&b, "botnext_trades_placed_total %d\n", snapshot.TradesPlaced)
	fmt.Fprintf(&b, "botnext_guard_rejections_total %d\n", snapshot.GuardRejections)
	fmt.Fprintf(&b, "botnext_stream_reconnects_total %d\n", snapshot.StreamReconnects)
	fmt.Fprintf(&b, "botnext_errors_total %d\n", snapshot.ErrorsCount)

	writeLatency := func(prefix string, ls monitor.LatencyStats) {
		if ls.Count == 0 {
			return
		}
		fmt.Fprintf(&b, "botnext_%s_latency_ms_avg %f\n", prefix, ls.Avg)
		fmt.Fprintf(&b, "botnext_%s_latency_ms_p50 %f\n", prefix, ls.P50)
		fmt.Fprintf(&b, "botnext_%s_latency_ms_p95 %f\n", prefix, ls.P95)
		fmt.Fprintf(&b, "botnext_%s_latency_ms_p99 %f\n", prefix, ls.P99)
	}
	writeLatency("cycle", snapshot.CycleLatency)
	writeLatency("evaluation", snapshot.EvaluationLatency)
	writeLatency("order", snapshot.OrderLatency)
	writeLatency("store", snapshot.StoreLatency)

	fmt.Fprintf(&b, "botnext_goroutines %d\n", snapshot.GoroutineCount)
	fmt.Fprintf(&b, "botnext_heap_alloc_bytes %d\n", snapshot.HeapAlloc)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

func (s *Server) pauseBot(c *gin.Context) {
	s.Engine.Pause()
	s.Logger.WithField("user", CurrentUserID(c)).Info("bot paused from api")
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) resumeBot(c *gin.Context) {
	s.Engine.Resume()
	s.Logger.WithField("user", CurrentUserID(c)).Info("bot resumed from api")
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// evaluatePair runs one cycle for the pair right away; the resulting signal
// goes through the same gates as a scheduled one.
func (s *Server) evaluatePair(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_SYMBOL", "symbol is required")
		return
	}

	sig, err := s.Engine.EvaluatePair(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, engine.ErrUnknownPair):
		respondError(c, http.StatusNotFound, "UNKNOWN_PAIR", err.Error())
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{
			"code":   "EVALUATION_FAILED",
			"error":  err.Error(),
			"signal": sig,
		})
		return
	}
	c.JSON(http.StatusOK, sig)
}
