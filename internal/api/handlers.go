// Package api serves the REST surface: ad-hoc indicator computation, stored
// symbol history and signals, price ingest and the websocket feed.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"coinsignal/internal/indicator"
	"coinsignal/internal/logger"
	"coinsignal/internal/metrics"
	"coinsignal/internal/model"
	"coinsignal/internal/tracker"
)

// ErrNotEnoughData is reported when a series is shorter than the bundle minimum.
var ErrNotEnoughData = errors.New("not enough data")

const (
	defaultHistoryLimit = 200
	maxHistoryLimit     = 5000
	maxBodyBytes        = 8 << 20
)

// PriceStore reads and writes stored price history.
type PriceStore interface {
	model.PriceReader
	model.PriceWriter
}

// Deps are the handler's collaborators. Cache, Hub and Metrics may be nil.
type Deps struct {
	Store      PriceStore
	Signals    model.SignalLog
	Cache      model.BundleCache
	Tracker    *tracker.Tracker
	Hub        http.Handler
	Metrics    *metrics.Metrics
	TOTPSecret string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d}
}

type pricesRequest struct {
	Prices []model.HistoricalPrice `json:"prices"`
}

type indicatorsResponse struct {
	Symbol     string                `json:"symbol,omitempty"`
	LatestDate string                `json:"latest_date"`
	Points     int                   `json:"points"`
	Cached     bool                  `json:"cached"`
	Bundle     model.IndicatorBundle `json:"bundle"`
	Signals    []model.TradingSignal `json:"signals"`

	// MACDLine is the MACD line without a signal line, set only while the
	// series is too short for full MACD records.
	MACDLine []model.MACDLinePoint `json:"macd_line,omitempty"`
}

// withMACDLine fills MACDLine when the bundle carries no MACD records.
func (h *Handler) withMACDLine(resp *indicatorsResponse, prices []model.HistoricalPrice) {
	if len(resp.Bundle.MACD) > 0 {
		return
	}
	p := h.Tracker.Params()
	resp.MACDLine = indicator.CalculateMACDLine(prices, p.MACDFast, p.MACDSlow)
}

// HealthCheck handles GET /api/v1/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"tracked_symbols": len(h.Tracker.Symbols()),
	})
}

// ComputeIndicators handles POST /api/v1/indicators.
func (h *Handler) ComputeIndicators(w http.ResponseWriter, r *http.Request) {
	var req pricesRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	clean := indicator.Normalize(req.Prices)
	if len(clean) < h.Tracker.MinPoints() {
		respondNotEnough(w, h.Tracker.MinPoints(), len(clean))
		return
	}

	bundle, signals, err := h.Tracker.Compute(clean)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	resp := indicatorsResponse{
		LatestDate: clean[len(clean)-1].Date,
		Points:     len(clean),
		Bundle:     bundle,
		Signals:    signals,
	}
	h.withMACDLine(&resp, clean)
	respondJSON(w, http.StatusOK, resp)
}

// ListSymbols handles GET /api/v1/symbols.
func (h *Handler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.Store.Symbols(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

// SymbolIndicators handles GET /api/v1/symbols/{symbol}/indicators?limit=N.
// A cached bundle is served when the stored series has not changed.
func (h *Handler) SymbolIndicators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]
	limit, err := parseLimit(r, defaultHistoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	prices, err := h.Store.ReadPrices(ctx, symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(prices) == 0 {
		respondError(w, http.StatusNotFound, fmt.Errorf("no prices stored for %s", symbol))
		return
	}
	clean := indicator.Normalize(prices)
	if len(clean) < h.Tracker.MinPoints() {
		respondNotEnough(w, h.Tracker.MinPoints(), len(clean))
		return
	}

	resp := indicatorsResponse{Symbol: symbol, LatestDate: clean[len(clean)-1].Date, Points: len(clean)}
	fp := indicator.Fingerprint(clean, h.Tracker.Params())

	if cached := h.cachedBundle(r, symbol, fp); cached != nil {
		resp.Cached = true
		resp.Bundle = *cached
		resp.Signals = h.Tracker.Signals(*cached)
		h.withMACDLine(&resp, clean)
		respondJSON(w, http.StatusOK, resp)
		return
	}

	bundle, signals, err := h.Tracker.Compute(clean)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.PutBundle(ctx, symbol, fp, &bundle); err != nil {
			slog.Warn("bundle cache put failed", append([]any{"symbol", symbol, "error", err}, logger.LogWithTrace(ctx)...)...)
		}
	}
	resp.Bundle = bundle
	resp.Signals = signals
	h.withMACDLine(&resp, clean)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) cachedBundle(r *http.Request, symbol, fp string) *model.IndicatorBundle {
	if h.Cache == nil {
		return nil
	}
	bundle, err := h.Cache.GetBundle(r.Context(), symbol, fp)
	result := "hit"
	switch {
	case err != nil:
		result = "error"
		slog.Warn("bundle cache get failed", append([]any{"symbol", symbol, "error", err}, logger.LogWithTrace(r.Context())...)...)
	case bundle == nil:
		result = "miss"
	}
	if h.Metrics != nil {
		h.Metrics.CacheLookups.WithLabelValues(result).Inc()
	}
	if err != nil {
		return nil
	}
	return bundle
}

// SymbolSignals handles GET /api/v1/symbols/{symbol}/signals?limit=N.
func (h *Handler) SymbolSignals(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	limit, err := parseLimit(r, 10)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	updates, err := h.Signals.RecentSignals(r.Context(), symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	resp := map[string]any{"symbol": symbol, "updates": updates}
	if latest, ok := h.Tracker.Latest(symbol); ok {
		resp["latest"] = latest
	}
	respondJSON(w, http.StatusOK, resp)
}

// IngestPrices handles POST /api/v1/symbols/{symbol}/prices. A batch with a
// single point goes through the live tracker window; larger batches re-evaluate
// the symbol's recent stored history.
func (h *Handler) IngestPrices(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req pricesRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	clean := dated(indicator.Normalize(req.Prices))
	switch len(clean) {
	case 0:
		respondError(w, http.StatusBadRequest, errors.New("no valid prices in request"))
	case 1:
		h.observe(w, r, symbol, clean[0])
	default:
		h.ingestBatch(w, r, symbol, clean)
	}
}

// ObservePrice handles POST /api/v1/symbols/{symbol}/price with a single
// price point in the body.
func (h *Handler) ObservePrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var p model.HistoricalPrice
	if err := decodeBody(w, r, &p); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if p.Date == "" || len(indicator.Normalize([]model.HistoricalPrice{p})) == 0 {
		respondError(w, http.StatusBadRequest, tracker.ErrInvalidPrice)
		return
	}
	h.observe(w, r, symbol, p)
}

// observe stores p and pushes it through the symbol's live window. A symbol
// with no window yet is seeded from stored history first.
func (h *Handler) observe(w http.ResponseWriter, r *http.Request, symbol string, p model.HistoricalPrice) {
	ctx := r.Context()

	if len(h.Tracker.Window(symbol)) == 0 {
		history, err := h.Store.ReadPrices(ctx, symbol, defaultHistoryLimit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		h.Tracker.Seed(symbol, history)
	}

	if err := h.Store.InsertPrices(ctx, symbol, []model.HistoricalPrice{p}); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.PricesIngested.Inc()
	}

	update, err := h.Tracker.Observe(ctx, symbol, p)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	resp := map[string]any{"symbol": symbol, "inserted": 1}
	if update != nil {
		resp["update"] = update
	}
	respondJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request, symbol string, clean []model.HistoricalPrice) {
	ctx := r.Context()

	if err := h.Store.InsertPrices(ctx, symbol, clean); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.PricesIngested.Add(float64(len(clean)))
	}

	resp := map[string]any{"symbol": symbol, "inserted": len(clean)}

	history, err := h.Store.ReadPrices(ctx, symbol, defaultHistoryLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(history) >= h.Tracker.MinPoints() {
		_, update, err := h.Tracker.Evaluate(ctx, symbol, history)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		resp["update"] = update
	} else {
		h.Tracker.Seed(symbol, history)
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// SymbolWindow handles GET /api/v1/symbols/{symbol}/window: the prices the
// live tracker currently holds for symbol.
func (h *Handler) SymbolWindow(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	window := h.Tracker.Window(symbol)
	respondJSON(w, http.StatusOK, map[string]any{
		"symbol":     symbol,
		"points":     len(window),
		"min_points": h.Tracker.MinPoints(),
		"prices":     window,
	})
}

// dated drops points without a date; they cannot be keyed in the store.
func dated(prices []model.HistoricalPrice) []model.HistoricalPrice {
	out := prices[:0]
	for _, p := range prices {
		if p.Date != "" {
			out = append(out, p)
		}
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}

func respondNotEnough(w http.ResponseWriter, required, got int) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":    ErrNotEnoughData.Error(),
		"required": required,
		"got":      got,
	})
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
