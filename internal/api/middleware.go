package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pquerna/otp/totp"

	"coinsignal/internal/logger"
)

// TOTPHeader carries the one-time code guarding write endpoints.
const TOTPHeader = "X-TOTP"

const requestIDHeader = "X-Request-ID"

// requestID propagates or assigns a request id and stores it as the trace id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = logger.NewRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// instrument logs each request and records route-level metrics keyed by the
// mux path template, not the raw path.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)

		if h.Metrics != nil {
			h.Metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			h.Metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}
		slog.Info("http request",
			append([]any{
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
			}, logger.LogWithTrace(r.Context())...)...)
	})
}

// requireTOTP rejects requests without a valid code when a secret is configured.
func (h *Handler) requireTOTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.TOTPSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		code := r.Header.Get(TOTPHeader)
		if code == "" || !totp.Validate(code, h.TOTPSecret) {
			slog.Warn("rejected write: invalid totp", logger.LogWithTrace(r.Context())...)
			respondError(w, http.StatusUnauthorized, errors.New("missing or invalid one-time code"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
