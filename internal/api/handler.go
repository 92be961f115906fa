package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/models"
	"github.com/punchamoorthee/payrail/internal/store"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrail_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payrail_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// PaymentService is what the HTTP layer needs from the transfer engine.
type PaymentService interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	SupportsScheme(sc domain.Scheme) bool
	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	ListPayments(ctx context.Context, number string) ([]*domain.PaymentRecord, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
}

type Handler struct {
	service PaymentService
	idem    store.IdempotencyStore
	logger  *zap.Logger
}

func NewHandler(svc PaymentService, idem store.IdempotencyStore, logger *zap.Logger) *Handler {
	return &Handler{service: svc, idem: idem, logger: logger}
}

// Router wires every endpoint, the health check and the Prometheus scrape target.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/payments", h.CreatePayment).Methods(http.MethodPost)
	apiV1.HandleFunc("/payments/{transactionId}", h.GetPayment).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts/{accountNumber}", h.GetAccount).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{accountNumber}/payments", h.ListAccountPayments).Methods(http.MethodGet)

	r.Use(securityHeadersMiddleware, loggingMiddleware(h.logger), recoveryMiddleware(h.logger))
	return r
}

// securityHeadersMiddleware sets the browser hardening headers on every response.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("Content-Security-Policy", "default-src 'self'")
		hdr.Set("Expect-CT", "max-age=31556952")
		hdr.Set("X-Xss-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware turns a handler panic into a logged JSON 500.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func recoveryMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panicked",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "internal server error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs incoming HTTP requests
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("incoming request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		code = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	h.respondRaw(w, code, body, method, endpoint)
}

func (h *Handler) respondRaw(w http.ResponseWriter, code int, body []byte, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, models.ErrorResponse{Error: msg}, method, endpoint)
}
