// internal/ops/server.go
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/topup-shop-bot/internal/db"
	"github.com/rovshanmuradov/topup-shop-bot/internal/ledger"
	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
)

type Ledger interface {
	GetPayment(ctx context.Context, paymentID string) (db.PaymentRequest, error)
	ListPayments(ctx context.Context, status string, limit int) ([]db.PaymentRequest, error)
}

// PingFunc checks that storage is reachable.
type PingFunc func(ctx context.Context) error

type Handler struct {
	ledger Ledger
	ping   PingFunc
	log    *zap.Logger
}

func NewHandler(l Ledger, ping PingFunc) *Handler {
	return &Handler{ledger: l, ping: ping, log: logging.Named("ops")}
}

type paymentResponse struct {
	PaymentID    string   `json:"payment_id"`
	UserID       int64    `json:"user_id"`
	Method       string   `json:"method"`
	Amount       float64  `json:"amount"`
	Crypto       *string  `json:"crypto,omitempty"`
	CryptoAmount *float64 `json:"crypto_amount,omitempty"`
	Network      *string  `json:"network,omitempty"`
	Status       string   `json:"status"`
	CreatedAt    string   `json:"created_at"`
}

func toResponse(p db.PaymentRequest) paymentResponse {
	return paymentResponse{
		PaymentID:    p.PaymentID,
		UserID:       p.UserID,
		Method:       p.Method,
		Amount:       p.Amount,
		Crypto:       p.Crypto,
		CryptoAmount: p.CryptoAmount,
		Network:      p.Network,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.ListPayments)
		r.Get("/{paymentID}", h.GetPayment)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", db.StatusPending, db.StatusConfirmed, db.StatusRejected:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	payments, err := h.ledger.ListPayments(r.Context(), status, limit)
	if err != nil {
		h.log.Error("Failed to list payments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	p, err := h.ledger.GetPayment(r.Context(), paymentID)
	if errors.Is(err, ledger.ErrPaymentNotFound) {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		h.log.Error("Failed to get payment", zap.String("payment_id", paymentID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs the ops server until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Ops server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
