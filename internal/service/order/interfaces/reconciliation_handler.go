package interfaces

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/service/order/application"
)

// ReconciliationQueue 是对账 worker 的运维接口依赖的方法
type ReconciliationQueue interface {
	Outstanding() []application.OutstandingStock
	Resolve(ctx context.Context, productID string) (application.OutstandingStock, error)
}

// ReconciliationHandler 暴露待人工修正的库存
type ReconciliationHandler struct {
	queue    ReconciliationQueue
	gatherer prometheus.Gatherer
}

func NewReconciliationHandler(queue ReconciliationQueue, gatherer prometheus.Gatherer) *ReconciliationHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &ReconciliationHandler{queue: queue, gatherer: gatherer}
}

func (h *ReconciliationHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Route("/api/v1/reconciliation", func(r chi.Router) {
		r.Get("/", h.list)
		r.Delete("/{productId}", h.resolve)
	})
}

func (h *ReconciliationHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Outstanding())
}

func (h *ReconciliationHandler) resolve(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	resolved, err := h.queue.Resolve(r.Context(), productID)
	if errors.Is(err, application.ErrNothingOutstanding) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error(), ProductID: productID})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
