package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
)

const serviceName = "checkout-service"

// maxBodyBytes 是请求体的上限，订单再大也远小于这个值
const maxBodyBytes = 1 << 20

// CheckoutUseCase 是 HTTP 层用到的应用服务方法
type CheckoutUseCase interface {
	PlaceOrder(ctx context.Context, req *application.CreateOrderRequest) (*application.OrderResponse, error)
	GetOrder(ctx context.Context, orderNumber string) (*application.OrderResponse, error)
	UpdateOrderStatus(ctx context.Context, orderNumber, status string) (*application.OrderResponse, error)
}

// OrderHandler 封装了结账服务的 HTTP 处理器
type OrderHandler struct {
	service  CheckoutUseCase
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
}

// NewOrderHandler 创建 HTTP 处理器。gatherer 为 nil 时 /metrics 使用默认注册表。
func NewOrderHandler(service CheckoutUseCase, gatherer prometheus.Gatherer) *OrderHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &OrderHandler{service: service, gatherer: gatherer, tracer: otel.Tracer(serviceName)}
}

// RegisterRoutes 在 chi 路由上注册所有路由
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/{orderNumber}", h.getOrder)
		r.Patch("/{orderNumber}/status", h.updateStatus)
	})
}

// traced 从请求头中恢复上游的追踪上下文并开启服务端 span
func (h *OrderHandler) traced(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.traced(r, "http.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.PlaceOrder(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.traced(r, "http.GetOrder")
	defer span.End()

	resp, err := h.service.GetOrder(ctx, chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody 解码限长的 JSON 请求体，失败时直接写出错误响应
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Error:   "request_too_large",
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "malformed JSON body: " + err.Error()})
	return false
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.traced(r, "http.UpdateOrderStatus")
	defer span.End()

	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.service.UpdateOrderStatus(ctx, chi.URLParam(r, "orderNumber"), req.Status)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ProductID string `json:"productId,omitempty"`
	Available *int   `json:"available,omitempty"`
	Order     string `json:"orderNumber,omitempty"`
}

// writeError 把领域错误映射为 HTTP 状态码和结构化的错误体。
// CompensationError 必须先于 OrderFailedError 判断，因为它包裹着后者。
func (h *OrderHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		compErr    *domain.CompensationError
		failedErr  *domain.OrderFailedError
		persistErr *domain.PersistenceError
	)
	switch {
	case errors.As(err, &compErr):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "inventory_inconsistent",
			Message: "order was rejected and inventory requires manual reconciliation",
			Order:   compErr.OrderNumber,
		})
	case errors.Is(err, domain.ErrInvalidOrder):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_order", Message: err.Error()})
	case errors.As(err, &failedErr) && errors.Is(err, domain.ErrInsufficientStock):
		available := failedErr.Available
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     "insufficient_stock",
			Message:   fmt.Sprintf("only %d left for product %s", available, failedErr.ProductID),
			ProductID: failedErr.ProductID,
			Available: &available,
		})
	case errors.As(err, &failedErr) && errors.Is(err, domain.ErrStockConflict):
		available := failedErr.Available
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     "stock_conflict",
			Message:   fmt.Sprintf("stock of product %s changed during checkout, please retry", failedErr.ProductID),
			ProductID: failedErr.ProductID,
			Available: &available,
		})
	case errors.As(err, &failedErr) && errors.Is(err, domain.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:     "product_not_found",
			Message:   fmt.Sprintf("product %s does not exist", failedErr.ProductID),
			ProductID: failedErr.ProductID,
		})
	case errors.As(err, &persistErr):
		logger.Ctx(ctx).Error().Err(err).Msg("Order persistence failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "persistence_failed", Message: "order could not be saved, please retry"})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "order_not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid_transition", Message: err.Error()})
	case errors.Is(err, application.ErrSettingsUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Ctx(ctx).Error().Err(err).Msg("Checkout temporarily unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "checkout is temporarily unavailable"})
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("Unhandled checkout error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
