package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/queue"
	"log/slog"
	"net/http"
	"strconv"
)

const HeaderDrainFailures = "X-Drain-Failures"

type OrderService interface {
	Process(ctx context.Context, in domain.Order) (domain.Order, error)
	ApplyUpdate(ctx context.Context, orderID int64, patch domain.OrderPatch) (domain.Order, error)
}

type QueueDrainer interface {
	Drain(ctx context.Context, handler queue.Handler) ([]queue.Outcome, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	orders  OrderService
	drainer QueueDrainer
	checks  map[string]HealthCheck
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DispatchFailedResponse is returned when the order was stored but at least
// one sink did not receive it.
type DispatchFailedResponse struct {
	ErrorResponse
	Order       domain.Order `json:"order"`
	FailedSinks []string     `json:"failed_sinks"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Response not written",
			"method", "httpapi.writeJSON",
			"error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// ListOrders drains the inbound queue once. Messages that could not be
// decoded are left in the queue and counted in the X-Drain-Failures header.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.drainer.Drain(r.Context(), func(context.Context, domain.Order) error {
		return nil
	})
	if err != nil {
		slog.Error("Drain failed",
			"method", "Handler.ListOrders",
			"error", err)
		writeError(w, http.StatusBadGateway, "queue_unavailable", "Failed to receive from the order queue")
		return
	}

	orders := queue.HandledOrders(outcomes)
	if orders == nil {
		orders = []domain.Order{}
	}

	w.Header().Set(HeaderDrainFailures, strconv.Itoa(queue.FailedCount(outcomes)))
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in domain.Order
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	order, err := h.orders.Process(r.Context(), in)

	var (
		validationErr *domain.ValidationError
		dispatchErr   *domain.DispatchError
	)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, order)
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &dispatchErr):
		writeJSON(w, http.StatusBadGateway, DispatchFailedResponse{
			ErrorResponse: ErrorResponse{Error: "dispatch_failed", Message: dispatchErr.Error()},
			Order:         order,
			FailedSinks:   dispatchErr.Sinks(),
		})
	default:
		slog.Error("Order not processed",
			"method", "Handler.CreateOrder",
			"error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "Failed to store order")
	}
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Order id must be an integer")
		return
	}

	var patch domain.OrderPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	order, err := h.orders.ApplyUpdate(r.Context(), orderID, patch)

	var validationErr *domain.ValidationError

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, order)
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Order not found")
	default:
		slog.Error("Order not updated",
			"method", "Handler.UpdateOrder",
			"order_id", orderID,
			"error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "Failed to update order")
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := map[string]string{}

	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}

	writeJSON(w, status, report)
}
