package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type TrackingHandler struct {
	service interfaces.TrackingService
	logger  logger.Logger
}

func NewTrackingHandler(service interfaces.TrackingService, logger logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		service: service,
		logger:  logger,
	}
}

type StatusUpdateRequest struct {
	Status    string `json:"status"`
	ChangedBy string `json:"changed_by"`
}

// HandleOrders serves GET /orders, GET /orders/{number}/status|history and
// PUT /orders/{number}/status
func (h *TrackingHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("request_received", "Request received", logger.RequestID(r.Context()), map[string]interface{}{
		"path": r.URL.Path,
	})

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "orders" {
		if r.Method != http.MethodGet {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
			return
		}
		h.listOrders(w, r)
		return
	}
	if len(parts) != 3 {
		respondError(w, "Not found", http.StatusNotFound, nil)
		return
	}

	orderNumber := parts[1]
	switch {
	case parts[2] == "status" && r.Method == http.MethodGet:
		h.getOrderStatus(w, r, orderNumber)
	case parts[2] == "status" && r.Method == http.MethodPut:
		h.updateOrderStatus(w, r, orderNumber)
	case parts[2] == "history" && r.Method == http.MethodGet:
		h.getOrderHistory(w, r, orderNumber)
	case parts[2] == "status" || parts[2] == "history":
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
	default:
		respondError(w, "Not found", http.StatusNotFound, nil)
	}
}

func (h *TrackingHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := interfaces.OrderFilter{
		BusinessID: strings.TrimSpace(q.Get("business_id")),
		From:       strings.TrimSpace(q.Get("from")),
		To:         strings.TrimSpace(q.Get("to")),
	}

	var validationErrors []ValidationError
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: "status", Message: err.Error()})
		}
		filter.Status = status
	}
	for _, f := range [][2]string{{"from", filter.From}, {"to", filter.To}} {
		if f[1] == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, f[1]); err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: f[0], Message: f[0] + " must be in YYYY-MM-DD format"})
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			validationErrors = append(validationErrors, ValidationError{Field: "limit", Message: "limit must be a positive number"})
		}
		filter.Limit = limit
	}
	if len(validationErrors) > 0 {
		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	resp := make([]map[string]interface{}, len(orders))
	for i, o := range orders {
		resp[i] = orderView(o)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *TrackingHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request, orderNumber string) {
	requestID := logger.RequestID(r.Context())

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	var validationErrors []ValidationError
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "status", Message: err.Error()})
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" || !identifierRegex.MatchString(changedBy) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "changed_by",
			Message: "changed_by is required and may contain only letters, digits and . _ : -",
		})
	}
	if len(validationErrors) > 0 {
		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return
	}

	result, err := h.service.UpdateStatus(r.Context(), orderNumber, status, changedBy)
	if err != nil {
		h.logger.Error("status_update_failed", "Failed to update order status", requestID, map[string]interface{}{
			"order_number": orderNumber,
			"status":       status,
		}, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderView(result))
}

func (h *TrackingHandler) getOrderStatus(w http.ResponseWriter, r *http.Request, orderNumber string) {
	result, err := h.service.GetOrderStatus(r.Context(), orderNumber)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}

	resp := orderView(result)
	if len(result.ConversationLog) > 0 {
		resp["conversation_log"] = result.ConversationLog
	}
	respondJSON(w, http.StatusOK, resp)
}

func orderView(result *interfaces.TrackingOrderResponse) map[string]interface{} {
	items := make([]map[string]interface{}, len(result.Items))
	for i, it := range result.Items {
		items[i] = map[string]interface{}{
			"name":     it.Name,
			"quantity": it.Quantity,
			"price":    it.Price,
		}
	}

	view := map[string]interface{}{
		"order_number":   result.OrderNumber,
		"business_id":    result.BusinessID,
		"current_status": result.CurrentStatus,
		"pickup_date":    result.PickupDate,
		"pickup_slot":    result.PickupSlot,
		"customer_name":  result.CustomerName,
		"items":          items,
		"total_amount":   result.TotalAmount,
		"updated_at":     result.UpdatedAt,
		"released_at":    result.ReleasedAt,
	}
	if result.CustomerPhone != "" {
		view["customer_phone"] = result.CustomerPhone
	}
	return view
}

func (h *TrackingHandler) getOrderHistory(w http.ResponseWriter, r *http.Request, orderNumber string) {
	history, err := h.service.GetOrderHistory(r.Context(), orderNumber)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, len(history))
	for i, log := range history {
		resp[i] = map[string]interface{}{
			"status":     log.Status,
			"timestamp":  log.ChangedAt,
			"changed_by": log.ChangedBy,
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *TrackingHandler) respondLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrOrderNotFound) {
		respondError(w, "Order not found", http.StatusNotFound, nil)
		return
	}
	h.logger.Error("db_error", "Failed to load order", logger.RequestID(r.Context()), nil, err)
	respondError(w, "Service temporarily unavailable", http.StatusServiceUnavailable, nil)
}
