/*
handlers.go - HTTP API handlers for the SAP order tracker

PURPOSE:
  Exposes the tracked-order list, the check scheduler and the credential
  vault over REST. Handles HTTP request/response and JSON serialization,
  and delegates to the tracker and scheduler.

ENDPOINTS:
  Orders:
    GET    /api/orders                 List tracked orders
    POST   /api/orders                 Track a new order (checked immediately)
    GET    /api/orders/{number}        Get one order
    DELETE /api/orders/{number}        Stop tracking an order
    POST   /api/orders/{number}/check  Force a check

  Authentication:
    POST   /api/observe                Feed a captured request to the vault
    GET    /api/auth                   Which hosts have captured credentials

  Notifications:
    GET    /api/notifications          Recent notifications (?order=, ?limit=)

  Scheduler:
    GET    /api/scheduler              Periodic pass status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Order not tracked
  - 409: Order already tracked
  - 500: Internal errors (persistence)

SECURITY NOTE:
  No authentication. The server is meant to listen on localhost next to
  the browser it captures credentials from. /api/auth never returns the
  captured values.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Check triggers
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ArildWaldan/suivi-sap/tracker"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Scheduler *Scheduler
	Registry  *tracker.Registry
	Vault     *tracker.Vault

	// Notifications is optional; without it /api/notifications returns 404.
	Notifications tracker.NotificationLog
}

// NewHandler creates a new handler.
func NewHandler(scheduler *Scheduler, vault *tracker.Vault, notifications tracker.NotificationLog) *Handler {
	return &Handler{
		Scheduler:     scheduler,
		Registry:      scheduler.Registry,
		Vault:         vault,
		Notifications: notifications,
	}
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders returns every tracked order in insertion order.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.Registry.List()

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o, h.Scheduler.InFlight(o.OrderNumber))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetOrder returns a single tracked order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	order, ok := h.Registry.Get(number)
	if !ok {
		writeError(w, http.StatusNotFound, "Order not tracked", nil)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDTO(order, h.Scheduler.InFlight(number)))
}

// AddOrder starts tracking an order and triggers its first check.
func (h *Handler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req AddOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order number", err)
		return
	}

	order, err := h.Scheduler.Add(r.Context(), req.OrderNumber)
	switch {
	case errors.Is(err, tracker.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, "Order already tracked", err)
		return
	case tracker.IsValidationError(err):
		writeError(w, http.StatusBadRequest, "Invalid order number", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to save order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderDTO(order, h.Scheduler.InFlight(order.OrderNumber)))
}

// DeleteOrder stops tracking an order. Removing an untracked order is not an error.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	if err := h.Registry.Remove(r.Context(), number); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove order", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckOrder forces a check of one order. The check runs in the background.
func (h *Handler) CheckOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	started, err := h.Scheduler.CheckNow(number)
	if tracker.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Order not tracked", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start check", err)
		return
	}

	writeJSON(w, http.StatusAccepted, CheckResponse{OrderNumber: number, Started: started})
}

// =============================================================================
// AUTHENTICATION HANDLERS
// =============================================================================

// Observe feeds a request captured by a browser companion into the vault.
// Requests to unrelated hosts or with failing status codes are accepted
// and ignored.
func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	var req ObserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request descriptor", err)
		return
	}

	h.Vault.Observe(r.Context(), req.descriptor())

	w.WriteHeader(http.StatusNoContent)
}

// GetAuthStatus reports which hosts have captured credentials.
func (h *Handler) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	hosts := h.Vault.Hosts()

	dtos := make([]HostAuthDTO, 0, len(hosts))
	for _, host := range hosts {
		ac := h.Vault.Get(host)
		names := make([]string, 0, len(ac.Headers))
		for name := range ac.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		dtos = append(dtos, HostAuthDTO{
			Host:        string(host),
			Has:         !ac.Empty(),
			HasCookie:   ac.Cookie != "",
			HeaderNames: names,
		})
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// NOTIFICATION & SCHEDULER HANDLERS
// =============================================================================

// ListNotifications returns recent notifications, newest first.
// GET /api/notifications?order=123&limit=20
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.Notifications == nil {
		writeError(w, http.StatusNotFound, "Notification log not enabled", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	records, err := h.Notifications.ListNotifications(r.Context(), r.URL.Query().Get("order"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}

	dtos := make([]NotificationDTO, len(records))
	for i, rec := range records {
		dtos[i] = toNotificationDTO(rec)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedulerStatus describes the periodic pass.
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	s := h.Scheduler
	writeJSON(w, http.StatusOK, SchedulerStatusDTO{
		Running:          s.Running(),
		NextRunAt:        s.GetNextRunTime().Format(time.RFC3339),
		CheckInterval:    s.CheckInterval.String(),
		RecheckThreshold: s.RecheckThreshold.String(),
		WarningThreshold: s.WarningThreshold.String(),
		TrackedOrders:    h.Registry.Len(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func strPtr(s string) *string {
	return &s
}
