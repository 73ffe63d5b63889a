/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the HTTP API. Tracked orders are exposed
  in snake_case with RFC 3339 timestamps; the persisted snapshot keeps its
  own camelCase layout (see tracker/types.go).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags and a Validate method.
  Handlers call Validate before touching the domain.

SEE ALSO:
  - handlers.go: Uses these types
  - tracker/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/ArildWaldan/suivi-sap/tracker"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// =============================================================================
// ORDERS
// =============================================================================

// OrderDTO represents a tracked order in API responses.
type OrderDTO struct {
	OrderNumber   string  `json:"order_number"`
	SapNumber     *string `json:"sap_number"`
	Status        string  `json:"status"`
	AddedAt       string  `json:"added_at"`
	LastCheckedAt *string `json:"last_checked_at"`
	WarnedStale   bool    `json:"warned_stale"`
	LastError     string  `json:"last_error,omitempty"`
	CheckInFlight bool    `json:"check_in_flight"`
}

func toOrderDTO(o tracker.TrackedOrder, inFlight bool) OrderDTO {
	dto := OrderDTO{
		OrderNumber:   o.OrderNumber,
		SapNumber:     o.SapNumber,
		Status:        string(o.Status),
		AddedAt:       o.AddedAt.Format(time.RFC3339),
		WarnedStale:   o.WarnedStale,
		LastError:     o.LastError,
		CheckInFlight: inFlight,
	}
	if !o.NeverChecked() {
		dto.LastCheckedAt = strPtr(o.LastCheckedAt.Format(time.RFC3339))
	}
	return dto
}

// AddOrderRequest is the body of POST /api/orders.
type AddOrderRequest struct {
	OrderNumber string `json:"order_number" validate:"required,number"`
}

// Validate checks the order number is a non-empty digit string.
func (r *AddOrderRequest) Validate() error {
	return validate.Struct(r)
}

// CheckResponse is returned by POST /api/orders/{number}/check.
type CheckResponse struct {
	OrderNumber string `json:"order_number"`
	Started     bool   `json:"started"`
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// ObserveRequest is a completed request captured outside the process.
type ObserveRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url" validate:"required,url"`
	Status  int               `json:"status" validate:"gte=0,lte=599"`
	Headers map[string]string `json:"headers"`
	Cookie  string            `json:"cookie"`
}

// Validate checks the URL is absolute and the status is a plausible HTTP code.
func (r *ObserveRequest) Validate() error {
	return validate.Struct(r)
}

func (r ObserveRequest) descriptor() tracker.RequestDescriptor {
	return tracker.RequestDescriptor{
		Method:  r.Method,
		URL:     r.URL,
		Status:  r.Status,
		Headers: r.Headers,
		Cookie:  r.Cookie,
	}
}

// HostAuthDTO reports whether credentials were captured for one host.
// Header values and cookies are never returned.
type HostAuthDTO struct {
	Host        string   `json:"host"`
	Has         bool     `json:"has"`
	HasCookie   bool     `json:"has_cookie"`
	HeaderNames []string `json:"header_names"`
}

// =============================================================================
// NOTIFICATIONS & SCHEDULER
// =============================================================================

// NotificationDTO represents a logged notification.
type NotificationDTO struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	OrderNumber    string `json:"order_number"`
	DocumentNumber string `json:"document_number,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toNotificationDTO(r tracker.NotificationRecord) NotificationDTO {
	return NotificationDTO{
		ID:             r.ID,
		Kind:           string(r.Kind),
		OrderNumber:    r.OrderNumber,
		DocumentNumber: r.DocumentNumber,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
}

// SchedulerStatusDTO describes the periodic pass.
type SchedulerStatusDTO struct {
	Running          bool   `json:"running"`
	NextRunAt        string `json:"next_run_at"`
	CheckInterval    string `json:"check_interval"`
	RecheckThreshold string `json:"recheck_threshold"`
	WarningThreshold string `json:"warning_threshold"`
	TrackedOrders    int    `json:"tracked_orders"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
