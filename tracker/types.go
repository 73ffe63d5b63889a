/*
Package tracker provides the core order-tracking types and state.

PURPOSE:
  Holds everything the scheduler and resolver share: tracked orders, the
  per-host authentication material captured from the host application, and
  the interfaces to the outside world (key-value persistence, notifications,
  network observation).

KEY CONCEPTS IN THIS FILE (types.go):
  - TrackedOrder: An order waiting for its SAP document number
  - Status: Position of an order in the check state machine
  - AuthContext: Headers and cookie captured for one backend host
  - Notification: A one-off alert (document found, order stale)

STATE MACHINE:
  pending --(trigger)--> checking --(outcome)--> resolved | pending | error
  error and pending may re-enter checking. resolved is terminal.

SEE ALSO:
  - registry.go: Authoritative order collection
  - vault.go: Authentication capture
  - api/scheduler.go: Drives the state machine
*/
package tracker

import (
	"context"
	"time"
)

// =============================================================================
// ORDERS
// =============================================================================

// Status is the check state of a tracked order.
type Status string

const (
	StatusPending  Status = "pending"
	StatusChecking Status = "checking"
	StatusResolved Status = "resolved"
	StatusError    Status = "error"
)

// IsTerminal reports whether no further check can change the order.
func (s Status) IsTerminal() bool {
	return s == StatusResolved
}

// TrackedOrder is an order awaiting a downstream document number.
type TrackedOrder struct {
	OrderNumber   string    `json:"orderNumber"`
	SapNumber     *string   `json:"sapNumber"`
	Status        Status    `json:"status"`
	AddedAt       time.Time `json:"addedAt"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	WarnedStale   bool      `json:"warnedStale"`
	LastError     string    `json:"lastError,omitempty"`
}

// Resolved reports whether a document number has been recorded.
func (o TrackedOrder) Resolved() bool {
	return o.SapNumber != nil
}

// NeverChecked reports whether the order has never entered checking.
func (o TrackedOrder) NeverChecked() bool {
	return o.LastCheckedAt.IsZero()
}

// DueForCheck reports whether an unresolved order was last checked more than
// threshold ago (or never).
func (o TrackedOrder) DueForCheck(now time.Time, threshold time.Duration) bool {
	if o.Resolved() {
		return false
	}
	return now.Sub(o.LastCheckedAt) > threshold
}

// DueForStaleWarning reports whether the one-time staleness alert should fire.
func (o TrackedOrder) DueForStaleWarning(now time.Time, threshold time.Duration) bool {
	return !o.Resolved() && !o.WarnedStale && now.Sub(o.AddedAt) > threshold
}

func (o TrackedOrder) clone() TrackedOrder {
	if o.SapNumber != nil {
		sap := *o.SapNumber
		o.SapNumber = &sap
	}
	return o
}

// OrderUpdate is a partial update. Nil fields are left unchanged.
type OrderUpdate struct {
	SapNumber     *string
	Status        *Status
	LastCheckedAt *time.Time
	WarnedStale   *bool
	LastError     *string
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// HostKey names one of the two backend hosts.
type HostKey string

const (
	// HostAgent serves the order lookups (stage 1 and stage 2).
	HostAgent HostKey = "agent"
	// HostPortal serves the OAuth2 revalidation endpoint.
	HostPortal HostKey = "portal"
)

// AuthContext is the authentication material captured for one host.
type AuthContext struct {
	Headers map[string]string `json:"headers"`
	Cookie  string            `json:"cookie"`
}

// Empty reports whether no header has been captured yet.
func (a AuthContext) Empty() bool {
	return len(a.Headers) == 0
}

func (a AuthContext) clone() AuthContext {
	out := AuthContext{Headers: make(map[string]string, len(a.Headers)), Cookie: a.Cookie}
	for k, v := range a.Headers {
		out.Headers[k] = v
	}
	return out
}

// RequestDescriptor describes an outgoing request that has completed.
type RequestDescriptor struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Cookie  string            `json:"cookie,omitempty"`
}

// Observer receives every completed outgoing request.
type Observer interface {
	Observe(ctx context.Context, req RequestDescriptor)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// NotificationKind distinguishes alert types.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyWarning NotificationKind = "warning"
)

// Notification is emitted once per resolution or staleness event.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	OrderNumber    string           `json:"orderNumber"`
	DocumentNumber string           `json:"documentNumber,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationRecord is a delivered notification kept in a log.
type NotificationRecord struct {
	ID string
	Notification
}

// NotificationLog lists logged notifications, newest first. An empty
// orderNumber covers every order; limit <= 0 uses the log's default.
type NotificationLog interface {
	ListNotifications(ctx context.Context, orderNumber string, limit int) ([]NotificationRecord, error)
}
