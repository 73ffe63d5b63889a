/*
Package resolver maps an order number to its SAP document number.

PURPOSE:
  Replays the calls the agent front-end makes when an operator opens an order,
  using credentials captured by the vault.

PROCEDURE:
  1. Stage 1: GET responseOrderStatusFindJson.jsp?orderNumber={n}
     JSON body, vieworderurl carries orderId=<id>
  2. Stage 2: POST order.jsp?orderId={id} (empty form body)
     HTML body, the "N° document" table carries the SAP number

  Stage 1 failure short-circuits. Stage 2 finding no number is not an error:
  it is the normal state of an order still waiting on SAP.

REAUTHENTICATION:
  Each stage call runs under RetryAfterReauth. A failed call triggers one
  GET <portal>/auth/validate/oauth2, whose result is ignored, and one retry.

TIMEOUTS:
  Every call (stage or reauth) has its own deadline, Config.Timeout.

SEE ALSO:
  - retry.go: Two-attempt policy
  - parse.go: Body parsing for both stages
  - tracker/vault.go: Where credentials come from
*/
package resolver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ArildWaldan/suivi-sap/tracker"
)

// Credentials supplies the captured AuthContext for a host.
type Credentials interface {
	Get(host tracker.HostKey) tracker.AuthContext
}

// Config holds backend locations and parsing constants.
type Config struct {
	AgentBaseURL  string
	PortalBaseURL string

	OrderStatusPath string
	OrderPagePath   string
	RefererPath     string
	ReauthPath      string

	Timeout time.Duration

	// DocumentLabels identify the header cell of the document number table.
	DocumentLabels []string
	// SentinelDigit is the leading digit of a real SAP document number.
	SentinelDigit byte
}

// DefaultConfig returns the production backend configuration.
func DefaultConfig() Config {
	return Config{
		AgentBaseURL:    "https://prod-agent.castorama.fr",
		PortalBaseURL:   "https://dc.kfplc.com",
		OrderStatusPath: "/agent-front/jsp/storeStart/responseOrderStatusFindJson.jsp",
		OrderPagePath:   "/agent-front/jsp/customer/order.jsp",
		RefererPath:     "/agent-front/jsp/agent/main.jsp",
		ReauthPath:      "/auth/validate/oauth2",
		Timeout:         30 * time.Second,
		DocumentLabels:  []string{"N° document", "document number"},
		SentinelDigit:   '6',
	}
}

// Resolver runs the two-stage lookup.
type Resolver struct {
	cfg   Config
	creds Credentials
	http  *http.Client
}

// New creates a resolver. A nil client gets a default one.
func New(cfg Config, creds Credentials, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SentinelDigit == 0 {
		cfg.SentinelDigit = '6'
	}
	if len(cfg.DocumentLabels) == 0 {
		cfg.DocumentLabels = DefaultConfig().DocumentLabels
	}
	cfg.AgentBaseURL = strings.TrimRight(cfg.AgentBaseURL, "/")
	cfg.PortalBaseURL = strings.TrimRight(cfg.PortalBaseURL, "/")
	return &Resolver{cfg: cfg, creds: creds, http: client}
}

// Resolve returns the document number for orderNumber. found is false, with
// a nil error, when the backend has not assigned one yet.
func (r *Resolver) Resolve(ctx context.Context, orderNumber string) (documentNumber string, found bool, err error) {
	orderID, err := r.FindOrderID(ctx, orderNumber)
	if err != nil {
		return "", false, err
	}
	return r.FindDocumentNumber(ctx, orderID)
}

// FindOrderID runs stage 1.
func (r *Resolver) FindOrderID(ctx context.Context, orderNumber string) (string, error) {
	target := r.cfg.AgentBaseURL + r.cfg.OrderStatusPath + "?" + url.Values{"orderNumber": {orderNumber}}.Encode()
	defaults := map[string]string{
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"X-Requested-With": "XMLHttpRequest",
	}

	out := RetryAfterReauth(ctx, func(ctx context.Context) (*Response, error) {
		return r.exchange(ctx, tracker.HostAgent, http.MethodGet, target, defaults)
	}, r.reauthenticate)
	if !out.OK() {
		return "", &ResolutionError{Stage: StageOne, Cause: out.Err}
	}

	orderID, err := parseOrderID(out.Response.Body)
	if err != nil {
		return "", &ResolutionError{Stage: StageOne, Cause: err}
	}
	return orderID, nil
}

// FindDocumentNumber runs stage 2.
func (r *Resolver) FindDocumentNumber(ctx context.Context, orderID string) (string, bool, error) {
	target := r.cfg.AgentBaseURL + r.cfg.OrderPagePath + "?" + url.Values{"orderId": {orderID}}.Encode()
	defaults := map[string]string{
		"Accept":           "*/*",
		"X-Requested-With": "XMLHttpRequest",
		"Origin":           r.cfg.AgentBaseURL,
		"Referer":          r.cfg.AgentBaseURL + r.cfg.RefererPath,
	}

	out := RetryAfterReauth(ctx, func(ctx context.Context) (*Response, error) {
		return r.exchange(ctx, tracker.HostAgent, http.MethodPost, target, defaults)
	}, r.reauthenticate)
	if !out.OK() {
		return "", false, &ResolutionError{Stage: StageTwo, Cause: out.Err}
	}

	doc, found, err := parseDocumentNumber(out.Response.Body, r.cfg.DocumentLabels, r.cfg.SentinelDigit)
	if err != nil {
		return "", false, &ResolutionError{Stage: StageTwo, Cause: err}
	}
	return doc, found, nil
}

// reauthenticate pings the portal validation endpoint. The outcome is
// ignored; the call exists to refresh the session on the backend side.
func (r *Resolver) reauthenticate(ctx context.Context) {
	target := r.cfg.PortalBaseURL + r.cfg.ReauthPath
	if _, err := r.exchange(ctx, tracker.HostPortal, http.MethodGet, target, nil); err != nil {
		log.Printf("[Resolver] Reauthentication call failed: %v", err)
	}
}

func (r *Resolver) exchange(ctx context.Context, host tracker.HostKey, method, target string, defaults map[string]string) (*Response, error) {
	ctx, cancel := context.WithTimeout(markResolverRequest(ctx), r.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	applyAuth(req, defaults, r.creds.Get(host))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
