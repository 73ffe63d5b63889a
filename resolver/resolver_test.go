package resolver_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ArildWaldan/suivi-sap/resolver"
	"github.com/ArildWaldan/suivi-sap/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type staticCreds map[tracker.HostKey]tracker.AuthContext

func (s staticCreds) Get(host tracker.HostKey) tracker.AuthContext {
	return s[host]
}

// backend records calls made to the fake agent and portal hosts.
type backend struct {
	mu           sync.Mutex
	stage1       []*http.Request
	stage2       []*http.Request
	stage2Bodies []string
	reauths      []*http.Request

	stage1Status func(attempt int) int
	stage1Body   string
	stage2Status func(attempt int) int
	stage2Body   string
}

func (b *backend) agent() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent-front/jsp/storeStart/responseOrderStatusFindJson.jsp", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.stage1 = append(b.stage1, r.Clone(context.Background()))
		attempt := len(b.stage1)
		b.mu.Unlock()

		status := http.StatusOK
		if b.stage1Status != nil {
			status = b.stage1Status(attempt)
		}
		w.WriteHeader(status)
		io.WriteString(w, b.stage1Body)
	})
	mux.HandleFunc("/agent-front/jsp/customer/order.jsp", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.stage2 = append(b.stage2, r.Clone(context.Background()))
		b.stage2Bodies = append(b.stage2Bodies, string(body))
		attempt := len(b.stage2)
		b.mu.Unlock()

		status := http.StatusOK
		if b.stage2Status != nil {
			status = b.stage2Status(attempt)
		}
		w.WriteHeader(status)
		io.WriteString(w, b.stage2Body)
	})
	return mux
}

func (b *backend) portal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.reauths = append(b.reauths, r.Clone(context.Background()))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func newTestResolver(t *testing.T, b *backend, creds staticCreds) *resolver.Resolver {
	t.Helper()
	agent := httptest.NewServer(b.agent())
	portal := httptest.NewServer(b.portal())
	t.Cleanup(agent.Close)
	t.Cleanup(portal.Close)

	cfg := resolver.DefaultConfig()
	cfg.AgentBaseURL = agent.URL
	cfg.PortalBaseURL = portal.URL
	cfg.Timeout = 2 * time.Second
	return resolver.New(cfg, creds, agent.Client())
}

const (
	stage1OK = `{"vieworderurl":"/agent-front/jsp/customer/order.jsp?orderId=o123456&tab=1"}`
	stage2OK = `<table><tr><th>N° document.</th></tr><tbody><tr><td>600001234</td></tr></tbody></table>`
	stage2No = `<table><tr><th>N° document.</th></tr><tbody><tr><td>512345</td></tr></tbody></table>`
)

func statusSequence(codes ...int) func(int) int {
	return func(attempt int) int {
		if attempt-1 < len(codes) {
			return codes[attempt-1]
		}
		return http.StatusOK
	}
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolve_FindsDocumentNumber(t *testing.T) {
	b := &backend{stage1Body: stage1OK, stage2Body: stage2OK}
	r := newTestResolver(t, b, nil)

	doc, found, err := r.Resolve(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "600001234", doc)

	require.Len(t, b.stage1, 1)
	assert.Equal(t, http.MethodGet, b.stage1[0].Method)
	assert.Equal(t, "123456", b.stage1[0].URL.Query().Get("orderNumber"))

	require.Len(t, b.stage2, 1)
	assert.Equal(t, http.MethodPost, b.stage2[0].Method)
	assert.Equal(t, "o123456", b.stage2[0].URL.Query().Get("orderId"))
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", b.stage2[0].Header.Get("Content-Type"))
	assert.Empty(t, b.stage2Bodies[0])
	assert.Empty(t, b.reauths)
}

func TestResolve_NotYetAvailable(t *testing.T) {
	b := &backend{stage1Body: stage1OK, stage2Body: stage2No}
	r := newTestResolver(t, b, nil)

	doc, found, err := r.Resolve(context.Background(), "123456")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, doc)
}

func TestResolve_ReplaysCapturedCredentials(t *testing.T) {
	b := &backend{stage1Body: stage1OK, stage2Body: stage2OK}
	creds := staticCreds{
		tracker.HostAgent: {
			Headers: map[string]string{
				"Authorization":    "Bearer agent-token",
				"X-Requested-With": "AgentFront",
				"Sec-Fetch-Mode":   "cors",
				"Connection":       "keep-alive",
				"Cookie":           "stale=1",
			},
			Cookie: "JSESSIONID=abc; route=r1",
		},
	}
	r := newTestResolver(t, b, creds)

	_, _, err := r.Resolve(context.Background(), "1")
	require.NoError(t, err)

	req := b.stage1[0]
	assert.Equal(t, "Bearer agent-token", req.Header.Get("Authorization"))
	assert.Equal(t, "AgentFront", req.Header.Get("X-Requested-With"), "captured value overrides default")
	assert.Equal(t, "application/json, text/javascript, */*; q=0.01", req.Header.Get("Accept"))
	assert.Empty(t, req.Header.Get("Sec-Fetch-Mode"))

	session, err := req.Cookie("JSESSIONID")
	require.NoError(t, err)
	assert.Equal(t, "abc", session.Value)
	route, err := req.Cookie("route")
	require.NoError(t, err)
	assert.Equal(t, "r1", route.Value)
	_, err = req.Cookie("stale")
	assert.ErrorIs(t, err, http.ErrNoCookie)
}

// =============================================================================
// REAUTH AND RETRY
// =============================================================================

func TestResolve_Stage1Unauthorized_ReauthsAndRetriesOnce(t *testing.T) {
	b := &backend{
		stage1Status: statusSequence(http.StatusUnauthorized),
		stage1Body:   stage1OK,
		stage2Body:   stage2OK,
	}
	creds := staticCreds{
		tracker.HostPortal: {Headers: map[string]string{"Authorization": "Bearer portal"}, Cookie: "sid=p"},
	}
	r := newTestResolver(t, b, creds)

	doc, found, err := r.Resolve(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "600001234", doc)

	assert.Len(t, b.stage1, 2)
	require.Len(t, b.reauths, 1)
	assert.Equal(t, "/auth/validate/oauth2", b.reauths[0].URL.Path)
	assert.Equal(t, http.MethodGet, b.reauths[0].Method)
	assert.Equal(t, "Bearer portal", b.reauths[0].Header.Get("Authorization"))
	assert.Len(t, b.stage2, 1)
}

func TestResolve_Stage1FailsTwice_ShortCircuits(t *testing.T) {
	b := &backend{
		stage1Status: statusSequence(http.StatusUnauthorized, http.StatusForbidden),
		stage1Body:   stage1OK,
		stage2Body:   stage2OK,
	}
	r := newTestResolver(t, b, nil)

	_, _, err := r.Resolve(context.Background(), "123456")

	var re *resolver.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, resolver.StageOne, re.Stage)
	var se *resolver.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code, "retry's failure is the one reported")

	assert.Len(t, b.stage1, 2)
	assert.Len(t, b.reauths, 1)
	assert.Empty(t, b.stage2)
}

func TestResolve_Stage1BadBody_NoRetry(t *testing.T) {
	b := &backend{stage1Body: `{"status":"unknown"}`, stage2Body: stage2OK}
	r := newTestResolver(t, b, nil)

	_, _, err := r.Resolve(context.Background(), "123456")

	assert.Equal(t, resolver.StageOne, resolver.StageOf(err))
	assert.Len(t, b.stage1, 1)
	assert.Empty(t, b.reauths)
}

func TestResolve_Stage2Failure_RetriedIndependently(t *testing.T) {
	b := &backend{
		stage1Body:   stage1OK,
		stage2Status: statusSequence(http.StatusInternalServerError, http.StatusBadGateway),
		stage2Body:   stage2OK,
	}
	r := newTestResolver(t, b, nil)

	_, _, err := r.Resolve(context.Background(), "123456")

	assert.Equal(t, resolver.StageTwo, resolver.StageOf(err))
	assert.Len(t, b.stage1, 1)
	assert.Len(t, b.stage2, 2)
	assert.Len(t, b.reauths, 1)
}

func TestResolve_CallTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer slow.Close()
	defer close(release)

	cfg := resolver.DefaultConfig()
	cfg.AgentBaseURL = slow.URL
	cfg.PortalBaseURL = slow.URL
	cfg.Timeout = 50 * time.Millisecond
	r := resolver.New(cfg, staticCreds{}, slow.Client())

	start := time.Now()
	_, _, err := r.Resolve(context.Background(), "1")
	assert.Equal(t, resolver.StageOne, resolver.StageOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}
