package resolver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ArildWaldan/suivi-sap/resolver"
	"github.com/ArildWaldan/suivi-sap/tracker"
	"github.com/ArildWaldan/suivi-sap/tracker/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservingTransport_FeedsVault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/denied" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	hostname := host[:strings.LastIndex(host, ":")]
	vault := tracker.NewVault(store.NewMemory(), tracker.HostPattern{Key: tracker.HostAgent, Pattern: hostname})

	client := &http.Client{Transport: &resolver.ObservingTransport{Base: srv.Client().Transport, Observer: vault}}

	send := func(path, token string) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", token)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "s1"})
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	send("/denied", "Bearer rejected")
	assert.False(t, vault.Has(tracker.HostAgent))

	send("/ok", "Bearer accepted")
	ac := vault.Get(tracker.HostAgent)
	assert.Equal(t, "Bearer accepted", ac.Headers["Authorization"])
	assert.Equal(t, "sid=s1", ac.Cookie)
}

func TestObservingTransport_IgnoresResolverTraffic(t *testing.T) {
	b := &backend{stage1Body: stage1OK, stage2Body: stage2OK}
	agent := httptest.NewServer(b.agent())
	portal := httptest.NewServer(b.portal())
	defer agent.Close()
	defer portal.Close()

	vault := tracker.NewVault(store.NewMemory(), tracker.HostPattern{Key: tracker.HostAgent, Pattern: "127.0.0.1"})
	vault.Observe(context.Background(), tracker.RequestDescriptor{
		URL:     agent.URL + "/agent-front/jsp/agent/main.jsp",
		Status:  http.StatusOK,
		Headers: map[string]string{"Authorization": "Bearer host-app"},
	})

	cfg := resolver.DefaultConfig()
	cfg.AgentBaseURL = agent.URL
	cfg.PortalBaseURL = portal.URL
	client := &http.Client{Transport: &resolver.ObservingTransport{Base: agent.Client().Transport, Observer: vault}}
	r := resolver.New(cfg, vault, client)

	for i := 0; i < 2; i++ {
		doc, found, err := r.Resolve(context.Background(), "123456")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "600001234", doc)
	}

	assert.Equal(t, map[string]string{"Authorization": "Bearer host-app"}, vault.Get(tracker.HostAgent).Headers)

	require.Len(t, b.stage1, 2)
	second := b.stage1[1].Header
	assert.Equal(t, "application/json, text/javascript, */*; q=0.01", second.Get("Accept"))
	assert.Empty(t, second.Get("Content-Type"))
	assert.Empty(t, second.Get("Origin"))
	assert.Empty(t, second.Get("Referer"))
	assert.Equal(t, "Bearer host-app", second.Get("Authorization"))

	require.Len(t, b.stage2, 2)
	assert.Equal(t, "*/*", b.stage2[1].Header.Get("Accept"))
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", b.stage2[1].Header.Get("Content-Type"))
}

func TestObservingTransport_NothingCapturedFromResolverAlone(t *testing.T) {
	b := &backend{stage1Body: stage1OK, stage2Body: stage2No}
	agent := httptest.NewServer(b.agent())
	defer agent.Close()

	vault := tracker.NewVault(store.NewMemory(), tracker.HostPattern{Key: tracker.HostAgent, Pattern: "127.0.0.1"})
	cfg := resolver.DefaultConfig()
	cfg.AgentBaseURL = agent.URL
	cfg.PortalBaseURL = agent.URL
	client := &http.Client{Transport: &resolver.ObservingTransport{Base: agent.Client().Transport, Observer: vault}}

	_, found, err := resolver.New(cfg, vault, client).Resolve(context.Background(), "123456")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, vault.Has(tracker.HostAgent))
}
