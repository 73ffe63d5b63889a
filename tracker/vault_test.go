package tracker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ArildWaldan/suivi-sap/tracker"
	"github.com/ArildWaldan/suivi-sap/tracker/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(mem *store.Memory) *tracker.Vault {
	return tracker.NewVault(mem,
		tracker.HostPattern{Key: tracker.HostAgent, Pattern: "prod-agent.castorama.fr"},
		tracker.HostPattern{Key: tracker.HostPortal, Pattern: "*.kfplc.com"},
	)
}

func TestVault_Observe_MergesHeadersPerKey(t *testing.T) {
	mem := store.NewMemory()
	v := newTestVault(mem)
	ctx := context.Background()

	v.Observe(ctx, tracker.RequestDescriptor{
		URL:    "https://prod-agent.castorama.fr/agent-front/jsp/agent/main.jsp",
		Status: 200,
		Headers: map[string]string{
			"authorization": "Bearer old",
			"x-agent-id":    "A1",
		},
		Cookie: "JSESSIONID=first",
	})
	v.Observe(ctx, tracker.RequestDescriptor{
		URL:    "https://prod-agent.castorama.fr/agent-front/api/ping",
		Status: 204,
		Headers: map[string]string{
			"Authorization": "Bearer new",
			"X-Agent-Id":    "",
		},
		Cookie: "JSESSIONID=second",
	})

	ac := v.Get(tracker.HostAgent)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer new",
		"X-Agent-Id":    "A1",
	}, ac.Headers)
	assert.Equal(t, "JSESSIONID=second", ac.Cookie)
	assert.True(t, v.Has(tracker.HostAgent))
	assert.False(t, v.Has(tracker.HostPortal))
}

func TestVault_Observe_CookieHeaderGoesToCookieField(t *testing.T) {
	v := newTestVault(store.NewMemory())

	v.Observe(context.Background(), tracker.RequestDescriptor{
		URL:     "https://dc.kfplc.com/api/orders",
		Status:  200,
		Headers: map[string]string{"Cookie": "sid=abc", "Accept": "*/*"},
	})

	ac := v.Get(tracker.HostPortal)
	assert.Equal(t, "sid=abc", ac.Cookie)
	assert.NotContains(t, ac.Headers, "Cookie")
}

func TestVault_Observe_IgnoresFailuresAndForeignHosts(t *testing.T) {
	mem := store.NewMemory()
	v := newTestVault(mem)
	ctx := context.Background()

	v.Observe(ctx, tracker.RequestDescriptor{
		URL:     "https://prod-agent.castorama.fr/x",
		Status:  401,
		Headers: map[string]string{"Authorization": "Bearer rejected"},
	})
	v.Observe(ctx, tracker.RequestDescriptor{
		URL:     "https://example.com/x",
		Status:  200,
		Headers: map[string]string{"Authorization": "Bearer other"},
	})
	v.Observe(ctx, tracker.RequestDescriptor{
		URL:     "::not a url",
		Status:  200,
		Headers: map[string]string{"Authorization": "Bearer other"},
	})

	assert.False(t, v.Has(tracker.HostAgent))
	assert.False(t, v.Has(tracker.HostPortal))
	assert.Zero(t, mem.Writes(tracker.AuthKey(tracker.HostAgent)))
	assert.Zero(t, mem.Writes(tracker.AuthKey(tracker.HostPortal)))
}

func TestVault_Observe_PersistsImmediately(t *testing.T) {
	mem := store.NewMemory()
	v := newTestVault(mem)
	ctx := context.Background()

	v.Observe(ctx, tracker.RequestDescriptor{
		URL:     "https://DC.kfplc.com/auth/me",
		Status:  200,
		Headers: map[string]string{"Authorization": "Bearer portal"},
		Cookie:  "sid=1",
	})

	raw, err := mem.Get(ctx, tracker.AuthKey(tracker.HostPortal), "")
	require.NoError(t, err)
	var ac tracker.AuthContext
	require.NoError(t, json.Unmarshal([]byte(raw), &ac))
	assert.Equal(t, "Bearer portal", ac.Headers["Authorization"])
	assert.Equal(t, "sid=1", ac.Cookie)

	reloaded := newTestVault(mem)
	reloaded.Load(ctx)
	assert.Equal(t, ac, reloaded.Get(tracker.HostPortal))
}

func TestVault_Load_MalformedEntryStartsEmpty(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, tracker.AuthKey(tracker.HostAgent), "{broken"))

	v := newTestVault(mem)
	v.Load(ctx)
	assert.False(t, v.Has(tracker.HostAgent))
}

func TestVault_Get_ReturnsCopy(t *testing.T) {
	v := newTestVault(store.NewMemory())
	v.Observe(context.Background(), tracker.RequestDescriptor{
		URL:     "https://prod-agent.castorama.fr/",
		Status:  200,
		Headers: map[string]string{"Authorization": "Bearer a"},
	})

	ac := v.Get(tracker.HostAgent)
	ac.Headers["Authorization"] = "mutated"

	assert.Equal(t, "Bearer a", v.Get(tracker.HostAgent).Headers["Authorization"])
}
