/*
vault.go - Passive capture of backend authentication material

PURPOSE:
  The host application owns the login flow for both backend hosts. The vault
  listens to the requests it already makes, keeps the headers and cookie of the
  ones that succeeded, and hands them back to the resolver for replay.

MERGE RULES:
  - Only 2xx requests to a configured host are observed
  - Headers merge per key, latest non-empty value wins
  - A Cookie header is routed to the cookie field
  - The cookie string is replaced whole when a new one is seen

No TTL and no validation: stale credentials surface as failed calls, which the
resolver answers with a reauthentication and one retry.
*/
package tracker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
)

// HostPattern binds a host key to a hostname glob (path.Match syntax).
type HostPattern struct {
	Key     HostKey
	Pattern string
}

// Vault stores one AuthContext per backend host.
type Vault struct {
	store    KVStore
	patterns []HostPattern

	mu       sync.Mutex
	contexts map[HostKey]AuthContext
}

// NewVault creates a vault observing the given host patterns.
func NewVault(store KVStore, patterns ...HostPattern) *Vault {
	return &Vault{
		store:    store,
		patterns: patterns,
		contexts: make(map[HostKey]AuthContext),
	}
}

// Load rehydrates every configured host's context. Unreadable entries start empty.
func (v *Vault) Load(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, p := range v.patterns {
		key := AuthKey(p.Key)
		raw, err := v.store.Get(ctx, key, "")
		if err != nil {
			log.Printf("[Vault] %v", &PersistenceReadError{Key: key, Cause: err})
			continue
		}
		if raw == "" {
			continue
		}
		var ac AuthContext
		if err := json.Unmarshal([]byte(raw), &ac); err != nil {
			log.Printf("[Vault] %v", &PersistenceReadError{Key: key, Cause: err})
			continue
		}
		v.contexts[p.Key] = ac
	}
}

// Observe merges the credentials of a completed request into the matching host.
func (v *Vault) Observe(ctx context.Context, req RequestDescriptor) {
	if req.Status < 200 || req.Status >= 300 {
		return
	}
	host, ok := v.match(req.URL)
	if !ok {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	ac := v.contexts[host].clone()
	for name, value := range req.Headers {
		if value == "" {
			continue
		}
		canonical := http.CanonicalHeaderKey(name)
		if canonical == "Cookie" {
			ac.Cookie = value
			continue
		}
		ac.Headers[canonical] = value
	}
	if req.Cookie != "" {
		ac.Cookie = req.Cookie
	}
	v.contexts[host] = ac

	data, err := json.Marshal(ac)
	if err != nil {
		log.Printf("[Vault] Error encoding %s context: %v", host, err)
		return
	}
	if err := v.store.Set(ctx, AuthKey(host), string(data)); err != nil {
		log.Printf("[Vault] Error saving %s context: %v", host, err)
	}
}

// Get returns a copy of the context captured for host.
func (v *Vault) Get(host HostKey) AuthContext {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.contexts[host].clone()
}

// Has reports whether any header has been captured for host.
func (v *Vault) Has(host HostKey) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.contexts[host].Empty()
}

// Hosts returns the configured host keys in configuration order.
func (v *Vault) Hosts() []HostKey {
	out := make([]HostKey, len(v.patterns))
	for i, p := range v.patterns {
		out[i] = p.Key
	}
	return out
}

func (v *Vault) match(rawURL string) (HostKey, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", false
	}
	for _, p := range v.patterns {
		if ok, _ := path.Match(strings.ToLower(p.Pattern), hostname); ok {
			return p.Key, true
		}
	}
	return "", false
}
