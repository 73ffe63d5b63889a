/*
store.go - Persistence interface for tracker state

PURPOSE:
  The registry and the vault persist through a plain key-value store. Each
  mutation rewrites the whole value for its key; there is no incremental diff.

KEYS:
  OrdersKey:            JSON array of TrackedOrder
  AuthKey(HostAgent):   JSON AuthContext for the agent host
  AuthKey(HostPortal):  JSON AuthContext for the portal host

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite-backed, for the server
  - tracker/store/memory.go: In-memory, for tests
*/
package tracker

import "context"

// KVStore persists string values by key.
type KVStore interface {
	// Get returns the stored value, or fallback when the key is absent.
	Get(ctx context.Context, key, fallback string) (string, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key, value string) error
}

// OrdersKey holds the serialized order collection.
const OrdersKey = "trackedSapOrders"

// AuthKey returns the key holding the AuthContext for host.
func AuthKey(host HostKey) string {
	return "sapAuth_" + string(host)
}
