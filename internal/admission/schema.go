package admission

import "fmt"

// Redis key pattern helpers
//
// Cooldown records are stored as plain string keys with a TTL. When a namespace
// is configured, keys are prefixed with it so several deployments can share a
// single Redis server.
//
// Key pattern: cooldown:{client_identity}
// Namespaced:  {namespace}:cooldown:{client_identity}

// CooldownKey returns the Redis key holding the admission record for identity.
func CooldownKey(namespace, identity string) string {
	if namespace == "" {
		return fmt.Sprintf("cooldown:%s", identity)
	}
	return fmt.Sprintf("%s:cooldown:%s", namespace, identity)
}

// cooldownValue is the payload stored under a cooldown key. Only presence matters.
const cooldownValue = "on"
