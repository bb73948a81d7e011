package redis

import "strings"

const keyNamespace = "cn"

// IdempotencyKey namespaces stored idempotent responses and consumer markers.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

// RateLimitKey namespaces fixed-window counters.
func (c *Client) RateLimitKey(parts ...string) string {
	return key(append([]string{"rate_limit"}, parts...)...)
}

// AccessSessionKey is where the identity service records live access tokens.
func (c *Client) AccessSessionKey(accessID string) string {
	return key("session", "access", accessID)
}

// LockKey namespaces distributed locks.
func (c *Client) LockKey(name string) string {
	return key("lock", name)
}

// key joins non-empty parts under the namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
