// Package instance names the running process in logs and lock owners.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// ID returns CRIBNOSH_INSTANCE_ID, then DYNO, then the hostname.
func ID() string {
	for _, key := range []string{"CRIBNOSH_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
