// Package envflag holds the small env-var helpers komodo-periphery's
// flag/env config merge needs, the same shape as the teacher's
// internal/utils.GetenvTrim/ParseBool used throughout cmd/pulse-docker-agent.
package envflag

import (
	"os"
	"strings"
)

// GetenvTrim reads an environment variable and trims surrounding
// whitespace, so a stray trailing newline from a mounted secret file
// doesn't leak into a flag default.
func GetenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// ParseBool accepts the common truthy spellings beyond strconv.ParseBool's
// strict "1"/"true" set, matching how operators actually set booleans in
// shell env files.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
