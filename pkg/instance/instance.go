package instance

import (
	"os"

	"github.com/canopyhq/canopy-backend/pkg/env"
)

// GetID identifies the running process in logs and lock ownership. It prefers
// an explicit CANOPY_INSTANCE_ID, then the platform dyno name, then the host.
func GetID() string {
	if id := env.Get("CANOPY_INSTANCE_ID", env.Get("DYNO", "")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
