package instance

import (
	"os"

	"github.com/angelmondragon/auctionhouse-backend/pkg/env"
)

// GetID returns the process instance identifier. AUCTIONHOUSE_INSTANCE_ID wins,
// then WORKER_ID, then the hostname.
func GetID() string {
	if id := env.First("", "AUCTIONHOUSE_INSTANCE_ID", "WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
