package ps

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// ClockOffset is how far the local clock is behind the NTP server.
// Artifact timestamps are only as good as this.
func ClockOffset(server string) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: 2 * time.Second})
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", server, err)
	}
	if err = resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid response from %s: %w", server, err)
	}

	return resp.ClockOffset, nil
}
