package docker

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
)

// host ports for deployed containers are drawn from this fixed range. the
// range is shared across all projects, so allocation has to be verified.
const (
	hostPortRangeStart = 8000
	hostPortRangeEnd   = 9999

	// maxPortAttempts bounds the probe loop. with ~2000 candidate ports,
	// 50 random probes failing means the host is effectively out of ports
	// (or something is very wrong), and an error beats spinning.
	maxPortAttempts = 50
)

// allocateHostPort returns a host port in [8000, 9999] that was unbound at
// the moment of allocation, or an error after bounded attempts.
//
// the check is a real bind: net.Listen on the candidate, then close. a port
// that cannot be bound (already held by another container, another process,
// or a concurrent allocation that won the race) is skipped. note the window
// between Close and the engine binding the port is not closed here — two
// pipelines can still collide in that window, and the later create fails
// cleanly rather than silently double-routing. an earlier revision of this
// platform picked randomly without probing at all, which collided under
// concurrent deployments; the probe removes the common case.
func allocateHostPort() (int, error) {
	rangeSize := hostPortRangeEnd - hostPortRangeStart + 1

	for attempt := 0; attempt < maxPortAttempts; attempt++ {
		candidate := hostPortRangeStart + rand.IntN(rangeSize)

		listener, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(candidate)))
		if err != nil {
			// bound by someone else, try another
			continue
		}
		listener.Close()
		return candidate, nil
	}

	return 0, fmt.Errorf("no free host port found in [%d, %d] after %d attempts",
		hostPortRangeStart, hostPortRangeEnd, maxPortAttempts)
}
