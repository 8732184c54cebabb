package health

import (
	"net"
	"time"
)

// Probe measures one TCP round-trip to addr and returns the elapsed time in
// milliseconds (§4.2 "a network latency probe"). The "round trip" here is
// the connect handshake itself; no payload is exchanged.
func Probe(addr string, timeout time.Duration) (latencyMs float64, err error) {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return float64(time.Since(start).Microseconds()) / 1000.0, nil
}
