package health

import (
	"net"
	"testing"
	"time"
)

func TestProbe_SucceedsAgainstLocalListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	latency, err := Probe(ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if latency < 0 {
		t.Fatalf("expected non-negative latency, got %f", latency)
	}
}

func TestProbe_FailsAgainstClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Probe(addr, 200*time.Millisecond); err == nil {
		t.Fatal("expected error probing a closed port")
	}
}
