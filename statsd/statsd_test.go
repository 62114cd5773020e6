package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestStatterCount(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer conn.Close()

	s, err := NewStatter(conn.LocalAddr().String(), "etl.", nil)
	if err != nil {
		t.Fatalf("getting statter: %v", err)
	}
	defer s.Close()
	s.Count("steps.built", 2, 1, "channel:garden")

	buf := make([]byte, 1024)
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("setting deadline: %v", err)
	}
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("reading packet: %v", err)
	}
	got := string(buf[:n])
	if !strings.HasPrefix(got, "etl.steps.built:2|c") || !strings.Contains(got, "channel:garden") {
		t.Fatalf("unexpected packet: %q", got)
	}
}
