package probe_test

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/jacobpro/calpol/internal/probe"
)

func TestEvaluate_TCP_Success(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant:   &probe.TCPConfig{Type: probe.KindTCP, Host: "127.0.0.1", Port: uint16(port)},
	}
	if err := probe.Evaluate(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluate_TCP_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close() // nothing listening now

	cfg := probe.Config{
		IPVersion: probe.IPVersionV4,
		Variant:   &probe.TCPConfig{Type: probe.KindTCP, Host: "127.0.0.1", Port: uint16(port)},
	}
	if err := probe.Evaluate(context.Background(), cfg); err == nil {
		t.Fatal("expected error dialing closed port")
	}
}
