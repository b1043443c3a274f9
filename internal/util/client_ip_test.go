package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	lb, err := NewTrustedProxies([]string{"35.191.0.0/16", "130.211.0.0/22", "fd00::1"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name     string
		remote   string
		forward  string
		realIP   string
		trusted  *TrustedProxies
		expected string
	}{
		{"direct caller ignores forwarded headers", "198.51.100.10:443", "203.0.113.5", "203.0.113.6", nil, "198.51.100.10"},
		{"load balancer hop is skipped", "35.191.4.2:5000", "203.0.113.5", "", lb, "203.0.113.5"},
		{"spoofed leftmost entry is ignored", "35.191.4.2:5000", "1.1.1.1, 203.0.113.5, 130.211.1.9", "", lb, "203.0.113.5"},
		{"ipv6 proxy", "[fd00::1]:8080", "2001:db8::7", "", lb, "2001:db8::7"},
		{"ipv4-mapped remote is unmapped", "[::ffff:198.51.100.3]:1234", "", "", nil, "198.51.100.3"},
		{"real ip used when forwarded list is garbage", "35.191.4.2:5000", "unknown", "203.0.113.9", lb, "203.0.113.9"},
		{"unparseable remote returned as is", "pipe", "", "", lb, "pipe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/getDc3RecordsByUser", nil)
			req.RemoteAddr = tc.remote
			if tc.forward != "" {
				req.Header.Set("X-Forwarded-For", tc.forward)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.trusted); got != tc.expected {
				t.Fatalf("ClientIP = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	got, err := NewTrustedProxies([]string{" ", ""})
	if err != nil || got != nil {
		t.Fatalf("blank entries should trust nothing, got %v %v", got, err)
	}
	if _, err := NewTrustedProxies([]string{"35.191.0.0/33"}); err == nil {
		t.Fatalf("expected error for invalid prefix")
	}
	if _, err := NewTrustedProxies([]string{"load-balancer"}); err == nil {
		t.Fatalf("expected error for hostname entry")
	}
}
