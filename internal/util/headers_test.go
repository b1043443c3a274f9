package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(noContent())

	req := httptest.NewRequest(http.MethodPost, "/getDc3RecordsByUser", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options mismatch: %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control mismatch: %q", got)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("did not expect HSTS for non-https request, got %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got == "" {
		t.Fatalf("expected HSTS header on forwarded https request")
	}
}

func TestWithCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		method  string
		want    string
		status  int
	}{
		{name: "open preflight", method: http.MethodOptions, origin: "https://a.example", want: "*", status: http.StatusNoContent},
		{name: "allowed origin echoed", allowed: []string{"https://a.example"}, method: http.MethodPost, origin: "https://a.example", want: "https://a.example", status: http.StatusNoContent},
		{name: "foreign origin gets no header", allowed: []string{"https://a.example"}, method: http.MethodPost, origin: "https://b.example", want: "", status: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := WithCORS(tc.allowed, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(tc.method, "/uploadDc3ToAirtable", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.want {
				t.Fatalf("allow origin = %q, want %q", got, tc.want)
			}
			if tc.method == http.MethodOptions && called {
				t.Fatalf("preflight must not reach the handler")
			}
		})
	}
}
