package callable

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	type payload struct {
		RecordID string `json:"recordId"`
	}
	tests := []struct {
		name     string
		body     string
		wantID   string
		wantCode Code
	}{
		{name: "data member", body: `{"data":{"recordId":"rec1"}}`, wantID: "rec1"},
		{name: "null data", body: `{"data":null}`},
		{name: "no data", body: `{}`},
		{name: "broken json", body: `{"data":`, wantCode: CodeInvalidArgument},
		{name: "wrong shape", body: `{"data":{"recordId":5}}`, wantCode: CodeInvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/deleteDc3Record", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			var p payload
			err := DecodeRequest(req, &p)
			switch {
			case tc.wantCode != "":
				var ce *Error
				if !errors.As(err, &ce) || ce.Code != tc.wantCode {
					t.Fatalf("expected %s, got %v", tc.wantCode, err)
				}
			default:
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if p.RecordID != tc.wantID {
					t.Fatalf("recordId = %q", p.RecordID)
				}
			}
		})
	}
}

func TestDecodeRequestAcceptsAnyJSONValue(t *testing.T) {
	tests := []struct {
		body string
		want any
	}{
		{body: `{"data":"scan me"}`, want: "scan me"},
		{body: `{"data":42}`, want: float64(42)},
		{body: `{"data":true}`, want: true},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/extractDc3Data", strings.NewReader(tc.body))
		var got any
		if err := DecodeRequest(req, &got); err != nil {
			t.Fatalf("decode %s: %v", tc.body, err)
		}
		if got != tc.want {
			t.Fatalf("decode %s = %#v, want %#v", tc.body, got, tc.want)
		}
	}
}

func TestWriteErrorMapsStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   Code
	}{
		{Unauthenticated(), http.StatusUnauthorized, CodeUnauthenticated},
		{InvalidArgument("x"), http.StatusBadRequest, CodeInvalidArgument},
		{NotFound("x"), http.StatusNotFound, CodeNotFound},
		{Errorf(CodeResourceExhausted, "slow down"), http.StatusTooManyRequests, CodeResourceExhausted},
		{Internal("x", errors.New("remote down")), http.StatusInternalServerError, CodeInternal},
		{errors.New("leaky secret"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var body struct {
			Error struct {
				Status  Code   `json:"status"`
				Message string `json:"message"`
				Details any    `json:"details"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Status != tc.code {
			t.Fatalf("status name = %s, want %s", body.Error.Status, tc.code)
		}
		if strings.Contains(rec.Body.String(), "leaky secret") {
			t.Fatalf("unclassified error message leaked: %s", rec.Body.String())
		}
	}
}

func TestInternalCarriesCauseAsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, Internal("No se pudo guardar el registro.", errors.New("INVALID_PERMISSIONS")))
	if !strings.Contains(rec.Body.String(), `"details":"INVALID_PERMISSIONS"`) {
		t.Fatalf("expected cause in details: %s", rec.Body.String())
	}
}

func TestWriteResult(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteResult(rec, map[string]bool{"success": true})
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"result":{"success":true}}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
