package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Elias24978/safety-app/internal/idtoken"
	"github.com/Elias24978/safety-app/internal/metrics"
	"github.com/Elias24978/safety-app/internal/ratelimit"
	"github.com/Elias24978/safety-app/internal/util"
	"github.com/Elias24978/safety-app/pkg/callable"
	"github.com/Elias24978/safety-app/pkg/domain"
	"github.com/Elias24978/safety-app/services/callable/internal/app"
)

// Function names are part of the deployed client contract.
const (
	FuncUpload        = "uploadDc3ToAirtable"
	FuncExtract       = "extractDc3Data"
	FuncList          = "getDc3RecordsByUser"
	FuncDelete        = "deleteDc3Record"
	FuncRegisterToken = "registerFcmToken"
)

// Verifier resolves a bearer ID token to the calling user.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Caller, error)
}

// Limiter throttles calls per key.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Verifier       Verifier
	Limiter        Limiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
}

// Server exposes the callable functions over HTTP.
type Server struct {
	app            *app.App
	verifier       Verifier
	limiter        Limiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.Verifier,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("callable", s.trustedProxies, metrics.ObserveRequest,
			util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())

	s.mux.Handle("/"+FuncUpload, s.handle(FuncUpload, s.upload))
	s.mux.Handle("/"+FuncExtract, s.handle(FuncExtract, s.extract))
	s.mux.Handle("/"+FuncList, s.handle(FuncList, s.list))
	s.mux.Handle("/"+FuncDelete, s.handle(FuncDelete, s.delete))
	s.mux.Handle("/"+FuncRegisterToken, s.handle(FuncRegisterToken, s.registerToken))

	metrics.RegisterPaths("/healthz", "/metrics",
		"/"+FuncUpload, "/"+FuncExtract, "/"+FuncList, "/"+FuncDelete, "/"+FuncRegisterToken)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// function is one callable. caller is nil for anonymous requests.
type function func(ctx context.Context, r *http.Request, caller *domain.Caller) (any, error)

func (s *Server) handle(name string, fn function) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			callable.WriteMethodNotAllowed(w)
			return
		}
		caller, err := s.resolveCaller(r)
		if err != nil {
			s.audit(r, name, "invalid_token", "err", err)
			callable.WriteError(w, callable.Unauthenticated())
			return
		}
		ctx := r.Context()
		if caller != nil {
			ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("uid", caller.UID))
		}
		if !s.allow(ctx, r, name, caller) {
			s.audit(r, name, "rate_limited")
			callable.WriteError(w, callable.Errorf(callable.CodeResourceExhausted, "Demasiadas solicitudes. Intenta de nuevo más tarde."))
			return
		}
		result, err := fn(ctx, r.WithContext(ctx), caller)
		if err != nil {
			var ce *callable.Error
			if !errors.As(err, &ce) {
				util.LoggerFromContext(ctx).Error("callable failed", "function", name, "err", err)
			} else if ce.Code == callable.CodeUnauthenticated {
				s.audit(r, name, "unauthenticated")
			}
			callable.WriteError(w, err)
			return
		}
		callable.WriteResult(w, result)
	})
}

// resolveCaller returns nil without an Authorization header. A header that
// is present but does not verify is an error.
func (s *Server) resolveCaller(r *http.Request) (*domain.Caller, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, nil
	}
	token, ok := idtoken.BearerToken(header)
	if !ok {
		return nil, errors.New("malformed authorization header")
	}
	caller, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return &caller, nil
}

func (s *Server) allow(ctx context.Context, r *http.Request, name string, caller *domain.Caller) bool {
	if s.limiter == nil {
		return true
	}
	subject := "ip:" + util.ClientIP(r, s.trustedProxies)
	if caller != nil {
		subject = "uid:" + caller.UID
	}
	return s.limiter.Allow(ctx, ratelimit.Key(name, subject))
}

func (s *Server) audit(r *http.Request, function, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", "callable_auth",
		"function", function,
		"outcome", outcome,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	util.LoggerFromContext(r.Context()).Log(r.Context(), slog.LevelWarn, "security_event", logAttrs...)
}

func (s *Server) upload(ctx context.Context, r *http.Request, caller *domain.Caller) (any, error) {
	var req domain.NewDocument
	if err := callable.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	return s.app.UploadDocument(ctx, caller, req)
}

func (s *Server) extract(ctx context.Context, r *http.Request, _ *domain.Caller) (any, error) {
	var req any
	if err := callable.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	return s.app.ExtractData(ctx, req), nil
}

type listRequest struct {
	Type string `json:"type"`
}

func (s *Server) list(ctx context.Context, r *http.Request, caller *domain.Caller) (any, error) {
	var req listRequest
	if err := callable.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	return s.app.ListDocuments(ctx, caller, req.Type)
}

type deleteRequest struct {
	RecordID string `json:"recordId"`
}

func (s *Server) delete(ctx context.Context, r *http.Request, caller *domain.Caller) (any, error) {
	var req deleteRequest
	if err := callable.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	return s.app.DeleteDocument(ctx, caller, req.RecordID)
}

type registerTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) registerToken(ctx context.Context, r *http.Request, caller *domain.Caller) (any, error) {
	var req registerTokenRequest
	if err := callable.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	return s.app.RegisterPushToken(ctx, caller, req.Token)
}
