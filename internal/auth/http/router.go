package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cataloghq/authcore/internal/auth/metrics"
	"github.com/cataloghq/authcore/internal/auth/service"
	"github.com/cataloghq/authcore/internal/auth/store"
	"github.com/cataloghq/authcore/pkg/httpx"
	"github.com/cataloghq/authcore/pkg/jwtx"
	"github.com/cataloghq/authcore/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier  jwtx.Verifier
	startTime time.Time
	logger    *slog.Logger

	store            store.Store
	LoginService     *service.LoginService
	TokenService     *service.TokenService
	TwoFactorService *service.TwoFactorService
	AccountService   *service.AccountService
}

func NewRouter(verifier jwtx.Verifier, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		verifier:  verifier,
		startTime: time.Now(),
		store:     st,
		logger:    logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		metrics.Instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerAccount()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain around the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &LoginHandler{
		LoginService: r.LoginService,
		TokenService: r.TokenService,
	}

	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /auth/verify-2fa",
		httpx.Chain(http.HandlerFunc(h.HandleVerifySecondFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))

	th := &TokenHandler{TokenService: r.TokenService}

	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(th.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(th.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{
		TwoFactorService: r.TwoFactorService,
		LoginService:     r.LoginService,
	}

	authn := httpx.AuthnMiddleware(r.verifier)

	r.Mux.Handle("POST /auth/2fa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			authn,
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /auth/2fa/enable",
		httpx.Chain(http.HandlerFunc(h.HandleEnable),
			authn,
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /auth/2fa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			authn,
			httpx.RateLimitByAccount(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /auth/2fa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
			authn,
			httpx.RateLimitByAccount(httpx.StrictLimit),
		))

	// Standalone verification: no bearer token, answers yes/no only.
	r.Mux.Handle("POST /auth/2fa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
}

func (r *Router) registerAccount() {
	h := &AccountHandler{AccountService: r.AccountService}

	r.Mux.Handle("POST /auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccount(httpx.StrictLimit),
		))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{TokenService: r.TokenService, Store: r.store}

	r.Mux.Handle("POST /admin/accounts/{id}/revoke-sessions",
		httpx.Chain(http.HandlerFunc(h.HandleRevokeSessions),
			httpx.AuthnMiddleware(r.verifier),
			RequirePermission("accounts", "update"),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
}

func (r *Router) registerSystem() {
	r.Mux.HandleFunc("GET /livez", r.handleLivez)
	r.Mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.Mux.Handle("GET /metrics", metrics.Handler())
}
