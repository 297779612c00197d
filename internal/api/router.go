package api

import (
	"fmt"
	"net/http"

	"github.com/ashureev/persona-predict/internal/config"
	"github.com/ashureev/persona-predict/internal/middleware"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Sessions      *session.Store
	Codec         *session.Codec
	SecureCookies bool
	RateLimits    config.RateLimits
	BasicAuth     config.BasicAuthConfig
}

// NewRouter builds the HTTP routes. The returned func stops the rate
// limiters' background loops.
func NewRouter(h *Handler, opts RouterOptions) (http.Handler, func(), error) {
	appLimiter, err := middleware.NewRateLimiter(opts.RateLimits.App, h.RateLimited)
	if err != nil {
		return nil, nil, fmt.Errorf("app rate limit: %w", err)
	}
	predictLimiter, err := middleware.NewRateLimiter(opts.RateLimits.Predict, h.RateLimited)
	if err != nil {
		appLimiter.Close()
		return nil, nil, fmt.Errorf("predict rate limit: %w", err)
	}
	closeLimiters := func() {
		appLimiter.Close()
		predictLimiter.Close()
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Probes and assets carry no session.
	r.Get("/up", h.Up)
	r.Handle("/static/*", web.StaticHandler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders())
		r.Use(session.Middleware(opts.Sessions, opts.Codec))
		r.Use(middleware.BasicAuthFolders("restricted", opts.BasicAuth.Username, opts.BasicAuth.Password, opts.BasicAuth.Folders))

		// Only the landing page stores a session; throttled visits never reach it.
		r.With(appLimiter.Handler, session.Establish(opts.Sessions, opts.Codec, opts.SecureCookies)).Get("/", h.Index)
		r.With(predictLimiter.Handler).Post("/predict", h.Predict)
		r.Get("/download", h.Download)
		r.Get("/peekaboo", h.Peekaboo)
	})

	return r, closeLimiters, nil
}
