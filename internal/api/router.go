package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/milsabores/identity-service/docs"
	"github.com/milsabores/identity-service/internal/api/handler"
	"github.com/milsabores/identity-service/internal/api/middleware"
	"github.com/milsabores/identity-service/internal/core/ports"
)

const maxBodySize = "8M"

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Identity ports.IdentityService
	Tokens   ports.TokenService
	Checks   map[string]handler.Check
	Log      zerolog.Logger

	// EnforceTokenOwnership puts the name and photo routes behind a bearer
	// token issued for the user being modified.
	EnforceTokenOwnership bool

	// Registry receives the HTTP metrics. Nil means the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomiddleware.BodyLimit(maxBodySize))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "identity",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	identityHandler := handler.NewIdentityHandler(deps.Identity)

	// ownership is a no-op unless token ownership is enforced.
	ownership := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if deps.EnforceTokenOwnership {
		ownership = middleware.Owner(deps.Tokens, "id")
	}

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", identityHandler.Register)
	auth.POST("/login", identityHandler.Login)
	auth.POST("/recover-password", identityHandler.RecoverPassword)
	auth.POST("/reset-password", identityHandler.ResetPassword)
	auth.GET("/me", identityHandler.Me, middleware.Auth(deps.Tokens))

	users := auth.Group("/users")
	users.GET("/external/:externalId", identityHandler.FindByExternalIdentity)
	users.PUT("/:id/name", identityHandler.UpdateName, ownership)
	users.PUT("/:id/photo", identityHandler.UpdatePhoto, ownership)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
