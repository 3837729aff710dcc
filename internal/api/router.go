package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/swiftportal/payments-portal/docs"
	"github.com/swiftportal/payments-portal/internal/api/handler"
	"github.com/swiftportal/payments-portal/internal/api/middleware"
	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
	"github.com/swiftportal/payments-portal/internal/pkg/validation"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth      ports.AuthService
	Tokens    ports.TokenManager
	Gate      ports.AuthorizationGate
	Validator *validation.Validator
	Checkers  []handler.Checker
	Log       zerolog.Logger

	// Registry receives the HTTP metrics. Defaults to the global registry.
	Registry *prometheus.Registry
	// Swagger mounts the API docs under /swagger.
	Swagger bool
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator(d.Validator)
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomiddleware.BodyLimit("64K"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "portal_http",
		Registerer: registerer,
	}))

	customerH := handler.NewCustomerHandler(d.Auth)
	employeeH := handler.NewEmployeeHandler(d.Auth)
	authH := handler.NewAuthHandler(d.Auth, d.Gate)
	authMW := middleware.Auth(d.Tokens)

	// --- Customer routes ---
	customer := e.Group("/api/customer")
	customer.POST("/register", customerH.Register)
	customer.POST("/login", customerH.Login)
	customerOnly := []echo.MiddlewareFunc{authMW, middleware.RequireKind(d.Gate, domain.KindCustomer)}
	customer.GET("/profile", customerH.Profile, customerOnly...)
	customer.POST("/logout", handler.Logout, customerOnly...)

	// --- Employee routes (no self-registration) ---
	employee := e.Group("/api/employee")
	employee.POST("/login", employeeH.Login)
	employeeOnly := []echo.MiddlewareFunc{authMW, middleware.RequireKind(d.Gate, domain.KindEmployee)}
	employee.GET("/profile", employeeH.Profile, employeeOnly...)
	employee.POST("/logout", handler.Logout, employeeOnly...)

	// --- Token services for the payment workflow ---
	e.GET("/api/auth/verify", authH.Verify)
	e.POST("/api/auth/authorize", authH.Authorize, authMW)

	// --- Health probes and metrics (no auth required) ---
	healthH := handler.NewHealthHandler(d.Checkers...)
	e.GET("/health", healthH.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", healthH.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	if d.Swagger {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	return e
}
