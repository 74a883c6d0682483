package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	JWTSecret  string
	SwaggerDir string
	Checks     map[string]HealthCheck
	Logger     *slog.Logger
}

func NewRouter(cfg RouterConfig, routes *RouteHandler, payments *PaymentHandler, bookings *BookingHandler) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(RequestID(), Logger(logger), gin.Recovery(), cors.New(corsConfig()))

	r.OPTIONS("/*path", func(c *gin.Context) { c.AbortWithStatus(http.StatusNoContent) })

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	api := r.Group("/api")
	api.GET("/health", health(cfg.Checks, logger))

	routes.Register(api.Group("/routes"))

	paymentsGroup := api.Group("/payments")
	payments.RegisterCallback(paymentsGroup)
	payments.Register(paymentsGroup.Group("", Auth(cfg.JWTSecret)))

	bookings.Register(api.Group("/users/:userId", Auth(cfg.JWTSecret), RequireOwner()))

	if cfg.SwaggerDir != "" {
		r.Static("/swagger", cfg.SwaggerDir)
		r.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/payments.swagger.json"))))
	}
	return r
}

// corsConfig answers preflights from any origin with the headers browser clients send.
func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"authorization", "x-client-info", "apikey", "content-type"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}
}

// health reports each dependency as ok or unavailable. Failure details go to the log only.
func health(checks map[string]HealthCheck, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				logger.WarnContext(c.Request.Context(), "health check failed",
					slog.String("check", name),
					slog.String("request_id", GetRequestID(c)),
					slog.Any("error", err))
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
