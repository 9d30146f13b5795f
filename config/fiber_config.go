package config

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// LoadFiberConfig retorna a configuração para as APIs Fiber
func LoadFiberConfig(serverHeader string) fiber.Config {
	return fiber.Config{
		Prefork:               false,
		ServerHeader:          serverHeader,
		StrictRouting:         false,
		CaseSensitive:         true,
		UnescapePath:          true,
		BodyLimit:             1 * 1024 * 1024, // 1MB
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ReadBufferSize:        4096,
		WriteBufferSize:       4096,
		ProxyHeader:           "X-Forwarded-For",
		DisableStartupMessage: true,
	}
}

// CORSMiddleware retorna o middleware de CORS das rotas de consulta
func (s SecurityConfig) CORSMiddleware() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: strings.Join(s.CORS.AllowOrigins, ","),
		AllowMethods: strings.Join(s.CORS.AllowMethods, ","),
		AllowHeaders: strings.Join(s.CORS.AllowHeaders, ","),
		MaxAge:       s.CORS.MaxAge,
	})
}

// RateLimitMiddleware limita requisições por IP; nil quando desativado
func (s SecurityConfig) RateLimitMiddleware() fiber.Handler {
	if !s.RateLimit.Enabled || s.RateLimit.RequestsMax <= 0 {
		return nil
	}
	return limiter.New(limiter.Config{
		Max:        s.RateLimit.RequestsMax,
		Expiration: time.Duration(s.RateLimit.WindowSecs) * time.Second,
	})
}
