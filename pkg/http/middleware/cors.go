package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig lists the origins, methods and headers the API accepts
// cross-origin.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
}

func (cfg CORSConfig) originAllowed(origin string) bool {
	if len(cfg.AllowOrigins) == 0 {
		return true
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// allowOriginValue picks the Access-Control-Allow-Origin value to send,
// empty when the header should be omitted.
func (cfg CORSConfig) allowOriginValue(origin string) string {
	if origin != "" {
		return origin
	}
	if len(cfg.AllowOrigins) > 0 && cfg.AllowOrigins[0] == "*" {
		return "*"
	}
	return ""
}

// CORS sets the cross-origin headers and short-circuits preflight requests.
// Requests from origins outside the allow list pass through without CORS
// headers, so the browser blocks them.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			if origin != "" && !cfg.originAllowed(origin) {
				return next(c)
			}

			h := c.Response().Header()
			if v := cfg.allowOriginValue(origin); v != "" {
				h.Set("Access-Control-Allow-Origin", v)
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
