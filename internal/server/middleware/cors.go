package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
)

type corsLogger struct {
	logger *slog.Logger
}

func (c *corsLogger) Printf(format string, args ...interface{}) {
	c.logger.Debug(fmt.Sprintf("CORS: %s", fmt.Sprintf(format, args...)))
}

// WithCORS allows credentialed requests from the trusted origins. With no origins configured
// cross-origin requests are not allowed.
func WithCORS(logger *slog.Logger, origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		// cors.Options treats an empty list as "*".
		return func(h http.Handler) http.Handler { return h }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
		Logger:           &corsLogger{logger: logger},
	})
	return c.Handler
}
