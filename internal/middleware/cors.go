package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/farmlink/farmlink/internal/config"
	"github.com/rs/cors"
)

// NewCORS answers preflights with 204 and sets CORS headers for the
// configured origins.
func NewCORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:       cfg.AllowedOrigins,
		AllowedMethods:       []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:       []string{"Content-Type", "Authorization", "Origin", "Accept"},
		ExposedHeaders:       []string{"Content-Disposition"},
		AllowCredentials:     true,
		OptionsSuccessStatus: http.StatusNoContent,
	})
	return c.Handler
}

// MediaHeaders marks responses as embeddable from any origin and cacheable
// for maxAge. It applies to uploaded and public files.
func MediaHeaders(maxAge time.Duration) func(http.Handler) http.Handler {
	cacheControl := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetMediaHeaders(w.Header())
			w.Header().Set("Cache-Control", cacheControl)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SetMediaHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Origin, Accept")
	h.Set("Cross-Origin-Resource-Policy", "cross-origin")
	h.Set("Cross-Origin-Opener-Policy", "unsafe-none")
	h.Set("Timing-Allow-Origin", "*")
	h.Del("Access-Control-Allow-Credentials")
}
