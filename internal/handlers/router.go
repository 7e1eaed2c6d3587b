package handlers

import (
	"net/http"

	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/middleware"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type RouterDeps struct {
	Config         *config.Config
	Auth           *AuthHandlers
	Products       *ProductHandlers
	Uploads        *UploadHandlers
	AuthMiddleware *middleware.AuthMiddleware
	// RateLimiter is optional; nil disables API rate limiting.
	RateLimiter *middleware.RateLimiter
	Logger      *logrus.Logger
}

// NewRouter wires every route. Paths are matched uncleaned so traversal
// attempts reach the proxy handler and are rejected there.
func NewRouter(d RouterDeps) http.Handler {
	router := mux.NewRouter().SkipClean(true)
	router.NotFoundHandler = http.HandlerFunc(NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(NotFound)

	router.HandleFunc("/health", Health).Methods("GET")

	mediaHeaders := middleware.MediaHeaders(d.Config.Media.CacheMaxAge)
	router.PathPrefix("/uploads/").Handler(mediaHeaders(StaticFiles("/uploads/", d.Config.Upload.Root)))
	router.PathPrefix("/public/").Handler(mediaHeaders(StaticFiles("/public/", d.Config.Upload.PublicDir)))

	api := router.PathPrefix("/api").Subrouter()
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Middleware)
	}

	requireAuth := d.AuthMiddleware.RequireAuth
	requireRole := d.AuthMiddleware.RequireRole
	protect := func(h http.HandlerFunc, roles ...models.Role) http.Handler {
		var handler http.Handler = h
		if len(roles) > 0 {
			handler = requireRole(roles...)(handler)
		}
		return requireAuth(handler)
	}

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", d.Auth.Register).Methods("POST")
	auth.HandleFunc("/login", d.Auth.Login).Methods("POST")
	auth.HandleFunc("/verify-email", d.Auth.VerifyEmail).Methods("POST")
	auth.HandleFunc("/resend-verification", d.Auth.ResendVerification).Methods("POST")
	auth.HandleFunc("/initiate-otp", d.Auth.InitiateOTP).Methods("POST")
	auth.HandleFunc("/verify-otp", d.Auth.VerifyOTP).Methods("POST")
	auth.HandleFunc("/refresh", d.Auth.RefreshToken).Methods("POST")
	auth.Handle("/logout", protect(d.Auth.Logout)).Methods("POST")
	auth.Handle("/me", protect(d.Auth.Me)).Methods("GET")

	upload := api.PathPrefix("/upload").Subrouter()
	upload.Handle("/product-images",
		protect(d.Uploads.UploadProductImages, models.RoleFarmer, models.RoleAdmin, models.RoleStaff)).Methods("POST")
	upload.HandleFunc("/proxy/{type}/{filename:.+}", d.Uploads.ServeProxy).Methods("GET")

	products := api.PathPrefix("/products").Subrouter()
	products.HandleFunc("", d.Products.List).Methods("GET")
	products.Handle("", protect(d.Products.Create, models.RoleFarmer, models.RoleAdmin)).Methods("POST")
	products.HandleFunc("/{id}", d.Products.Get).Methods("GET")
	products.Handle("/{id}", protect(d.Products.Update)).Methods("PUT")
	products.Handle("/{id}", protect(d.Products.Delete)).Methods("DELETE")

	var handler http.Handler = router
	handler = middleware.NewCORS(&d.Config.CORS)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recovery(d.Logger)(handler)
	handler = middleware.LoggingMiddleware(d.Logger)(handler)
	return handler
}
