package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.Use(h.SessionMiddleware)
	r.Use(h.MetricsContext)
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	r.HandleFunc("/auth/github/login", h.GitHubLogin).Methods("GET").Name("auth.github.login")
	r.HandleFunc("/auth/github/callback", h.GitHubCallback).Methods("GET").Name("auth.github.callback")
	r.Handle("/auth/logout", h.RequireSameOrigin(http.HandlerFunc(h.Logout))).Methods("POST").Name("auth.logout")
	r.Handle("/auth/token", h.RequireAuth(h.RequireSameOrigin(http.HandlerFunc(h.IssueToken)))).Methods("POST").Name("auth.token")
	r.Handle("/auth/me", h.RequireAuth(http.HandlerFunc(h.Me))).Methods("GET").Name("auth.me")

	// Authenticated JSON API
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(h.RequireAuth)
	apiRouter.Use(h.RequireSameOrigin)
	apiRouter.HandleFunc("/checkout/online", h.CheckoutOnline).Methods("POST").Name("api.checkout.online")
	apiRouter.HandleFunc("/checkout/offline", h.CheckoutOffline).Methods("POST").Name("api.checkout.offline")
	apiRouter.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("api.orders.get")
	apiRouter.HandleFunc("/orders/{id}", h.ResubmitPaymentProof).Methods("PUT").Name("api.orders.resubmit")

	// Admin order management
	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.RequireAdmin)
	adminRouter.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("api.admin.orders.list")
	adminRouter.HandleFunc("/orders", h.AdminUpdateOrder).Methods("PATCH").Name("api.admin.orders.update")
	adminRouter.HandleFunc("/orders", h.AdminDeleteOrder).Methods("DELETE").Name("api.admin.orders.delete")

	return r
}
