package server

import (
	"context"
	"net/http"

	"labstock/internal/handlers"
	applog "labstock/internal/log"
)

func newRouter() http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")

	mux.HandleFunc("/healthz", handlers.Health)

	mux.HandleFunc("/api/auth/login", handlers.AuthLogin)
	mux.HandleFunc("/api/auth/logout", handlers.AuthLogout)
	mux.HandleFunc("/api/auth/register", handlers.AuthRegister)
	mux.HandleFunc("/api/auth/check", handlers.AuthCheck)
	mux.Handle("/api/auth/profile", handlers.RequireSession(http.HandlerFunc(handlers.AuthProfile)))
	mux.Handle("/api/auth/change-password", handlers.RequireSession(http.HandlerFunc(handlers.AuthChangePassword)))
	mux.Handle("/api/auth/users", handlers.RequireSession(http.HandlerFunc(handlers.AuthUsers)))
	mux.Handle("/api/auth/users/", handlers.RequireSession(http.HandlerFunc(handlers.AuthUsers)))

	mux.Handle("/api/storage", handlers.RequireSession(http.HandlerFunc(handlers.StorageCollection)))
	mux.Handle("/api/storage/", handlers.RequireSession(http.HandlerFunc(handlers.StorageResource)))

	mux.Handle("/api/records", handlers.RequireSession(http.HandlerFunc(handlers.RecordsCollection)))
	mux.Handle("/api/records/", handlers.RequireSession(http.HandlerFunc(handlers.RecordResource)))

	mux.Handle("/api/inventory/", handlers.RequireSession(http.HandlerFunc(handlers.InventoryResource)))
	mux.Handle("/api/analytics/", handlers.RequireSession(http.HandlerFunc(handlers.AnalyticsResource)))

	applog.Debug(context.Background(), "http routes registered")
	return handlers.WithRequestID(mux)
}
