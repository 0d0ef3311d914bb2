package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/caselane/matterproxy/internal/auth"
	"github.com/caselane/matterproxy/internal/backend"
	"github.com/caselane/matterproxy/internal/config"
	"github.com/caselane/matterproxy/internal/correlate"
	"github.com/caselane/matterproxy/internal/diffstore"
	"github.com/caselane/matterproxy/internal/enrich"
	"github.com/caselane/matterproxy/internal/export"
	"github.com/caselane/matterproxy/internal/middleware"
	"github.com/caselane/matterproxy/internal/proxy"
)

func main() {
	cfg, err := config.LoadProxyConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Clients for the two external collaborators.
	backendClient := backend.NewClient(cfg.UpstreamURL, nil)
	storeClient := diffstore.NewClient(cfg.DiffStoreURL, nil)

	correlator := correlate.NewCorrelator(backendClient, correlate.Config{
		Action:  cfg.CorrelateAction,
		Delays:  cfg.CorrelateDelays,
		MaxSkew: cfg.CorrelateMaxSkew,
	})
	enricher := enrich.NewEnricher(storeClient)

	proxyHandler := proxy.NewHandler(cfg.UpstreamURL, nil, backendClient, correlator, storeClient, enricher)
	exportHandler := export.NewHTTPHandler(export.NewService(backendClient, storeClient))

	mux := http.NewServeMux()
	mux.Handle("/matters/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/activity/export") {
			exportHandler.ServeHTTP(w, r)
			return
		}
		proxyHandler.ServeHTTP(w, r)
	}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "PUT", "PATCH", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := middleware.LoggingMiddleware(
		auth.UserScopeMiddleware(
			middleware.DiffLoaderMiddleware(storeClient)(mux),
		),
	)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      corsHandler.Handler(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting matter proxy on %s (upstream %s, diff store %s)", cfg.ListenAddr, cfg.UpstreamURL, cfg.DiffStoreURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
