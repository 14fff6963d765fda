package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samidalouche/imgserver/internal/bootstrap"
	"github.com/samidalouche/imgserver/internal/config"
	"github.com/samidalouche/imgserver/internal/logger"
	"github.com/samidalouche/imgserver/internal/observability"
	"github.com/samidalouche/imgserver/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	logger.Init("imgserver", cfg.Env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "imgserver")
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Printf("Error shutting down OpenTelemetry: %v", err)
			}
		}()
		log.Println("✓ OpenTelemetry initialized")
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	b, err := bootstrap.Bootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to bootstrap cache core:", err)
	}
	defer b.Close()

	log.Println("✓ Connected to PostgreSQL")
	log.Printf("✓ Cache data directory: %s", cfg.DataDirectory)

	r := router.Setup(b)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.Port)
		log.Printf("🌍 Environment: %s", cfg.Env)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("📤 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("✅ Server exited")
}
