package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"repoinsight/internal/bootstrap"
	"repoinsight/internal/config"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/server"
	"repoinsight/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	// 2. Tracing (off unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(context.Background(), cfg.Tracing, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg, sysLogger)
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}

	// 4. Start Background Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := container.Start(ctx); err != nil {
		log.Fatalf("Failed to start background services: %v", err)
	}

	// 5. Run Server until a signal arrives
	srv := server.New(cfg, container)
	go func() {
		if err := srv.Run(); err != nil {
			sysLogger.Error("Main", "Server stopped", map[string]interface{}{"error": err})
			stop()
		}
	}()

	<-ctx.Done()
	sysLogger.Info("Main", "Shutting down", nil)

	if err := srv.Shutdown(); err != nil {
		sysLogger.Warn("Main", "HTTP shutdown failed", map[string]interface{}{"error": err})
	}
	container.Close()
}
