package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident-console/internal/factory"
	"incident-console/internal/handler"
	"incident-console/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	// Setup HTTP router with handlers using Chi
	router := setupRouter(f)

	// Create HTTP server with configured timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The incident change feed runs alongside the HTTP server for the
	// lifetime of the process.
	listenerCtx, stopListener := context.WithCancel(context.Background())
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := f.IncidentListener().Run(listenerCtx); err != nil {
			util.Error("Incident listener exited with error", util.ErrorField(err))
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server, stopListener, listenerDone)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	serviceFactory := f.ServiceFactory()
	adminHandler := handler.NewAdminHandler(
		serviceFactory.ProvisioningService(),
		f.AuditSearch(),
		util.Get(),
	)
	return handler.NewRouter(adminHandler, f.IdentityClient(), util.Get())
}

func waitForShutdown(f *factory.Factory, server *http.Server, stopListener context.CancelFunc, listenerDone chan struct{}) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}

	stopListener()
	select {
	case <-listenerDone:
		util.Info("Incident listener stopped")
	case <-ctx.Done():
		util.Warn("Incident listener did not stop before timeout")
	}

	f.Close()
}
