package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carhistory/internal/factory"
	"carhistory/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Init("development", "info", "console")
		util.Fatal("Failed to initialize application", util.ErrorField(err))
	}
	defer f.Close()
	defer util.Sync()

	cfg := f.Config()
	server := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           f.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		util.Info("HTTP server listening", util.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("HTTP server failed", util.ErrorField(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	util.Info("Shutting down", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		util.Error("Graceful shutdown failed", util.ErrorField(err))
	}
}
