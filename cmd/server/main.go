package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"stepci/internal/api"
	"stepci/internal/app"
	"stepci/internal/config"
	"stepci/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./stepci.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci-server:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci-server:", err)
		os.Exit(1)
	}

	factory, err := app.NewFactory(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("cannot initialize runner")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(factory, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"addr":        cfg.Addr,
		"environment": cfg.Environment,
		"workdir":     cfg.WorkDir,
	}).Info("stepci server running")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
}
