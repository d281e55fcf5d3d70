package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.synaq.judge/internal/broadcast"
	"dev.synaq.judge/internal/config"
	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/dispatch"
	"dev.synaq.judge/internal/httpapi"
	"dev.synaq.judge/internal/lifecycle"
	"dev.synaq.judge/internal/sandbox"
	"dev.synaq.judge/internal/store"
)

func main() {
	configPath := flag.String("config", ".env", "path to the configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load configuration")
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("open store")
	}
	defer st.Close()

	runner, err := sandbox.NewDockerRunner(logger)
	if err != nil {
		logger.WithError(err).Fatal("connect to docker")
	}
	defer runner.Close()

	mgr := contest.New(st, logger)
	hub := broadcast.NewHub(mgr, logger)
	disp := dispatch.New(cfg.MaxChecks, runner, mgr, st, hub, logger)
	ctrl := lifecycle.New(mgr, st, hub, logger)
	api := httpapi.New(cfg, mgr, disp, hub, st, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Restore(time.Now()); err != nil {
		logger.WithError(err).Fatal("restore contest state")
	}
	disp.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.Addr()).Info("judge listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ctrl.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("judge stopped with error")
	}

	disp.Stop()
	hub.CloseAll()
	mgr.PersistAll()
	logger.Info("judge stopped")
}
