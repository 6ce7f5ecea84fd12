package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/fredWelfare/pkg/config"
	"github.com/mcclellann/fredWelfare/pkg/metrics"
	"github.com/mcclellann/fredWelfare/pkg/notify"
	"github.com/mcclellann/fredWelfare/pkg/otp"
	"github.com/mcclellann/fredWelfare/pkg/store"
	"github.com/sirupsen/logrus"
)

// sweepTokens drops expired verification tokens every interval until ctx ends.
func sweepTokens(ctx context.Context, tokens *otp.Store, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := tokens.Sweep(); removed > 0 {
				logger.WithField("removed", removed).Debug("expired verification tokens swept")
			}
			metrics.OTPTokens.Set(float64(tokens.Len()))
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := cfg.NewLogger()

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize SQLite store")
	}
	defer sqliteStore.Close()

	tokens := otp.NewStore(cfg.OTPTTL)
	server := NewServer(sqliteStore, tokens, notify.LogNotifier{Logger: logger}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepTokens(ctx, tokens, cfg.OTPSweepInterval, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{"addr": cfg.Addr, "environment": cfg.Environment}).Info("server starting")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("shutdown failed")
		}
		logger.Info("server stopped")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
		}
	}
}
