package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"freightquote/internal/cache"
	"freightquote/internal/config"
	"freightquote/internal/db"
	"freightquote/internal/pincode"
	"freightquote/internal/quote"
	"freightquote/internal/rate"
	"freightquote/internal/ratecard"
	"freightquote/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pincode master: Postgres when configured, CSV otherwise
	var src pincode.Source = pincode.CSVSource{Path: cfg.PincodeCSV}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.NewPool(dbCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("failed to connect db")
		}
		defer pool.Close()
		src = pincode.PostgresSource{Pool: pool}
	}
	loader := pincode.NewLoader(src)
	loadCtx, cancel := context.WithTimeout(ctx, time.Minute)
	master, err := loader.Master(loadCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("failed to load pincode master")
	}
	logger.WithField("pincodes", master.Len()).Info("pincode master loaded")

	cards, err := loadCards(cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to load rate cards")
	}
	var enabled []ratecard.Card
	for _, c := range cards {
		if cfg.CarrierEnabled(c.Carrier) {
			enabled = append(enabled, c)
		}
	}
	strategies, err := rate.NewAll(enabled)
	if err != nil {
		logger.WithError(err).Fatal("invalid rate card")
	}
	engine, err := quote.NewEngine(master, strategies, quote.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("failed to build quote engine")
	}

	opts := server.Options{Engine: engine, Pincodes: master, Ready: loader.Loaded, Logger: logger}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.QuoteCacheTTL)
		if err != nil {
			logger.WithError(err).Warn("quote cache unavailable, continuing without it")
		} else {
			defer rc.Close()
			opts.Cache = rc
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(opts),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Carrier())
	}
	logger.WithFields(logrus.Fields{"port": cfg.Port, "carriers": names}).Info("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("server error")
		os.Exit(1)
	}
}

func loadCards(cfg config.Config) ([]ratecard.Card, error) {
	if cfg.RateCardDir == "" {
		return ratecard.Defaults()
	}
	return ratecard.LoadDir(cfg.RateCardDir)
}
