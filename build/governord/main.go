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

	"github.com/caarlos0/env/v11"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/PKQandBaaad/fas-rs-next/internal/bypass"
	"github.com/PKQandBaaad/fas-rs-next/internal/cpufreq"
	"github.com/PKQandBaaad/fas-rs-next/internal/fswrite"
	"github.com/PKQandBaaad/fas-rs-next/internal/governor"
	"github.com/PKQandBaaad/fas-rs-next/internal/monitoring"
)

type config struct {
	SysfsRoot    string        `env:"FREQGOV_SYSFS_ROOT"`
	SamplePeriod time.Duration `env:"FREQGOV_SAMPLE_PERIOD" envDefault:"100ms"`
	TopBusyCores int           `env:"FREQGOV_TOP_BUSY_CORES" envDefault:"2"`
	MetricsAddr  string        `env:"FREQGOV_METRICS_ADDR" envDefault:":10001"`
}

func main() {
	var devMode bool
	flag.BoolVar(&devMode, "dev", false, "Use development logger settings.")
	flag.Parse()

	zapLog, err := newZapLogger(devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()
	log := zapr.NewLogger(zapLog)
	setupLog := log.WithName("setup")

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		setupLog.Error(err, "failed to parse environment configuration")
		os.Exit(1)
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = cpufreq.DefaultSysfsRoot
	}

	writer := fswrite.NewFileHandler(log)
	defer writer.Close()

	// The bypass table must exist before the first tick; Rescan binds
	// every discovered domain to its flag.
	table := bypass.NewTable()
	gov := governor.New(cfg.SysfsRoot, writer, table, &governor.Opts{
		SamplePeriod: cfg.SamplePeriod,
		TopBusyCores: cfg.TopBusyCores,
	}, log)

	if err := gov.Rescan(); err != nil {
		setupLog.Error(err, "failed to discover cpufreq domains", "root", cfg.SysfsRoot)
		os.Exit(1)
	}
	if len(gov.Domains()) == 0 {
		setupLog.Info("no usable cpufreq domains found", "root", cfg.SysfsRoot)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(monitoring.NewDomainCollector(gov.Domains, log.WithName("monitoring")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return gov.Start(ctx)
	})
	group.Go(func() error {
		setupLog.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		setupLog.Error(err, "governor exited with error")
		os.Exit(1)
	}
}

func newZapLogger(devMode bool) (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
