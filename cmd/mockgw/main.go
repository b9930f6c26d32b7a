// Package main runs an in-memory stand-in for the e-commerce API gateway.
//
// It serves the product, user, order and shipping routes the load generator
// drives and can inject 500, 502 and 503 responses or extra latency, which is
// useful for exercising the classifier and thresholds without the real stack.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/ecommerce/tools/loadgen/internal/logger"
	"github.com/example/ecommerce/tools/loadgen/internal/mockgw"
)

type options struct {
	addr            string
	products        int
	errorRate       float64
	unavailableRate float64
	latency         time.Duration
	down            string
	seed            uint64
	logLevel        string
	logFormat       string
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("mockgw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.addr, "addr", ":8080", "Listen address")
	fs.IntVar(&opts.products, "products", 20, "Number of seeded products")
	fs.Float64Var(&opts.errorRate, "error-rate", 0, "Probability of answering 500 (0-1)")
	fs.Float64Var(&opts.unavailableRate, "unavailable-rate", 0, "Probability of answering 503 (0-1)")
	fs.DurationVar(&opts.latency, "latency", 0, "Latency added to every response")
	fs.StringVar(&opts.down, "down", "", "Comma separated services answering 502 (e.g., order-service,shipping-service)")
	fs.Uint64Var(&opts.seed, "seed", 0, "Fault injection seed, 0 for random")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", "console", "Log format: console or json")
	return fs
}

func (o *options) config() mockgw.Config {
	cfg := mockgw.Config{
		Addr:     o.addr,
		Products: o.products,
		Faults: mockgw.Faults{
			ErrorRate:       o.errorRate,
			UnavailableRate: o.unavailableRate,
			Latency:         o.latency,
		},
		Seed: o.seed,
	}
	for svc := range strings.SplitSeq(o.down, ",") {
		if svc = strings.TrimSpace(svc); svc != "" {
			cfg.Down = append(cfg.Down, svc)
		}
	}
	return cfg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = opts.logLevel
	logCfg.Format = opts.logFormat
	if err := logCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	srv, err := mockgw.New(opts.config(), log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log.Info("starting mock gateway",
		zap.String("addr", opts.addr),
		zap.Int("products", opts.products),
		zap.Float64("error_rate", opts.errorRate),
		zap.Float64("unavailable_rate", opts.unavailableRate),
		zap.Duration("latency", opts.latency),
		zap.String("down", opts.down),
	)
	if err := srv.Run(ctx); err != nil {
		log.Error("mock gateway failed", zap.Error(err))
		return 1
	}
	log.Info("shutdown complete")
	return 0
}
