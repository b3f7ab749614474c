package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/shoplake/etl/internal/generate"
	"github.com/shoplake/etl/internal/snapshot"
	"github.com/shoplake/etl/pkg/config"
	"github.com/shoplake/etl/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "generate"})

	_ = godotenv.Load()

	days := flag.Int("days", 0, "override the configured number of days to generate")
	testMode := flag.Bool("test-mode", false, "generate a 3 day sample regardless of config")
	clear := flag.Bool("clear", false, "remove existing snapshots before generating")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "generate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	gen := cfg.Generator
	if *days > 0 {
		gen.Days = *days
	}
	if *testMode {
		gen.Days = 3
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":  cfg.App.Env,
		"seed": gen.Seed,
		"days": gen.Days,
	})
	logg.Info(runCtx, "generator ready")

	if *clear {
		if err := snapshot.Clear(gen.DataDir); err != nil {
			logg.Error(runCtx, "failed to clear snapshot directory", err)
			os.Exit(1)
		}
		logg.Info(runCtx, "snapshot directory cleared")
	}

	sum, err := generate.New(gen, logg).Run(runCtx, gen.DataDir)
	if err != nil {
		logg.Error(runCtx, "generation failed", err)
		os.Exit(1)
	}

	fmt.Printf("generated %d days: %d customers, %d products, %d orders, %d order items\n",
		sum.Days, sum.Customers, sum.Products, sum.Orders, sum.Items)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
