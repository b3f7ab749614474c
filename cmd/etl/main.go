package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shoplake/etl/internal/aggregate"
	"github.com/shoplake/etl/internal/audit"
	"github.com/shoplake/etl/internal/entity"
	"github.com/shoplake/etl/internal/ingest"
	"github.com/shoplake/etl/internal/pipeline"
	"github.com/shoplake/etl/internal/staging"
	"github.com/shoplake/etl/internal/warehouse"
	"github.com/shoplake/etl/pkg/config"
	"github.com/shoplake/etl/pkg/db"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/metrics"
)

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "etl"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "all", "pipeline stage: raw|staging|prod|validate|all")
	full := flag.Bool("full", false, "full refresh: truncate the raw tier and reload every partition")
	tableName := flag.String("table", "", "restrict the raw stage to a single source table")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "etl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	store := warehouse.New(dbClient, cfg.Pipeline.BatchSize)
	if store.Dialect() == config.DriverSQLite {
		// goose migrations target Postgres; SQLite gets its schema inline
		requireResource(ctx, logg, "warehouse schema", store.EnsureSchema(ctx))
	}

	runner := pipeline.New(
		ingest.New(store, logg, cfg.Generator.DataDir),
		staging.New(store, logg),
		aggregate.New(store, logg),
		audit.New(store, logg, cfg.Pipeline.MaxDataLoss),
		logg,
		metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
	)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})
	logg.Info(runCtx, "etl ready")

	switch *cmd {
	case "raw":
		if *tableName != "" {
			runSingleTable(runCtx, logg, store, cfg, *tableName, *full)
			return
		}
		exitOn(runCtx, logg, runner.RunRaw(runCtx, *full).Err)

	case "staging":
		exitOn(runCtx, logg, runner.RunStaging(runCtx).Err)

	case "prod":
		exitOn(runCtx, logg, runner.RunProduction(runCtx).Err)

	case "validate", "audit":
		rep, out := runner.RunAudit(runCtx)
		if rep != nil {
			printAudit(rep)
		}
		exitOn(runCtx, logg, out.Err)

	case "all":
		rep := runner.RunFull(runCtx, *full)
		if rep.Audit != nil {
			printAudit(rep.Audit)
		}
		exitOn(runCtx, logg, rep.Failed())

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func runSingleTable(ctx context.Context, logg *logger.Logger, store *warehouse.Store, cfg *config.Config, name string, full bool) {
	ent, ok := entity.ByName(name)
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -table value:", name)
		os.Exit(1)
	}
	ing := ingest.New(store, logg, cfg.Generator.DataDir)
	var (
		res ingest.Result
		err error
	)
	if full {
		res, err = ing.RefreshTable(ctx, ent)
	} else {
		res, err = ing.IngestTable(ctx, ent, true)
	}
	exitOn(ctx, logg, err)
	fmt.Printf("ingested %d rows into raw.%s (%d partitions)\n", res.Rows, res.Table, res.Partitions)
}

func printAudit(rep *audit.Report) {
	for _, c := range rep.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s: %s\n", status, c.Name, c.Details)
	}
	fmt.Printf("audit pass rate: %.1f%% (%d/%d)\n", rep.PassRate()*100, len(rep.Checks)-len(rep.Failed()), len(rep.Checks))
}

func exitOn(ctx context.Context, logg *logger.Logger, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "pipeline stage failed", err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
