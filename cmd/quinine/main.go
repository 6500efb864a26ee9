package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/adapter"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/attack"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/evaluate"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/orchestrator"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/report"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/runner"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/session"
	"github.com/devesh1104/Quinine-Testing-Environment/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to run config YAML/JSON")
	attacksPath := flag.String("attacks", "", "Attack catalog file or directory (YAML)")
	target := flag.String("target", "", "Comma-separated target backend names")
	allTargets := flag.Bool("all-targets", false, "Run against every configured target")
	categories := flag.String("categories", "", "Comma-separated attack categories (empty = all)")
	complexity := flag.String("complexity", "", "Comma-separated complexities: low,medium,high (empty = all)")
	reportDir := flag.String("report-dir", "", "Report output directory override")
	healthOnly := flag.Bool("health", false, "Run health checks and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	if *reportDir != "" {
		cfg.Reporting.OutputDir = *reportDir
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(rootCtx, cfg.Telemetry)
	if err != nil {
		slog.Error("setup telemetry failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	}()

	var store session.Store = session.NewMemoryStore()
	if strings.TrimSpace(cfg.Store.DSN) != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Store.DSN)
		if err != nil {
			slog.Error("parse database DSN failed", "error", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = cfg.Store.MaxConns
		pool, err := pgxpool.NewWithConfig(rootCtx, poolCfg)
		if err != nil {
			slog.Error("connect database failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := session.NewPgStore(pool)
		if err := pg.Migrate(rootCtx); err != nil {
			slog.Error("migrate session schema failed", "error", err)
			os.Exit(1)
		}
		store = pg
	}

	orch, err := orchestrator.Build(rootCtx, cfg, adapter.NewBuiltinRegistry(), tel)
	if err != nil {
		slog.Error("build orchestrator failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = orch.Close() }()

	health := orch.HealthCheckAll(rootCtx)
	for name, ok := range health {
		slog.Info("backend health", "name", name, "healthy", ok)
	}
	if *healthOnly {
		return
	}

	catalog := attack.NewCatalog()
	if err := loadCatalog(catalog, *attacksPath); err != nil {
		slog.Error("load attack catalog failed", "error", err)
		os.Exit(1)
	}
	if catalog.Len() == 0 {
		slog.Error("attack catalog is empty")
		os.Exit(1)
	}

	sel, err := buildSelection(*target, *categories, *complexity)
	if err != nil {
		slog.Error("invalid selection", "error", err)
		os.Exit(1)
	}

	engine := attack.NewEngine(orch, catalog,
		cfg.Execution.MaxConcurrentAttacks,
		time.Duration(cfg.Execution.DelayBetweenAttacksMS)*time.Millisecond)
	pipeline := newPipeline(orch)
	run := runner.New(orch, engine, pipeline, store, tel)

	var sess *session.Session
	if *allTargets {
		sess, err = run.RunAllTargets(rootCtx, sel)
	} else {
		if len(sel.Targets) == 0 {
			slog.Error("no targets selected; use -target or -all-targets")
			os.Exit(1)
		}
		sess, err = run.Run(rootCtx, sel)
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	path, err := report.WriteJSON(cfg.Reporting.OutputDir, sess.Snapshot())
	if err != nil {
		slog.Error("write report failed", "error", err)
		os.Exit(1)
	}

	sum := sess.Summary()
	fmt.Printf("session %s (%s)\n", sess.ID(), sess.Status())
	fmt.Printf("  total=%d refused=%d partial=%d full_compliance=%d unknown=%d failures=%d\n",
		sum.Total, sum.Refused, sum.Partial, sum.FullCompliance, sum.Unknown, sum.Failures)
	fmt.Printf("  average score: %.1f\n", sum.AverageScore)
	fmt.Printf("  report: %s\n", path)
}

func newPipeline(orch *orchestrator.Orchestrator) *evaluate.Pipeline {
	judgeTarget := orch.JudgeTarget()
	if judgeTarget == "" {
		return evaluate.NewPipeline(nil, "")
	}
	return evaluate.NewPipeline(orch, judgeTarget)
}

func loadCatalog(catalog *attack.Catalog, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("no attack catalog given; use -attacks")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return catalog.LoadDir(path)
	}
	return catalog.LoadFile(path)
}

func buildSelection(targets, categories, complexities string) (attack.Selection, error) {
	sel := attack.Selection{Targets: splitCSV(targets)}
	for _, raw := range splitCSV(categories) {
		cat, err := attack.ParseCategory(raw)
		if err != nil {
			return attack.Selection{}, err
		}
		sel.Categories = append(sel.Categories, cat)
	}
	for _, raw := range splitCSV(complexities) {
		comp, err := attack.ParseComplexity(raw)
		if err != nil {
			return attack.Selection{}, err
		}
		sel.Complexities = append(sel.Complexities, comp)
	}
	return sel, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
