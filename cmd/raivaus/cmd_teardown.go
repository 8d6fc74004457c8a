package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/yairfalse/raivaus/classify"
	"github.com/yairfalse/raivaus/config"
	"github.com/yairfalse/raivaus/history"
	"github.com/yairfalse/raivaus/internal/selection"
	"github.com/yairfalse/raivaus/policy"
	awsprov "github.com/yairfalse/raivaus/providers/aws"
	"github.com/yairfalse/raivaus/report"
	"github.com/yairfalse/raivaus/resolve"
	"github.com/yairfalse/raivaus/teardown"
	"github.com/yairfalse/raivaus/telemetry"
	"github.com/yairfalse/raivaus/wal"
)

var (
	teardownDryRun    bool
	teardownAccounts  string
	teardownRegions   string
	teardownConfirm   string
	teardownMetricsAt string
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Tear down the configured environment in dependency order",
	Long: `Discover, classify, and delete every configured resource type across
the selected accounts and regions. Deletion follows the cascade table
(instances before security groups, record sets before zones) and blocked
deletions are retried until the environment converges or the pass budget
runs out.

Nothing is deleted until you type the confirmation token. Use --dry-run
to see what would be deleted without confirming anything.`,
	Example: `  raivaus teardown --dry-run                 # preview only
  raivaus teardown                           # prompts for confirmation
  raivaus teardown --accounts 1 --regions 2  # subset of the config lists
  raivaus teardown --accounts 1,3-4          # selection syntax`,
	RunE: runTeardown,
}

func init() {
	rootCmd.AddCommand(teardownCmd)

	teardownCmd.Flags().BoolVar(&teardownDryRun, "dry-run", false, "Classify and plan but delete nothing")
	teardownCmd.Flags().StringVar(&teardownAccounts, "accounts", "all", "Which configured accounts to process (e.g. all, 1,3-5)")
	teardownCmd.Flags().StringVar(&teardownRegions, "regions", "all", "Which configured regions to process (e.g. all, 1,3-5)")
	teardownCmd.Flags().StringVar(&teardownConfirm, "confirm", "", "Confirmation token; prompted interactively when omitted")
	teardownCmd.Flags().StringVar(&teardownMetricsAt, "metrics", ":9090", "Metrics server address")
}

func runTeardown(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	accounts, err := pickFrom(cfg.Accounts, teardownAccounts)
	if err != nil {
		return fmt.Errorf("bad --accounts selection: %w", err)
	}
	regions, err := pickFrom(cfg.Regions, teardownRegions)
	if err != nil {
		return fmt.Errorf("bad --regions selection: %w", err)
	}

	confirmation := teardownConfirm
	if teardownDryRun {
		confirmation = teardown.ConfirmToken
	} else if confirmation == "" {
		confirmation, err = promptConfirmation(cmd, accounts, regions)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	promExporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	tel, err := telemetry.NewProvider(ctx, cfg.OTEL, promExporter)
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	engine, hist, journal, err := buildEngine(ctx, cfg, tel)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()
	defer func() { _ = hist.Close() }()

	var tasks []teardown.Task
	for _, account := range accounts {
		for _, region := range regions {
			tasks = append(tasks, teardown.Task{Account: account, Region: region})
		}
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: teardownMetricsAt, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Add(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, func(error) {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	})

	g.Add(func() error {
		_, err := engine.Run(ctx, confirmation, tasks)
		return err
	}, func(error) {
		cancel()
	})

	err = g.Run()
	var sigErr run.SignalError
	if err != nil && !errors.As(err, &sigErr) {
		return err
	}

	// The snapshot is valid even after an interrupt mid-run.
	result := engine.Aggregator().Snapshot()
	runID := engine.Aggregator().RunID()

	path, err := report.WriteFile(cfg.ReportDir, runID, result)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := hist.SaveRun(runID, result); err != nil {
		return fmt.Errorf("save run history: %w", err)
	}
	if cfg.ReportS3 != "" {
		if err := uploadReport(cfg.ReportS3, runID, result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: report upload failed: %v\n", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d deleted, %d skipped, %d failed\nreport: %s\n",
		runID,
		result.Summary.TotalDeleted,
		result.Summary.TotalSkipped,
		result.Summary.TotalFailed,
		path,
	)
	if result.Summary.TotalFailed > 0 {
		return fmt.Errorf("%d resources did not converge to deleted", result.Summary.TotalFailed)
	}
	return nil
}

// buildEngine wires the provider registry, classifier, audit journal and
// history store into a teardown engine.
func buildEngine(ctx context.Context, cfg *config.Config, tel *telemetry.Provider) (*teardown.Engine, *history.Store, *wal.WAL, error) {
	pool := awsprov.NewClientPool(nil)
	registry := awsprov.NewRegistry(pool, cfg.Regions[0])

	opts := []classify.Option{
		classify.WithInspector(awsprov.NewStructuralInspector(pool)),
	}
	if cfg.PolicyDir != "" {
		engine := policy.NewEngine()
		if err := engine.LoadDir(ctx, cfg.PolicyDir); err != nil {
			return nil, nil, nil, fmt.Errorf("load policies: %w", err)
		}
		opts = append(opts, classify.WithPolicyEngine(engine))
	}
	classifier := classify.New(cfg.Protection, opts...)

	journal, err := wal.Open(cfg.WALDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open audit journal: %w", err)
	}
	hist, err := history.Open(cfg.HistoryDir)
	if err != nil {
		_ = journal.Close()
		return nil, nil, nil, fmt.Errorf("open history store: %w", err)
	}

	engine, err := teardown.NewEngine(teardown.Params{
		Registry:   registry,
		Classifier: classifier,
		Resolver:   resolve.NewDefault(),
		Config:     cfg,
		WAL:        journal,
		History:    hist,
		Metrics:    tel.Metrics(),
		ExecutedBy: os.Getenv("USER"),
		DryRun:     teardownDryRun,
	})
	if err != nil {
		_ = journal.Close()
		_ = hist.Close()
		return nil, nil, nil, err
	}
	return engine, hist, journal, nil
}

// pickFrom applies a selection expression ("all", "2", "1,3-5") to the
// configured option list.
func pickFrom(options []string, expr string) ([]string, error) {
	indexes, err := selection.Parse(expr, len(options))
	if err != nil {
		return nil, err
	}
	picked := make([]string, 0, len(indexes))
	for _, i := range indexes {
		picked = append(picked, options[i-1])
	}
	return picked, nil
}

// promptConfirmation shows the blast radius and reads the typed token.
func promptConfirmation(cmd *cobra.Command, accounts, regions []string) (string, error) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "About to tear down:\n")
	fmt.Fprintf(out, "  accounts: %s\n", strings.Join(accounts, ", "))
	fmt.Fprintf(out, "  regions:  %s\n", strings.Join(regions, ", "))
	fmt.Fprintf(out, "Type %s to proceed: ", teardown.ConfirmToken)

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// uploadReport pushes the report JSON to the configured S3 bucket.
func uploadReport(bucket, runID string, result report.TeardownResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	sink := report.NewS3Sink(s3.NewFromConfig(awsCfg), bucket, "reports")
	return sink.Upload(ctx, runID, result)
}
