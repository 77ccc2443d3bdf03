// AutoFund 命令行入口
// analyze: 进程内分析单份 IES；serve: 启动 HTTP API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/pipeline"
	"github.com/autofund-ai/autofund/internal/server"
	"github.com/autofund-ai/autofund/pkg/cache"
	"github.com/autofund-ai/autofund/pkg/config"
	"github.com/autofund-ai/autofund/pkg/logging"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"github.com/autofund-ai/autofund/pkg/tracing"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "autofund",
		Short:         "Financial analysis of Portuguese IES filings for Portugal 2030 applications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the config file (default $CONFIG_PATH or config/config.yaml)")

	rootCmd.AddCommand(newAnalyzeCmd(), newServeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFile(cfgPath)
	}
	return config.Load()
}

func setup(serviceSuffix string) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Observability.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	tp, err := tracing.InitTracer(cfg.System.ServiceName+serviceSuffix, cfg.Observability.Tracing)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
		_ = logger.Sync()
	}
	return cfg, logger, cleanup, nil
}

func newAnalyzeCmd() *cobra.Command {
	var companyContext string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <ies.pdf>",
		Short: "Analyse an IES PDF and write the spreadsheet and JSON report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup("-cli")
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			res, err := pipeline.NewFromConfig(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer res.Close()

			rep, err := res.Runner.Run(cmd.Context(), doc, companyContext)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep.Files)
			}

			lang := analysis.Language(cfg.Analysis.Language)
			ratios := rep.Analysis.Ratios()
			fmt.Fprintf(out, "Company:              %s (%s)\n", rep.Metadata.Company, rep.Metadata.Period)
			fmt.Fprintf(out, "Risk level:           %s\n", rep.Analysis.Risk().Label(lang))
			fmt.Fprintf(out, "Financial autonomy:   %s\n", analysis.FormatPercent(ratios.FinancialAutonomy))
			fmt.Fprintf(out, "Current liquidity:    %s\n", ratios.CurrentLiquidity.StringFixed(2))
			fmt.Fprintf(out, "EBITDA margin:        %s\n", analysis.FormatPercent(ratios.EBITDAMargin))
			fmt.Fprintf(out, "Accounts balanced:    %t\n", rep.Validation.Balanced)
			fmt.Fprintf(out, "Spreadsheet:          %s\n", rep.Files.Excel)
			fmt.Fprintf(out, "Report:               %s\n", rep.Files.JSON)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyContext, "context", "", "Additional company context for the narrative")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the generated file paths as JSON")
	return cmd
}

func newServeCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := setup("-api")
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.Observability.Metrics.Enabled {
				go metrics.StartServer(cfg.Observability.Metrics.Port, cfg.Observability.Metrics.Path, logger)
			}

			var jobs server.JobService
			if local {
				localJobs, closeFn, err := newLocalJobs(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer closeFn()
				jobs = localJobs
			} else {
				c, err := client.Dial(client.Options{
					HostPort:  cfg.Temporal.Address,
					Namespace: cfg.Temporal.Namespace,
					Logger:    logging.NewTemporalLogger(logger),
				})
				if err != nil {
					return fmt.Errorf("failed to create Temporal client: %w", err)
				}
				defer c.Close()
				jobs = server.NewTemporalJobs(c, cfg.Temporal.TaskQueue, logger)
			}

			srv := server.New(cfg.Server, cfg.System.Version, jobs, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.System.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run analyses in-process instead of on the Temporal worker")
	return cmd
}

// newLocalJobs 本地模式：配置了 Redis 时任务状态写入 Redis，否则保存在内存
func newLocalJobs(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server.LocalJobs, func(), error) {
	res, err := pipeline.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var store server.JobStore = server.NewMemoryStore()
	var statusCache *cache.RedisCache
	if cfg.Storage.Redis.Address != "" {
		if statusCache, err = cache.NewRedisCache(cfg.Storage.Redis); err != nil {
			logger.Warn("Redis unavailable, keeping job status in memory", zap.Error(err))
			statusCache = nil
		} else {
			store = server.NewRedisStore(statusCache, cfg.Server.JobTTL)
		}
	}

	jobs := server.NewLocalJobs(res.Runner, store, cfg.Server.MaxLocalJobs, logger)
	closeFn := func() {
		jobs.Close()
		_ = res.Close()
		if statusCache != nil {
			_ = statusCache.Close()
		}
	}
	return jobs, closeFn, nil
}
