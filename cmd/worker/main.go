// AutoFund Worker 入口
// 启动 Temporal Worker 处理 IES 分析工作流和活动
package main

import (
	"context"
	"log"
	"time"

	"github.com/autofund-ai/autofund/internal/activity"
	"github.com/autofund-ai/autofund/internal/workflow"
	"github.com/autofund-ai/autofund/pkg/config"
	"github.com/autofund-ai/autofund/pkg/logging"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"github.com/autofund-ai/autofund/pkg/tracing"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger, err := logging.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化 Tracing
	tp, err := tracing.InitTracer(cfg.System.ServiceName+"-worker", cfg.Observability.Tracing)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	// 启动 Metrics 服务器
	if cfg.Observability.Metrics.Enabled {
		go metrics.StartServer(cfg.Observability.Metrics.Port, cfg.Observability.Metrics.Path, logger)
	}

	// 创建 Temporal 客户端
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// 创建 Activity 依赖
	activities, err := activity.NewActivities(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create activities", zap.Error(err))
	}
	defer activities.Close()

	// 创建 Worker
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.Worker.MaxConcurrentWorkflows,
	})

	// 注册工作流
	w.RegisterWorkflow(workflow.IESAnalysisWorkflow)

	// 注册活动
	w.RegisterActivity(activities.ExtractActivity)
	w.RegisterActivity(activities.AnalyzeActivity)
	w.RegisterActivity(activities.WriteOutputsActivity)
	w.RegisterActivity(activities.CleanupOutputsActivity)
	w.RegisterActivity(activities.NotifyCompensationFailure)

	logger.Info("Starting AutoFund Worker",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("namespace", cfg.Temporal.Namespace),
	)

	// 收到 SIGINT / SIGTERM 时优雅停止
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("Worker failed", zap.Error(err))
	}

	logger.Info("Worker stopped")
}
