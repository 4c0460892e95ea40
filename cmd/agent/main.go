package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project-billing/internal/biz"
	"project-billing/internal/conf"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

// AgentApp 对账代理应用结构
type AgentApp struct {
	Reconcile *biz.ReconcileUseCase
	Config    *biz.AgentConfig
}

var (
	flagconf string
	flagonce bool
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs", "config path, eg: -conf config.yaml")
	flag.BoolVar(&flagonce, "once", false, "run a single reconciliation pass and exit")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/billing-agent.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "billing-agent",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用（启动时获取一次管理员凭据）
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 取消只在项目之间生效，进行中的账本事务不会被打断
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flagonce {
		if err := app.runPass(ctx, logHelper); err != nil {
			os.Exit(1)
		}
		return
	}

	// 创建定时任务调度器（支持秒级调度），上一次对账未结束时跳过本次
	cronScheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	schedule := fmt.Sprintf("@every %s", app.Config.Interval)
	_, err = cronScheduler.AddFunc(schedule, func() {
		_ = app.runPass(ctx, logHelper)
	})
	if err != nil {
		logHelper.Errorf("Failed to add reconciliation job: %v", err)
		return
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Billing agent started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Infof("  - Reconciliation pass: %s", schedule)
	logHelper.Info("========================================")

	// 优雅退出
	<-ctx.Done()
	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务，等待进行中的对账在项目边界退出
	stopCtx := cronScheduler.Stop()
	select {
	case <-stopCtx.Done():
		logHelper.Info("Reconciliation jobs stopped gracefully")
	case <-time.After(app.Config.ActuatorTimeout + 5*time.Second):
		logHelper.Info("Reconciliation jobs forced to stop after timeout")
	}
}

// runPass 执行一次对账（受对账超时约束）
func (a *AgentApp) runPass(ctx context.Context, logHelper *log.Helper) error {
	passCtx, cancel := context.WithTimeout(ctx, a.Config.PassTimeout)
	defer cancel()

	logHelper.Info("[AGENT] Starting reconciliation pass...")
	outcomes, err := a.Reconcile.Run(passCtx)
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	if err != nil {
		logHelper.Errorf("[AGENT] Reconciliation pass ended with error: projects=%d, failed=%d, error=%v", len(outcomes), failed, err)
		return err
	}
	logHelper.Infof("[AGENT] Finished reconciliation pass: projects=%d, failed=%d", len(outcomes), failed)
	return nil
}
