package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"obsidian-digest/internal/adapter/feishu"
	"obsidian-digest/internal/adapter/fetcher"
	"obsidian-digest/internal/adapter/gemini"
	"obsidian-digest/internal/adapter/storage"
	"obsidian-digest/internal/common"
	"obsidian-digest/internal/config"
	"obsidian-digest/internal/port"
	"obsidian-digest/internal/service"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

func main() {
	// 1. 定义命令行参数
	mode := flag.String("mode", "daily", "运行模式: fetch (采集) / daily (日报) / aggregate (周报聚合) / weekly (周报总结)")
	date := flag.String("date", "", "日期 YYYY-MM-DD 或范围 YYYY-MM-DD:YYYY-MM-DD，默认昨天")
	week := flag.String("week", "", "ISO 周 YYYY-Www (如 2026-W02)，默认上周")
	overwriteItems := flag.Bool("overwrite-items", false, "覆盖已有的单条目标注")
	overwriteOverview := flag.Bool("overwrite-overview", false, "覆盖已有的总结")
	overwriteAll := flag.Bool("overwrite-all", false, "覆盖条目标注和总结")
	skipAnalysis := flag.Bool("skip-analysis", false, "跳过单条目分析，只用已有评分")
	skipOverview := flag.Bool("skip-overview", false, "跳过总结生成")
	concurrency := flag.Int("concurrency", 0, "批量评分的 worker 数，0 表示用配置值")
	cronMode := flag.Bool("cron", false, "按配置的 cron 表达式定时执行 采集+日报")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	// 2. 加载配置
	cfg := config.Load()
	if *concurrency > 0 {
		cfg.Pipeline.WorkerCount = *concurrency
	}
	if *overwriteAll {
		*overwriteItems = true
		*overwriteOverview = true
	}

	// 3. 初始化公共依赖 (文件存储)
	store, err := storage.NewJSONStore(cfg.Storage.DailyDir, cfg.Storage.WeeklyDir)
	if err != nil {
		log.Fatalf("❌ 存储初始化失败: %v", err)
	}

	opts := service.ProcessOptions{
		SkipAnalysis:      *skipAnalysis,
		SkipOverview:      *skipOverview,
		OverwriteItems:    *overwriteItems,
		OverwriteOverview: *overwriteOverview,
	}

	// 4. 根据模式分流
	if *cronMode {
		runScheduled(cfg, store, opts)
		return
	}

	ctx := context.Background()
	switch *mode {
	case "fetch":
		if err := runFetch(ctx, cfg, store); err != nil {
			log.Fatalf("❌ 采集失败: %v", err)
		}
	case "daily":
		if err := runDaily(ctx, cfg, store, *date, opts); err != nil {
			log.Fatalf("❌ 日报处理失败: %v", err)
		}
	case "aggregate":
		if err := runAggregate(cfg, store, *week); err != nil {
			log.Fatalf("❌ 周报聚合失败: %v", err)
		}
	case "weekly":
		if err := runWeekly(ctx, cfg, store, *week, *overwriteOverview); err != nil {
			log.Fatalf("❌ 周报总结失败: %v", err)
		}
	default:
		log.Fatalf("❌ 未知模式 %q，请使用 -mode=fetch|daily|aggregate|weekly", *mode)
	}
}

// runFetch 采集昨天的社区内容并落盘
func runFetch(ctx context.Context, cfg config.Config, store port.ReportStore) error {
	pipeline, err := fetcher.NewPipeline(fetcher.SourceConfig{
		ChineseForumName:     cfg.Sources.ChineseForumName,
		ChineseForumBaseURL:  cfg.Sources.ChineseForumBaseURL,
		ChineseForumCategory: cfg.Sources.ChineseForumCategory,
		EnglishForumName:     cfg.Sources.EnglishForumName,
		EnglishForumBaseURL:  cfg.Sources.EnglishForumBaseURL,
		EnglishForumCategory: cfg.Sources.EnglishForumCategory,
		GithubRepo:           cfg.Github.Repo,
		GithubToken:          cfg.Github.Token,
		RedditName:           cfg.Sources.RedditName,
		RedditListURL:        cfg.Sources.RedditListURL,
	})
	if err != nil {
		return err
	}

	report, err := pipeline.CollectYesterday(ctx)
	if err != nil {
		return err
	}
	if err := store.SaveDaily(report); err != nil {
		return err
	}
	log.Infof("✅ 采集完成，已保存日报 %s", report.Date)
	return nil
}

// newDailyService 组装日报处理服务（AI 评分 + 总结 + 可选推送）
func newDailyService(ctx context.Context, cfg config.Config, store port.ReportStore) (*service.DailyService, *gemini.Scorer, error) {
	scorer, err := gemini.NewScorer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return nil, nil, err
	}

	// 条目评分和总结生成各用一个限流门，互不抢槽位
	itemGate := common.NewGate(cfg.Gate.ItemConcurrency, cfg.Gate.ItemInterval())
	overviewGate := common.NewGate(cfg.Gate.OverviewConcurrency, cfg.Gate.OverviewInterval())

	itemScorer := service.NewItemScorer(scorer, itemGate)
	itemScorer.SetWorkerCount(cfg.Pipeline.WorkerCount)
	itemScorer.SetRetry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay())

	overview := service.NewOverviewGenerator(scorer, overviewGate)
	overview.SetTopN(cfg.Pipeline.OverviewTopN)
	overview.SetRetry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay())

	daily := service.NewDailyService(itemScorer, overview, store, scorer.ModelName())
	daily.SetCooldown(cfg.Pipeline.Cooldown())
	if cfg.Feishu.Webhook != "" {
		daily.SetNotifier(feishu.NewNotifier(cfg.Feishu.Webhook))
	}
	return daily, scorer, nil
}

// runDaily 对一个或多个日期的日报做 AI 评分和总结
func runDaily(ctx context.Context, cfg config.Config, store port.ReportStore, dateInput string, opts service.ProcessOptions) error {
	if dateInput == "" {
		_, _, yesterday := fetcher.YesterdayRange(time.Now())
		dateInput = yesterday
	}
	dates, err := service.ExpandDateInput(dateInput)
	if err != nil {
		return err
	}

	daily, scorer, err := newDailyService(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer scorer.Close()

	return daily.ProcessRange(ctx, dates, opts)
}

// runAggregate 把一个 ISO 周的日报合并成周报文件
func runAggregate(cfg config.Config, store port.ReportStore, weekInput string) error {
	if weekInput == "" {
		weekInput = service.LastISOWeek(time.Now())
	}
	year, week, err := service.ParseISOWeek(weekInput)
	if err != nil {
		return err
	}

	aggregator := service.NewAggregator(store)
	weekly, err := aggregator.Aggregate(year, week)
	if err != nil {
		return err
	}
	if err := store.SaveWeekly(weekly); err != nil {
		return err
	}
	log.Infof("✅ 周报 %s 聚合完成", weekly.ISOWeek)
	return nil
}

// runWeekly 为聚合好的周报生成 AI 总结和统计
func runWeekly(ctx context.Context, cfg config.Config, store port.ReportStore, weekInput string, overwrite bool) error {
	if weekInput == "" {
		weekInput = service.LastISOWeek(time.Now())
	}
	if _, _, err := service.ParseISOWeek(weekInput); err != nil {
		return err
	}

	scorer, err := gemini.NewScorer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return err
	}
	defer scorer.Close()

	overviewGate := common.NewGate(cfg.Gate.OverviewConcurrency, cfg.Gate.OverviewInterval())
	overview := service.NewOverviewGenerator(scorer, overviewGate)
	overview.SetTopN(cfg.Pipeline.OverviewTopN)
	overview.SetRetry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay())

	weeklyService := service.NewWeeklyService(overview, store, scorer.ModelName())
	return weeklyService.Process(ctx, weekInput, overwrite)
}

// runScheduled 按 cron 表达式定时执行 采集+日报，Ctrl+C 优雅退出
func runScheduled(cfg config.Config, store port.ReportStore, opts service.ProcessOptions) {
	c := cron.New()
	_, err := c.AddFunc(cfg.Scheduler.CronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if err := runFetch(ctx, cfg, store); err != nil {
			log.Errorf("❌ 定时采集失败: %v", err)
			return
		}
		_, _, yesterday := fetcher.YesterdayRange(time.Now())
		if err := runDaily(ctx, cfg, store, yesterday, opts); err != nil {
			log.Errorf("❌ 定时日报处理失败: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("❌ cron 表达式 %q 无效: %v", cfg.Scheduler.CronExpression, err)
	}

	c.Start()
	log.Infof("⏰ 定时模式已启动 (cron: %s)，按 Ctrl+C 退出", cfg.Scheduler.CronExpression)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("👋 收到停止信号，正在退出...")
	<-c.Stop().Done()
}
