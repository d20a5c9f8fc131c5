package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"obsidian-digest/internal/adapter/fetcher"
	"obsidian-digest/internal/adapter/gemini"
	"obsidian-digest/internal/common"
	"obsidian-digest/internal/service"
)

func main() {
	// 获取环境变量
	geminiKey := os.Getenv("GEMINI_API_KEY")
	githubToken := os.Getenv("GITHUB_TOKEN")

	ctx := context.Background()

	// 初始化组件
	scorer, err := gemini.NewScorer(ctx, geminiKey, "")
	if err != nil {
		log.Fatalf("❌ AI 初始化失败: %v", err)
	}
	defer scorer.Close()

	pipeline, err := fetcher.NewPipeline(func() fetcher.SourceConfig {
		cfg := fetcher.DefaultSourceConfig()
		cfg.GithubToken = githubToken
		return cfg
	}())
	if err != nil {
		log.Fatalf("❌ 采集器初始化失败: %v", err)
	}

	fmt.Println("🔍 调试模式：采集并评分少量条目")

	// 1. 采集昨天的社区内容
	fmt.Println("📥 正在采集昨日数据...")
	report, err := pipeline.CollectYesterday(ctx)
	if err != nil {
		log.Printf("❌ 采集失败: %v", err)
		return
	}

	items := report.AllItems()
	fmt.Printf("✅ 共采集到 %d 个条目\n", len(items))
	if len(items) == 0 {
		fmt.Println("❌ 没有采集到任何条目")
		return
	}

	// 2. 评分前几个条目（节省 API 调用）
	gate := common.NewGate(3, 2*time.Second)
	itemScorer := service.NewItemScorer(scorer, gate)

	n := min(3, len(items))
	fmt.Printf("🧠 对前 %d 个条目进行 AI 评分:\n", n)
	for i := 0; i < n; i++ {
		item := items[i]
		fmt.Printf("  评分条目 #%d: %s\n", i+1, item.Title)

		outcome, err := itemScorer.EvaluateWithRetry(ctx, item, service.ReportTypeDaily)
		if err != nil {
			log.Printf("    ⚠️ 评分失败: %v", err)
			continue
		}

		fmt.Printf("    结果: %s\n", outcome)
		if item.AIScore != nil {
			fmt.Printf("    评分: %d\n", *item.AIScore)
			fmt.Printf("    摘要: %s\n", item.AISummary)
			fmt.Printf("    点评: %s\n", item.AIComment)
		}
		fmt.Println()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
