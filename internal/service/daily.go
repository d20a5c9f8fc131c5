package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"
	"obsidian-digest/internal/port"

	log "github.com/sirupsen/logrus"
)

// ProcessOptions 日报处理的细粒度开关
type ProcessOptions struct {
	SkipAnalysis      bool // 跳过单条目 AI 分析，只用已有评分
	SkipOverview      bool // 跳过 overview 生成
	OverwriteItems    bool // 覆盖已有的单条目标注
	OverwriteOverview bool // 覆盖已有的 overview
}

// DailyService 处理日报：读文件 -> 条目评分 -> 生成总结 -> 整文件写回
type DailyService struct {
	scorer   *ItemScorer
	overview *OverviewGenerator
	store    port.ReportStore
	notifier port.Notifier
	model    string
	cooldown time.Duration // 多文件处理时的文件间冷却，防止触发外部限流
	nowFunc  func() time.Time
}

// NewDailyService 创建日报处理服务
func NewDailyService(scorer *ItemScorer, overview *OverviewGenerator, store port.ReportStore, model string) *DailyService {
	return &DailyService{
		scorer:   scorer,
		overview: overview,
		store:    store,
		model:    model,
		cooldown: 10 * time.Second,
		nowFunc:  time.Now,
	}
}

// SetNotifier 配置日报推送通道，nil 表示不推送
func (s *DailyService) SetNotifier(n port.Notifier) {
	s.notifier = n
}

// SetCooldown 设置文件间冷却时间
func (s *DailyService) SetCooldown(d time.Duration) {
	if d >= 0 {
		s.cooldown = d
	}
}

// ProcessDate 处理单个日期的日报文件。
// 文件缺失或损坏属于运行级错误，直接返回；条目级失败只体现在计数器里。
func (s *DailyService) ProcessDate(ctx context.Context, date string, opts ProcessOptions) error {
	start := s.nowFunc()
	log.Infof("=== 处理日报 %s ===", date)
	log.Infof("选项: 跳过分析=%v 跳过总结=%v 覆盖条目=%v 覆盖总结=%v",
		opts.SkipAnalysis, opts.SkipOverview, opts.OverwriteItems, opts.OverwriteOverview)

	report, err := s.store.LoadDaily(date)
	if err != nil {
		return common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("读取日报 %s 失败", date), err)
	}

	allItems := report.AllItems()
	log.Infof("📥 共 %d 个条目", len(allItems))

	// 1. 单条目 AI 分析
	var valid []*domain.Item
	if !opts.SkipAnalysis {
		valid, _ = s.scorer.BatchEvaluate(ctx, allItems, ReportTypeDaily, opts.OverwriteItems)
	} else {
		log.Info("⏭️ 跳过单条目分析，收集已有评分")
		for _, item := range allItems {
			if item.AIScore != nil {
				valid = append(valid, item)
			}
		}
	}
	log.Infof("✅ 有效条目 %d 个", len(valid))

	// 2. 生成整体总结
	if !opts.SkipOverview {
		if !opts.OverwriteOverview && report.AI != nil && report.AI.Overview != "" {
			log.Info("⏭️ overview 已存在，使用 -overwrite-overview 可重新生成")
		} else {
			var overviewText string
			if len(valid) > 0 {
				log.Info("📝 生成日报总结...")
				overviewText, err = s.overview.Generate(ctx, valid, ReportTypeDaily)
				if err != nil {
					// 总结失败不让整次运行失败，占位文本保证输出文件完整
					log.Errorf("❌ 总结生成失败: %v", err)
					overviewText = "生成总结时发生错误。"
				}
			} else {
				log.Warn("⚠️ 没有有效条目，使用占位总结")
				overviewText = emptyDailyOverview
			}

			report.AI = &domain.AIMeta{
				Overview:       overviewText,
				GeneratedAt:    s.nowFunc().UTC().Format(time.RFC3339),
				Model:          s.model,
				ProcessedCount: len(allItems),
				SelectedCount:  len(valid),
			}
		}
	} else {
		log.Info("⏭️ 跳过总结生成")
	}

	// 3. 整文件写回（从不按条目增量落盘）
	if err := s.store.SaveDaily(report); err != nil {
		return common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("保存日报 %s 失败", date), err)
	}

	// 4. 推送（可选，失败只记日志）
	if s.notifier != nil && report.AI != nil {
		if err := s.notifier.NotifyDaily(ctx, report); err != nil {
			log.Warnf("⚠️ 推送日报 %s 失败: %v", date, err)
		}
	}

	log.Infof("✅ 日报 %s 处理完成，耗时 %.2fs", date, s.nowFunc().Sub(start).Seconds())
	return nil
}

// ProcessRange 依次处理多个日期，文件之间观察冷却时间。
// 单个文件的运行级错误只影响该文件，后续文件继续处理。
func (s *DailyService) ProcessRange(ctx context.Context, dates []string, opts ProcessOptions) error {
	total := len(dates)
	log.Infof("📂 待处理日报文件: %d 个", total)

	failed := 0
	for i, date := range dates {
		log.Infof("—— 文件 %d/%d ——", i+1, total)
		if err := s.ProcessDate(ctx, date, opts); err != nil {
			log.Errorf("❌ 日报 %s 处理失败: %v", date, err)
			failed++
		}

		if i < total-1 && s.cooldown > 0 {
			log.Infof("😴 冷却 %v 后处理下一个文件...", s.cooldown)
			timer := time.NewTimer(s.cooldown)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if failed == total && total > 0 {
		return common.NewError(common.ErrCodeInternal,
			fmt.Sprintf("全部 %d 个日报文件处理失败", total))
	}
	log.Infof("🎉 全部完成，共处理 %d 个文件（失败 %d 个）", total, failed)
	return nil
}

// ExpandDateInput 把 "-date" 参数展开为日期列表。
// 支持单日 "YYYY-MM-DD" 和范围 "YYYY-MM-DD:YYYY-MM-DD"。
func ExpandDateInput(input string) ([]string, error) {
	if input == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "日期不能为空")
	}

	parts := strings.SplitN(input, ":", 2)

	if len(parts) == 1 {
		if _, err := time.Parse("2006-01-02", parts[0]); err != nil {
			return nil, common.WrapError(common.ErrCodeInvalidInput,
				fmt.Sprintf("日期格式错误: %s，应为 YYYY-MM-DD", parts[0]), err)
		}
		return []string{parts[0]}, nil
	}

	start, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput,
			fmt.Sprintf("日期格式错误: %s", parts[0]), err)
	}
	end, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput,
			fmt.Sprintf("日期格式错误: %s", parts[1]), err)
	}
	if start.After(end) {
		return nil, common.NewError(common.ErrCodeInvalidInput, "起始日期必须早于结束日期")
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, nil
}
