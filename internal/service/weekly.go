package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"
	"obsidian-digest/internal/port"

	log "github.com/sirupsen/logrus"
)

// FormatISOWeek 格式化 ISO 周字符串，如 "2026-W02"
func FormatISOWeek(year, week int) string {
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ParseISOWeek 解析 ISO 周字符串 (如 "2026-W02")
func ParseISOWeek(s string) (year, week int, err error) {
	parts := strings.SplitN(s, "-W", 2)
	if len(parts) != 2 {
		return 0, 0, common.NewError(common.ErrCodeInvalidInput,
			fmt.Sprintf("无效的 ISO 周格式: %s，应为 YYYY-Www (如 2026-W02)", s))
	}
	year, err = strconv.Atoi(parts[0])
	if err == nil {
		week, err = strconv.Atoi(parts[1])
	}
	if err != nil || week < 1 || week > 53 {
		return 0, 0, common.NewError(common.ErrCodeInvalidInput,
			fmt.Sprintf("无效的 ISO 周格式: %s，应为 YYYY-Www (如 2026-W02)", s))
	}
	return year, week, nil
}

// WeekDateRange 根据 ISO 周年和周数计算该周的周一至周日。
// ISO 规则：1月4日一定落在第 1 周。
func WeekDateRange(year, week int) (monday, sunday time.Time) {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	// time.Weekday 以周日为 0，换算成周一为 0 的偏移
	offset := (int(jan4.Weekday()) + 6) % 7
	week1Monday := jan4.AddDate(0, 0, -offset)

	monday = week1Monday.AddDate(0, 0, (week-1)*7)
	sunday = monday.AddDate(0, 0, 6)
	return monday, sunday
}

// ISOWeekOf 返回日期所在的 ISO 周字符串
func ISOWeekOf(t time.Time) string {
	year, week := t.ISOWeek()
	return FormatISOWeek(year, week)
}

// LastISOWeek 返回上周的 ISO 周字符串
func LastISOWeek(now time.Time) string {
	return ISOWeekOf(now.AddDate(0, 0, -7))
}

// mergeItemsByURL 按 URL 去重合并条目，冲突时按状态优先级裁决。
// 输出顺序 = URL 首次出现的顺序，保证重跑结果逐字节一致。
func mergeItemsByURL(existing, incoming []*domain.Item) []*domain.Item {
	index := make(map[string]int, len(existing))
	merged := make([]*domain.Item, 0, len(existing)+len(incoming))

	for _, item := range existing {
		if item.URL == "" {
			continue
		}
		if pos, ok := index[item.URL]; ok {
			merged[pos] = item
			continue
		}
		index[item.URL] = len(merged)
		merged = append(merged, item)
	}

	for _, item := range incoming {
		if item.URL == "" {
			continue
		}
		pos, ok := index[item.URL]
		if !ok {
			index[item.URL] = len(merged)
			merged = append(merged, item)
			continue
		}
		// merged 状态具有粘性：一旦记录就不会被后来的快照降级；
		// 其余状态之间按后写优先（周一→周日的遍历顺序）
		if domain.StateRank(item.State) >= domain.StateRank(merged[pos].State) {
			merged[pos] = item
		}
	}

	return merged
}

// Aggregator 把一个 ISO 周内最多 7 份日报合并成一份周报
type Aggregator struct {
	store   port.ReportStore
	nowFunc func() time.Time
}

// NewAggregator 创建周报聚合器
func NewAggregator(store port.ReportStore) *Aggregator {
	return &Aggregator{
		store:   store,
		nowFunc: time.Now,
	}
}

// Aggregate 聚合指定 ISO 周的日报数据。
// 缺失的日报不算错误，跳过并记录；找到的日期进入 actual_dates。
// 遍历固定按周一→周日的时间顺序，保证同 URL 冲突的裁决结果确定。
func (a *Aggregator) Aggregate(year, week int) (*domain.WeeklyReport, error) {
	monday, sunday := WeekDateRange(year, week)
	isoWeek := FormatISOWeek(year, week)

	log.Infof("📅 聚合 ISO 周: %s (%s ~ %s)", isoWeek,
		monday.Format("2006-01-02"), sunday.Format("2006-01-02"))

	weekly := &domain.WeeklyReport{
		ISOWeek: isoWeek,
		DateRange: domain.DateRange{
			Start: monday.Format("2006-01-02"),
			End:   sunday.Format("2006-01-02"),
		},
		ActualDates:  []string{},
		GeneratedAt:  a.nowFunc().UTC().Format(time.RFC3339),
		ChineseForum: []*domain.Item{},
		EnglishForum: []*domain.Item{},
		GithubOpened: []*domain.Item{},
		GithubMerged: []*domain.Item{},
		Reddit:       []*domain.Item{},
	}

	for d := monday; !d.After(sunday); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")

		daily, err := a.store.LoadDaily(date)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Infof("  ⏭️ 跳过: %s (日报不存在)", date)
			} else {
				log.Warnf("  ⚠️ 读取日报 %s 失败: %v，跳过", date, err)
			}
			continue
		}

		log.Infof("  ✅ 找到: %s", date)
		weekly.DailyFilesFound++
		weekly.ActualDates = append(weekly.ActualDates, date)

		for _, key := range domain.SourceKeys {
			weekly.SetSource(key, mergeItemsByURL(weekly.Source(key), daily.Source(key)))
		}
	}

	// 按时间顺序遍历后天然有序，排序只是兜底
	sort.Strings(weekly.ActualDates)

	log.Infof("📊 聚合完成: 找到日报 %d/7，条目 中文论坛 %d / 英文论坛 %d / PR开启 %d / PR合并 %d / Reddit %d",
		weekly.DailyFilesFound,
		len(weekly.ChineseForum), len(weekly.EnglishForum),
		len(weekly.GithubOpened), len(weekly.GithubMerged), len(weekly.Reddit))

	return weekly, nil
}

// WeeklyService 为聚合后的周报生成整体总结。
// 单条目的 AI 标注已在日报阶段完成，这里只消费评分。
type WeeklyService struct {
	overview *OverviewGenerator
	store    port.ReportStore
	model    string
	nowFunc  func() time.Time
}

// NewWeeklyService 创建周报处理服务
func NewWeeklyService(overview *OverviewGenerator, store port.ReportStore, model string) *WeeklyService {
	return &WeeklyService{
		overview: overview,
		store:    store,
		model:    model,
		nowFunc:  time.Now,
	}
}

// Process 为指定 ISO 周的周报生成总结和统计。
// 已有 ai 块且未指定 overwrite 时不做任何事。
func (s *WeeklyService) Process(ctx context.Context, isoWeek string, overwrite bool) error {
	report, err := s.store.LoadWeekly(isoWeek)
	if err != nil {
		return common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("读取周报 %s 失败", isoWeek), err)
	}

	if !overwrite && report.AI != nil {
		log.Infof("⏭️ 周报 %s 已有 AI 总结，使用 -overwrite-overview 可重新生成", isoWeek)
		return nil
	}

	// 只收集带评分的条目（评分来自日报阶段）
	var scored []*domain.Item
	for _, item := range report.AllItems() {
		if item.AIScore != nil {
			scored = append(scored, item)
		}
	}
	log.Infof("🧮 周报 %s 含已评分条目 %d 个", isoWeek, len(scored))

	generatedAt := s.nowFunc().UTC().Format(time.RFC3339)
	if len(scored) == 0 {
		report.AI = &domain.AIMeta{
			Overview:    "本周无已评分内容。",
			GeneratedAt: generatedAt,
			Model:       s.model,
		}
	} else {
		overviewText, genErr := s.overview.Generate(ctx, scored, ReportTypeWeekly)
		if genErr != nil {
			// 总结失败不让整次运行失败，占位文本保证输出文件完整
			log.Errorf("❌ 周报总结生成失败: %v", genErr)
			overviewText = "生成总结时发生错误。"
		}

		selected := 0
		for _, item := range scored {
			if item.Processed() {
				selected++
			}
		}
		highScore, avgScore, topTags := WeeklyStats(scored)

		report.AI = &domain.AIMeta{
			Overview:       overviewText,
			GeneratedAt:    generatedAt,
			Model:          s.model,
			SelectedCount:  selected,
			TotalItems:     len(scored),
			HighScoreItems: highScore,
			AverageScore:   avgScore,
			TopTags:        topTags,
		}
	}

	if err := s.store.SaveWeekly(report); err != nil {
		return common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("保存周报 %s 失败", isoWeek), err)
	}

	log.Infof("✅ 周报 %s AI 处理完成", isoWeek)
	return nil
}
