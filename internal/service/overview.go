package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"
	"obsidian-digest/internal/port"

	log "github.com/sirupsen/logrus"
)

// 日报总结提示词
const dailyOverviewPrompt = `
你是一个 Obsidian 社区日报的毒舌编辑。基于以下今日精选内容，写一段 100 字左右的**毒舌总结**（Overview）。
** 目的是为用户提供价值导向的社区新鲜事概览，帮助用户快速发现实用分享、节省时间、提升 Obsidian 使用体验。**
风格要求：口语化、生活化、带情绪感（最爱、上瘾、告别xx、终于可以xx），像老朋友吐槽一样串联今日亮点。

精选内容列表：
%s

请直接输出总结文本（不要JSON）。
`

// 周报总结提示词
const weeklyOverviewPrompt = `
你是一个 Obsidian 社区周报的资深编辑。基于以下本周精选内容，写一段 150-200 字的**周报总结**（Weekly Overview）。
** 目的是帮助用户了解本周社区的主要趋势、重要更新和值得关注的讨论。**
风格要求：
1. 专业而不失轻松，点出本周的关键主题和趋势
2. 突出对用户有长期价值的内容
3. 可以包含一些观察和洞见
4. 用简洁有力的语言串联本周亮点

本周精选内容列表：
%s

请直接输出总结文本（不要JSON）。
`

// 空输入时的占位总结，保证每次运行都产出合法文件
const (
	emptyDailyOverview  = "今日无事发生。"
	emptyWeeklyOverview = "本周无事发生。"
)

const defaultTopN = 10

// OverviewGenerator 根据已评分条目生成整体总结（Overview）。
// 总结调用走自己的低并发限流门，与条目评分互不抢槽位。
type OverviewGenerator struct {
	gen  port.TextGenerator
	gate *common.Gate

	topN            int
	maxRetries      int
	baseDelay       time.Duration
	overloadMarkers []string
}

// NewOverviewGenerator 创建总结生成器
func NewOverviewGenerator(gen port.TextGenerator, gate *common.Gate) *OverviewGenerator {
	return &OverviewGenerator{
		gen:             gen,
		gate:            gate,
		topN:            defaultTopN,
		maxRetries:      3,
		baseDelay:       5 * time.Second,
		overloadMarkers: common.DefaultOverloadMarkers,
	}
}

// SetTopN 设置进入总结的条目数
func (g *OverviewGenerator) SetTopN(n int) {
	if n > 0 {
		g.topN = n
	}
}

// SetRetry 调整重试参数
func (g *OverviewGenerator) SetRetry(maxRetries int, baseDelay time.Duration) {
	if maxRetries >= 0 {
		g.maxRetries = maxRetries
	}
	if baseDelay > 0 {
		g.baseDelay = baseDelay
	}
}

// TopItems 按评分降序取前 n 个条目。
// 必须是稳定排序：同分条目保持输入顺序，保证重跑时摘要可复现。
func TopItems(items []*domain.Item, n int) []*domain.Item {
	ranked := make([]*domain.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() > ranked[j].Score()
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// formatItemLines 把精选条目格式化为带名次上下文的单行列表
func formatItemLines(items []*domain.Item) string {
	lines := make([]string, 0, len(items))
	for i, item := range items {
		lines = append(lines, fmt.Sprintf("%d. [%d] %s: %s", i+1, item.Score(), item.Title, item.AISummary))
	}
	return strings.Join(lines, "\n")
}

// Generate 生成总结文本。
// 空输入直接返回占位文本，绝不发起空的总结请求。
func (g *OverviewGenerator) Generate(ctx context.Context, items []*domain.Item, reportType string) (string, error) {
	if len(items) == 0 {
		if reportType == ReportTypeWeekly {
			return emptyWeeklyOverview, nil
		}
		return emptyDailyOverview, nil
	}

	tmpl := dailyOverviewPrompt
	if reportType == ReportTypeWeekly {
		tmpl = weeklyOverviewPrompt
	}
	prompt := fmt.Sprintf(tmpl, formatItemLines(TopItems(items, g.topN)))

	var overview string
	err := common.CallWithGate(ctx, g.gate, func() error {
		var genErr error
		overview, genErr = g.gen.Generate(ctx, prompt)
		return genErr
	},
		common.WithMaxRetries(g.maxRetries),
		common.WithBaseDelay(g.baseDelay),
		common.WithOverloadMarkers(g.overloadMarkers),
	)
	if err != nil {
		log.Errorf("❌ 总结生成失败: %v", err)
		return "", err
	}

	return strings.TrimSpace(overview), nil
}

// WeeklyStats 统计周报条目的整体指标
func WeeklyStats(items []*domain.Item) (highScore int, averageScore float64, topTags []domain.TagCount) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	sum := 0
	tagCounts := map[string]int{}
	tagOrder := []string{} // 记录首次出现顺序，让同频标签的排序可复现
	for _, item := range items {
		score := item.Score()
		sum += score
		if score >= 8 {
			highScore++
		}
		for _, tag := range item.AITags {
			if _, seen := tagCounts[tag]; !seen {
				tagOrder = append(tagOrder, tag)
			}
			tagCounts[tag]++
		}
	}

	averageScore = math.Round(float64(sum)/float64(len(items))*100) / 100

	topTags = make([]domain.TagCount, 0, len(tagOrder))
	for _, tag := range tagOrder {
		topTags = append(topTags, domain.TagCount{Tag: tag, Count: tagCounts[tag]})
	}
	sort.SliceStable(topTags, func(i, j int) bool {
		return topTags[i].Count > topTags[j].Count
	})
	if len(topTags) > 5 {
		topTags = topTags[:5]
	}
	return highScore, averageScore, topTags
}
