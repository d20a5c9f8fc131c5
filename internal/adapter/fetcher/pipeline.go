package fetcher

import (
	"context"
	"time"

	"obsidian-digest/internal/domain"

	log "github.com/sirupsen/logrus"
)

// SourceConfig 数据源端点配置
type SourceConfig struct {
	ChineseForumName     string
	ChineseForumBaseURL  string
	ChineseForumCategory string
	EnglishForumName     string
	EnglishForumBaseURL  string
	EnglishForumCategory string
	GithubRepo           string
	GithubToken          string
	RedditName           string
	RedditListURL        string
}

// DefaultSourceConfig 返回 Obsidian 社区的默认数据源
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		ChineseForumName:     "Obsidian Chinese Forum",
		ChineseForumBaseURL:  "https://forum-zh.obsidian.md",
		ChineseForumCategory: "https://forum-zh.obsidian.md/c/8.json", // 经验分享
		EnglishForumName:     "Obsidian English Forum",
		EnglishForumBaseURL:  "https://forum.obsidian.md",
		EnglishForumCategory: "https://forum.obsidian.md/c/share-showcase/9.json", // Share & Showcase
		GithubRepo:           "obsidianmd/obsidian-releases",
		RedditName:           "Reddit",
		RedditListURL:        "https://www.reddit.com/r/ObsidianMD/new.json?limit=50",
	}
}

// Pipeline 汇集全部数据源，产出一份完整的日报。
// 单个数据源失败只影响对应的列表，不中断整次采集。
type Pipeline struct {
	chineseForum *DiscourseFetcher
	englishForum *DiscourseFetcher
	github       *GithubFetcher
	reddit       *RedditFetcher
	nowFunc      func() time.Time
}

// NewPipeline 按配置组装采集管线
func NewPipeline(cfg SourceConfig) (*Pipeline, error) {
	gh, err := NewGithubFetcher(cfg.GithubToken, cfg.GithubRepo)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		chineseForum: NewDiscourseFetcher(cfg.ChineseForumName, cfg.ChineseForumBaseURL, cfg.ChineseForumCategory),
		englishForum: NewDiscourseFetcher(cfg.EnglishForumName, cfg.EnglishForumBaseURL, cfg.EnglishForumCategory),
		github:       gh,
		reddit:       NewRedditFetcher(cfg.RedditName, cfg.RedditListURL),
		nowFunc:      time.Now,
	}, nil
}

// CollectYesterday 采集昨天（UTC）全部数据源的内容
func (p *Pipeline) CollectYesterday(ctx context.Context) (*domain.DailyReport, error) {
	start, end, date := YesterdayRange(p.nowFunc())

	log.Infof("📅 目标日期 (UTC): %s", date)
	log.Infof("   范围: %s - %s", start.Format(time.RFC3339), end.Format(time.RFC3339))

	report := &domain.DailyReport{
		Date:        date,
		GeneratedAt: p.nowFunc().UTC().Format(time.RFC3339),
	}

	if items, err := p.chineseForum.FetchTopics(ctx, start, end); err != nil {
		log.Errorf("❌ [%s] 抓取失败: %v", p.chineseForum.name, err)
	} else {
		report.ChineseForum = items
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	if items, err := p.englishForum.FetchTopics(ctx, start, end); err != nil {
		log.Errorf("❌ [%s] 抓取失败: %v", p.englishForum.name, err)
	} else {
		report.EnglishForum = items
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	if opened, merged, err := p.github.FetchPRs(ctx, start, end); err != nil {
		log.Errorf("❌ [GitHub] 抓取失败: %v", err)
	} else {
		report.GithubOpened = opened
		report.GithubMerged = merged
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	if items, err := p.reddit.FetchPosts(ctx, start, end); err != nil {
		log.Errorf("❌ [%s] 抓取失败: %v", p.reddit.name, err)
	} else {
		report.Reddit = items
	}

	log.Info("📊 采集统计:")
	log.Infof("  - 中文论坛: %d", len(report.ChineseForum))
	log.Infof("  - 英文论坛: %d", len(report.EnglishForum))
	log.Infof("  - GitHub 开启 PR: %d", len(report.GithubOpened))
	log.Infof("  - GitHub 合并 PR: %d", len(report.GithubMerged))
	log.Infof("  - Reddit: %d", len(report.Reddit))

	return report, nil
}
