package fetcher

import (
	"context"
	"net/http"
	"time"

	"obsidian-digest/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Reddit 极其讨厌数据中心 IP 使用通用浏览器 User-Agent，
// 必须用自定义 UA 才能避开 429/403
const redditUserAgent = "script:obsidian-daily-reporter:v1.0 (by /u/github-actions)"

// RedditFetcher 通过 .json 接口抓取 subreddit 的新帖
type RedditFetcher struct {
	name    string
	listURL string // 如 https://www.reddit.com/r/ObsidianMD/new.json?limit=50
	client  *http.Client
}

// NewRedditFetcher 创建 Reddit 抓取器
func NewRedditFetcher(name, listURL string) *RedditFetcher {
	return &RedditFetcher{
		name:    name,
		listURL: listURL,
		client:  newHTTPClient(),
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Author     string  `json:"author"`
				Permalink  string  `json:"permalink"`
				Selftext   string  `json:"selftext"`
				URL        string  `json:"url"`
				CreatedUTC float64 `json:"created_utc"` // Unix 时间戳
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchPosts 抓取时间窗口内创建的帖子
func (f *RedditFetcher) FetchPosts(ctx context.Context, start, end time.Time) ([]*domain.Item, error) {
	log.Infof("🔍 [%s] 检查新帖...", f.name)

	headers := map[string]string{"User-Agent": redditUserAgent}
	var listing redditListing
	if err := getJSON(ctx, f.client, f.listURL, headers, &listing); err != nil {
		return nil, err
	}

	var items []*domain.Item
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.CreatedUTC == 0 {
			continue
		}
		createdAt := time.Unix(int64(post.CreatedUTC), 0).UTC()
		if createdAt.Before(start) || createdAt.After(end) {
			// New 列表按时间倒序，但置顶帖会乱序，所以遍历完整页而不提前退出
			continue
		}

		// 链接贴没有正文，用目标 URL 作为内容摘要
		content := post.Selftext
		if content == "" {
			content = post.URL
		}

		items = append(items, &domain.Item{
			Source:      f.name,
			Title:       post.Title,
			URL:         "https://www.reddit.com" + post.Permalink,
			Author:      post.Author,
			CreatedAt:   createdAt.Format(time.RFC3339),
			ContentText: content,
		})
		log.Infof("  ✅ 发现: %s", post.Title)
	}

	return items, nil
}
