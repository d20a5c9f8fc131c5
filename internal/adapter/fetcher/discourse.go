package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"obsidian-digest/internal/domain"

	log "github.com/sirupsen/logrus"
)

// DiscourseFetcher 从 Discourse 论坛（Obsidian 官方中英文论坛）抓取指定时间窗口内的新帖
type DiscourseFetcher struct {
	name        string // 数据源展示名，写进 Item.Source
	baseURL     string
	categoryURL string // 分类的 .json 接口
	client      *http.Client
	detailDelay time.Duration // 详情请求之间的间隔，避免请求过快
}

// NewDiscourseFetcher 创建论坛抓取器
func NewDiscourseFetcher(name, baseURL, categoryURL string) *DiscourseFetcher {
	return &DiscourseFetcher{
		name:        name,
		baseURL:     baseURL,
		categoryURL: categoryURL,
		client:      newHTTPClient(),
		detailDelay: 500 * time.Millisecond,
	}
}

type discourseTopic struct {
	ID                 int    `json:"id"`
	Slug               string `json:"slug"`
	Title              string `json:"title"`
	CreatedAt          string `json:"created_at"`
	LastPosterUsername string `json:"last_poster_username"`
}

type discourseTopicList struct {
	TopicList struct {
		Topics []discourseTopic `json:"topics"`
	} `json:"topic_list"`
}

type discourseTopicDetail struct {
	PostStream struct {
		Posts []struct {
			Cooked string `json:"cooked"` // 渲染后的 HTML 正文
		} `json:"posts"`
	} `json:"post_stream"`
}

// FetchTopics 抓取时间窗口内创建的帖子，并补抓楼主正文
func (f *DiscourseFetcher) FetchTopics(ctx context.Context, start, end time.Time) ([]*domain.Item, error) {
	log.Infof("🔍 [%s] 检查新帖...", f.name)

	var list discourseTopicList
	if err := getJSON(ctx, f.client, f.categoryURL, nil, &list); err != nil {
		return nil, err
	}

	var items []*domain.Item
	for _, topic := range list.TopicList.Topics {
		createdAt, err := time.Parse(time.RFC3339, topic.CreatedAt)
		if err != nil || createdAt.Before(start) || createdAt.After(end) {
			continue
		}

		// 获取帖子详情以拿到楼主正文
		detailURL := fmt.Sprintf("%s/t/%s/%d.json", f.baseURL, topic.Slug, topic.ID)
		content := ""
		var detail discourseTopicDetail
		if err := getJSON(ctx, f.client, detailURL, nil, &detail); err != nil {
			log.Warnf("  ⚠️ [%s] 获取帖子详情失败: %v", f.name, err)
		} else if len(detail.PostStream.Posts) > 0 {
			content = detail.PostStream.Posts[0].Cooked
		}

		items = append(items, &domain.Item{
			Source:      f.name,
			Title:       topic.Title,
			URL:         fmt.Sprintf("%s/t/%s/%d", f.baseURL, topic.Slug, topic.ID),
			Author:      topic.LastPosterUsername,
			CreatedAt:   topic.CreatedAt,
			ContentHTML: content,
		})
		log.Infof("  ✅ 发现: %s", topic.Title)

		select {
		case <-ctx.Done():
			return items, ctx.Err()
		case <-time.After(f.detailDelay):
		}
	}

	return items, nil
}
