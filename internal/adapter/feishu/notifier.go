package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"

	log "github.com/sirupsen/logrus"
)

// 卡片里最多列出的高分条目数
const maxCardItems = 5

type Notifier struct {
	webhookURL string
}

func NewNotifier(webhook string) *Notifier {
	if webhook == "" {
		log.Warn("⚠️ 警告: 飞书 Webhook 为空，推送功能将无法工作！")
	}
	return &Notifier{webhookURL: webhook}
}

// NotifyDaily 发送日报摘要卡片 (Schema 2.0)
func (n *Notifier) NotifyDaily(ctx context.Context, report *domain.DailyReport) error {
	if n.webhookURL == "" {
		return fmt.Errorf("Webhook URL 为空")
	}

	title := fmt.Sprintf("📰 Obsidian 社区日报 %s", report.Date)
	mdContent := buildDigestMarkdown(report)

	payload := map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "blue",
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements": []map[string]interface{}{
					{
						"tag":       "markdown",
						"content":   mdContent,
						"text_size": "normal",
					},
				},
			},
		},
	}

	body, _ := json.Marshal(payload)
	err := common.Do(ctx, func() error {
		resp, postErr := http.Post(n.webhookURL, "application/json", bytes.NewBuffer(body))
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			return fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
		}
		return nil
	},
		common.WithMaxRetries(3),
		common.WithBaseDelay(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}

	return nil
}

// buildDigestMarkdown 构造卡片正文：总结 + 按分数排序的前几条
func buildDigestMarkdown(report *domain.DailyReport) string {
	var sb strings.Builder

	if report.AI != nil && report.AI.Overview != "" {
		sb.WriteString("**🤖 今日总结:**\n")
		sb.WriteString(report.AI.Overview)
		sb.WriteString("\n\n")
	}

	items := report.AllItems()
	scored := make([]*domain.Item, 0, len(items))
	for _, item := range items {
		if item.AIScore != nil {
			scored = append(scored, item)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score() > scored[j].Score()
	})
	if len(scored) > maxCardItems {
		scored = scored[:maxCardItems]
	}

	if len(scored) > 0 {
		sb.WriteString("**🏆 今日高分:**\n")
		for _, item := range scored {
			sb.WriteString(fmt.Sprintf("- [%d] [%s](%s)\n", item.Score(), item.Title, item.URL))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("**📊 条目总数:** %d", len(items)))
	if report.AI != nil {
		sb.WriteString(fmt.Sprintf("  |  **已评分:** %d", report.AI.SelectedCount))
	}

	return sb.String()
}
