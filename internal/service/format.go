package service

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stripHTML 移除 HTML 标签，只留可见文本。
// 论坛抓下来的正文是 Discourse 渲染过的 HTML，直接喂给模型太浪费 token。
func stripHTML(text string) string {
	if text == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	return doc.Text()
}

// truncateText 清洗并截断正文，超长部分替换为省略号
func truncateText(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	clean := strings.TrimSpace(stripHTML(text))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	return string(runes[:maxLen]) + "..."
}
