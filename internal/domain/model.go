package domain

// 数据源的固定 key，与日报/周报 JSON 的顶层字段一一对应
const (
	SourceChineseForum = "chinese_forum"
	SourceEnglishForum = "english_forum"
	SourceGithubOpened = "github_opened"
	SourceGithubMerged = "github_merged"
	SourceReddit       = "reddit"
)

// SourceKeys 收集条目时的遍历顺序（与原始数据管道保持一致）
var SourceKeys = []string{
	SourceChineseForum,
	SourceEnglishForum,
	SourceGithubMerged,
	SourceReddit,
	SourceGithubOpened,
}

// PR 状态的小型封闭枚举
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// StateRank 定义状态的优先级全序：merged 一旦出现就不可被降级。
// 合并冲突时，新条目的 rank >= 旧条目的 rank 才允许覆盖，
// 这样 merged 具有粘性，而 open/closed 之间按后写优先处理。
func StateRank(state string) int {
	if state == StateMerged {
		return 1
	}
	return 0
}

// Item 代表一条抓取到的社区内容（论坛帖、PR、Reddit 帖）
type Item struct {
	// 基础信息（来自抓取端）
	Source      string `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"` // 同一数据源内的去重主键
	Author      string `json:"author,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	MergedAt    string `json:"merged_at,omitempty"`
	Body        string `json:"body,omitempty"`
	ContentHTML string `json:"content_html,omitempty"`
	ContentText string `json:"content_text,omitempty"`
	State       string `json:"state,omitempty"` // 仅 PR 条目有意义

	// --- AI 标注字段（评分后回填） ---
	AISummary    string   `json:"ai_summary,omitempty"`
	AIPainPoint  string   `json:"ai_pain_point,omitempty"`
	AIHighlights []string `json:"ai_highlights,omitempty"`
	AIComment    string   `json:"ai_comment,omitempty"`
	AITags       []string `json:"ai_tags,omitempty"`
	AIScore      *int     `json:"ai_score,omitempty"` // 1-10，nil 表示未评分
}

// Processed 判断条目是否已完成 AI 分析。
// 判定标准是 ai_summary 非空，这与周报按 url 去重是两套独立的身份概念。
func (i *Item) Processed() bool {
	return i.AISummary != ""
}

// Score 返回评分，未评分按 0 处理
func (i *Item) Score() int {
	if i.AIScore == nil {
		return 0
	}
	return *i.AIScore
}

// RawContent 取正文，按 content_text -> body -> content_html 的优先级
func (i *Item) RawContent() string {
	if i.ContentText != "" {
		return i.ContentText
	}
	if i.Body != "" {
		return i.Body
	}
	return i.ContentHTML
}

// ApplyAnnotation 把 AI 返回的标注回填到条目上
func (i *Item) ApplyAnnotation(a *Annotation) {
	if a == nil {
		return
	}
	score := a.Score
	i.AISummary = a.Summary
	i.AIPainPoint = a.PainPoint
	i.AIHighlights = a.Highlights
	i.AIComment = a.Comment
	i.AITags = a.Tags
	i.AIScore = &score
}

// Annotation 接收 AI 返回的 JSON 标注
type Annotation struct {
	Summary    string   `json:"summary"`
	PainPoint  string   `json:"pain_point"`
	Highlights []string `json:"highlights"`
	Comment    string   `json:"comment"`
	Tags       []string `json:"tags"`
	Score      int      `json:"score"`
	Drop       bool     `json:"drop,omitempty"` // AI 明确认为条目无价值
}

// ScoringOutcome 一次评分调用的最终结果
type ScoringOutcome int

const (
	// OutcomeSuccess 评分成功，标注已回填，条目进入有效集合
	OutcomeSuccess ScoringOutcome = iota
	// OutcomeDropped AI 明确认为条目无价值，排除出有效集合
	OutcomeDropped
	// OutcomeFailed 重试耗尽或不可重试错误，排除出有效集合
	OutcomeFailed
)

func (o ScoringOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// TagCount 周报统计里的标签计数
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// AIMeta 报告级别的 AI 元信息块（日报/周报共用，周报多几个统计字段）
type AIMeta struct {
	Overview       string     `json:"overview"`
	GeneratedAt    string     `json:"generated_at"`
	Model          string     `json:"model"`
	ProcessedCount int        `json:"processed_count,omitempty"`
	SelectedCount  int        `json:"selected_count"`
	TotalItems     int        `json:"total_items,omitempty"`
	HighScoreItems int        `json:"high_score_items,omitempty"`
	AverageScore   float64    `json:"average_score,omitempty"`
	TopTags        []TagCount `json:"top_tags,omitempty"`
}

// DailyReport 一天的抓取结果，五个数据源各一个有序列表
type DailyReport struct {
	Date         string  `json:"date"`
	GeneratedAt  string  `json:"generated_at"`
	ChineseForum []*Item `json:"chinese_forum"`
	EnglishForum []*Item `json:"english_forum"`
	GithubOpened []*Item `json:"github_opened"`
	GithubMerged []*Item `json:"github_merged"`
	Reddit       []*Item `json:"reddit"`
	AI           *AIMeta `json:"ai,omitempty"`
}

// Source 按 key 取数据源列表
func (d *DailyReport) Source(key string) []*Item {
	switch key {
	case SourceChineseForum:
		return d.ChineseForum
	case SourceEnglishForum:
		return d.EnglishForum
	case SourceGithubOpened:
		return d.GithubOpened
	case SourceGithubMerged:
		return d.GithubMerged
	case SourceReddit:
		return d.Reddit
	}
	return nil
}

// AllItems 按固定顺序收集所有条目
func (d *DailyReport) AllItems() []*Item {
	var items []*Item
	for _, key := range SourceKeys {
		items = append(items, d.Source(key)...)
	}
	return items
}

// DateRange 周一到周日的日期范围
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyReport 一个 ISO 周的聚合结果。
// 每次聚合都从当时存在的日报全量重建，从不与旧的周报增量合并。
type WeeklyReport struct {
	ISOWeek         string    `json:"iso_week"` // 如 "2026-W02"
	DateRange       DateRange `json:"date_range"`
	ActualDates     []string  `json:"actual_dates"` // 实际找到日报的日期
	GeneratedAt     string    `json:"generated_at"`
	DailyFilesFound int       `json:"daily_files_found"` // 0-7
	ChineseForum    []*Item   `json:"chinese_forum"`
	EnglishForum    []*Item   `json:"english_forum"`
	GithubOpened    []*Item   `json:"github_opened"`
	GithubMerged    []*Item   `json:"github_merged"`
	Reddit          []*Item   `json:"reddit"`
	AI              *AIMeta   `json:"ai,omitempty"`
}

// Source 按 key 取数据源列表
func (w *WeeklyReport) Source(key string) []*Item {
	switch key {
	case SourceChineseForum:
		return w.ChineseForum
	case SourceEnglishForum:
		return w.EnglishForum
	case SourceGithubOpened:
		return w.GithubOpened
	case SourceGithubMerged:
		return w.GithubMerged
	case SourceReddit:
		return w.Reddit
	}
	return nil
}

// SetSource 按 key 写回数据源列表
func (w *WeeklyReport) SetSource(key string, items []*Item) {
	switch key {
	case SourceChineseForum:
		w.ChineseForum = items
	case SourceEnglishForum:
		w.EnglishForum = items
	case SourceGithubOpened:
		w.GithubOpened = items
	case SourceGithubMerged:
		w.GithubMerged = items
	case SourceReddit:
		w.Reddit = items
	}
}

// AllItems 按固定顺序收集所有条目
func (w *WeeklyReport) AllItems() []*Item {
	var items []*Item
	for _, key := range SourceKeys {
		items = append(items, w.Source(key)...)
	}
	return items
}
