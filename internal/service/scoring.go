package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"
	"obsidian-digest/internal/port"

	log "github.com/sirupsen/logrus"
)

// 报告类型，决定用哪套提示词模板
const (
	ReportTypeDaily  = "daily"
	ReportTypeWeekly = "weekly"
)

// 日报条目评估提示词
const dailyItemPrompt = `
你是一个 Obsidian 社区日报的毒舌而专业的编辑。请分析以下单条内容，提炼其对用户的实际价值。

## 待分析内容
- 来源：%s
- 标题：%s
- 链接：%s
- 正文/描述：
%s

## 写作要求（严格遵守）
1. **价值导向**：每条亮点必须回答"在什么场景下，能帮用户节省时间/减少挫败/获得愉悦"
2. **禁止空洞**：严禁使用"更高效"、"更强大"、"更便捷"等空洞形容词，禁止纯功能罗列
3. **亮点控制**：最多3条，按重要性递减，每条控制在25-35字
4. **提炼方法**：从功能中提取 "核心价值 → 典型场景 → 具体结果"，只写前两层

## 输出 JSON 格式（不要 Markdown 代码块）
{
  "summary": "一句话中文摘要（15-25字），直击用户痛点，避免空洞描述",
  "pain_point": "具体解决的问题场景（如：多设备同步时图片路径错乱、大文件夹加载卡顿）",
  "highlights": ["亮点1", "亮点2", "亮点3"],
  "comment": "一两句带情绪的毒舌点评，可吐槽也可赞美",
  "tags": ["1-2个标签。参考：新手友好 / 效率党必备 / 颜值党专属 / 数据极客 / 开发者向 / 学术党福音"],
  "score": 5
}
score 为 1-10 的整数，8分以上需有明确创新或解决高频痛点。

请直接输出 JSON。
`

// 周报条目评估提示词
const weeklyItemPrompt = `
你是一个 Obsidian 社区周报的资深编辑。请分析以下单条内容，提炼其在一周时间维度下的价值。

## 待分析内容
- 来源：%s
- 标题：%s
- 链接：%s
- 正文/描述：
%s

## 写作要求（严格遵守）
1. **长期价值**：关注内容的持续影响力和长期实用性
2. **趋势洞察**：识别社区讨论热点和技术趋势
3. **亮点控制**：最多3条，突出周度级别的重要性
4. **场景化描述**：用实际使用场景说明价值

## 输出 JSON 格式（不要 Markdown 代码块）
{
  "summary": "一句话中文摘要（15-30字），突出周度价值",
  "pain_point": "解决的核心问题或满足的需求",
  "highlights": ["亮点1", "亮点2", "亮点3"],
  "comment": "简短点评，可以包含趋势观察",
  "tags": ["1-2个标签"],
  "score": 5
}
score 为 1-10 的整数，周报视角下的重要性评分。

请直接输出 JSON。
`

const maxContentLen = 800

// extractJSON 从 AI 返回的原始文本中抠出合法的 JSON 部分。
// 即使返回被 Markdown 代码块包裹（"```json { ... } ```"），也能精准抠出中间的 { ... }
func extractJSON(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```json") {
		content = content[len("```json"):]
	}
	if strings.HasPrefix(content, "```") {
		content = content[len("```"):]
	}
	if strings.HasSuffix(content, "```") {
		content = content[:len(content)-len("```")]
	}
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return "", common.NewError(common.ErrCodeAIBadOutput,
			fmt.Sprintf("无法提取 JSON, AI 原文: %s", raw))
	}
	return content[start : end+1], nil
}

// parseAnnotation 解析 AI 返回的条目标注。
// 解析失败属于不可重试错误：模型输出坏了，重发同样的 prompt 没有意义。
func parseAnnotation(raw string) (*domain.Annotation, error) {
	clean, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var a domain.Annotation
	if err := json.Unmarshal([]byte(clean), &a); err != nil {
		return nil, common.WrapError(common.ErrCodeAIBadOutput,
			fmt.Sprintf("JSON 解析失败, 原文: %s", clean), err)
	}
	return &a, nil
}

// ItemScorer 驱动单条目的 AI 评分，以及整批条目的并发评分
type ItemScorer struct {
	gen  port.TextGenerator
	gate *common.Gate

	maxRetries      int
	baseDelay       time.Duration
	overloadMarkers []string
	workerCount     int // 工作协程数，只控制排队深度，真正并发度由 gate 限制
}

// NewItemScorer 创建条目评分器
func NewItemScorer(gen port.TextGenerator, gate *common.Gate) *ItemScorer {
	return &ItemScorer{
		gen:             gen,
		gate:            gate,
		maxRetries:      3,
		baseDelay:       5 * time.Second,
		overloadMarkers: common.DefaultOverloadMarkers,
		workerCount:     5,
	}
}

// SetWorkerCount 设置批处理的工作协程数
func (s *ItemScorer) SetWorkerCount(n int) {
	if n > 0 {
		s.workerCount = n
	}
}

// SetRetry 调整重试参数
func (s *ItemScorer) SetRetry(maxRetries int, baseDelay time.Duration) {
	if maxRetries >= 0 {
		s.maxRetries = maxRetries
	}
	if baseDelay > 0 {
		s.baseDelay = baseDelay
	}
}

// SetOverloadMarkers 替换限流错误的识别特征
func (s *ItemScorer) SetOverloadMarkers(markers []string) {
	if len(markers) > 0 {
		s.overloadMarkers = markers
	}
}

// evaluateItem 执行一次评分调用并回填标注。dropped 表示 AI 判定条目无价值。
func (s *ItemScorer) evaluateItem(ctx context.Context, item *domain.Item, reportType string) (dropped bool, err error) {
	tmpl := dailyItemPrompt
	if reportType == ReportTypeWeekly {
		tmpl = weeklyItemPrompt
	}
	prompt := fmt.Sprintf(tmpl,
		item.Source,
		item.Title,
		item.URL,
		truncateText(item.RawContent(), maxContentLen),
	)

	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return false, err
	}

	annotation, err := parseAnnotation(raw)
	if err != nil {
		return false, err
	}
	if annotation.Drop {
		return true, nil
	}

	item.ApplyAnnotation(annotation)
	return false, nil
}

// EvaluateWithRetry 在限流门下评分单个条目，只对过载错误退避重试
func (s *ItemScorer) EvaluateWithRetry(ctx context.Context, item *domain.Item, reportType string) (domain.ScoringOutcome, error) {
	dropped := false
	err := common.CallWithGate(ctx, s.gate, func() error {
		var evalErr error
		dropped, evalErr = s.evaluateItem(ctx, item, reportType)
		return evalErr
	},
		common.WithMaxRetries(s.maxRetries),
		common.WithBaseDelay(s.baseDelay),
		common.WithOverloadMarkers(s.overloadMarkers),
	)
	if err != nil {
		return domain.OutcomeFailed, err
	}
	if dropped {
		return domain.OutcomeDropped, nil
	}
	return domain.OutcomeSuccess, nil
}

// BatchStats 批量评分的计数器
type BatchStats struct {
	Total     int // 输入条目总数
	Skipped   int // 已处理过、直接放行的条目数
	Processed int // 本轮新评分成功的条目数
	Dropped   int // 被 AI 判定无价值的条目数
	Failed    int // 重试耗尽或不可重试错误的条目数
}

type batchResult struct {
	item    *domain.Item
	outcome domain.ScoringOutcome
	err     error
}

// BatchEvaluate 并发评分一批条目。
//
// overwrite 为 false 时，ai_summary 非空的条目直接进入结果集合，不再调用 AI；
// overwrite 为 true 时，所有条目都重新评分。
// 单个条目失败只影响它自己，不会中断其他条目的处理。
// 结果集合的成员是确定的，但顺序跟随并发完成顺序，下游需要自行重排。
func (s *ItemScorer) BatchEvaluate(ctx context.Context, items []*domain.Item, reportType string, overwrite bool) ([]*domain.Item, BatchStats) {
	stats := BatchStats{Total: len(items)}
	var valid []*domain.Item

	// 预先分流：已处理的条目直接放行
	var pending []*domain.Item
	for _, item := range items {
		if !overwrite && item.Processed() {
			log.Infof("⏭️ 跳过已处理条目: %s", truncateText(item.Title, 30))
			valid = append(valid, item)
			stats.Skipped++
		} else {
			pending = append(pending, item)
		}
	}

	log.Infof("🧠 待评分条目: %d，已处理: %d，并发 worker: %d", len(pending), stats.Skipped, s.workerCount)
	if len(pending) == 0 {
		return valid, stats
	}

	jobs := make(chan *domain.Item, len(pending))
	results := make(chan batchResult, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go s.scoreWorker(ctx, jobs, results, &wg, i+1, reportType)
	}

	for _, item := range pending {
		jobs <- item
	}
	close(jobs)

	wg.Wait()
	close(results)

	done := stats.Skipped
	for res := range results {
		done++
		switch res.outcome {
		case domain.OutcomeSuccess:
			valid = append(valid, res.item)
			stats.Processed++
			log.Infof("[%d/%d] ✅ 评分完成: %s (评分: %d)", done, stats.Total, truncateText(res.item.Title, 30), res.item.Score())
		case domain.OutcomeDropped:
			stats.Dropped++
			log.Infof("[%d/%d] 🗑️ 条目被丢弃: %s", done, stats.Total, truncateText(res.item.Title, 30))
		case domain.OutcomeFailed:
			stats.Failed++
			log.Warnf("[%d/%d] ❌ 评分失败: %s: %v", done, stats.Total, truncateText(res.item.Title, 30), res.err)
		}
	}

	log.Infof("✅ 批量评分完成，有效条目 %d 个 (新评分 %d，跳过 %d，丢弃 %d，失败 %d)",
		len(valid), stats.Processed, stats.Skipped, stats.Dropped, stats.Failed)
	return valid, stats
}

// scoreWorker 工作协程，逐个消费待评分条目
func (s *ItemScorer) scoreWorker(
	ctx context.Context,
	jobs <-chan *domain.Item,
	results chan<- batchResult,
	wg *sync.WaitGroup,
	workerID int,
	reportType string,
) {
	defer wg.Done()

	for item := range jobs {
		log.Debugf("   [Worker-%d] 正在评分 %s...", workerID, truncateText(item.Title, 30))
		outcome, err := s.EvaluateWithRetry(ctx, item, reportType)
		results <- batchResult{item: item, outcome: outcome, err: err}
	}
}
