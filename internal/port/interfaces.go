package port

import (
	"context"

	"obsidian-digest/internal/domain"
)

// TextGenerator (评分员): 对远端大模型的最小能力抽象。
// 输入一段 prompt，返回纯文本（可能是 JSON 也可能是自由文本），可能失败。
// 重试/限流逻辑全部在调用方，方便用确定性的假实现做测试。
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ReportStore (仓库管理员): 负责日报/周报 JSON 文件的读写。
// 读取不存在的文件返回包装了 fs.ErrNotExist 的错误，周报聚合据此跳过缺失日。
// 写入必须是整文件原子落盘，绝不按条目增量写。
type ReportStore interface {
	LoadDaily(date string) (*domain.DailyReport, error)
	SaveDaily(report *domain.DailyReport) error
	LoadWeekly(isoWeek string) (*domain.WeeklyReport, error)
	SaveWeekly(report *domain.WeeklyReport) error
}

// Notifier (信使): 把处理完的日报摘要推送出去（飞书卡片等）
type Notifier interface {
	NotifyDaily(ctx context.Context, report *domain.DailyReport) error
}
