package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"
)

// JSONStore 实现了 port.ReportStore 接口。
// 日报存 data/daily/YYYY-MM-DD.json，周报存 data/weekly/YYYY-Www.json。
type JSONStore struct {
	dailyDir  string
	weeklyDir string
}

// NewJSONStore 创建文件存储，目录不存在时自动创建
func NewJSONStore(dailyDir, weeklyDir string) (*JSONStore, error) {
	for _, dir := range []string{dailyDir, weeklyDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, common.WrapError(common.ErrCodeStorage,
				fmt.Sprintf("创建目录 %s 失败", dir), err)
		}
	}
	return &JSONStore{dailyDir: dailyDir, weeklyDir: weeklyDir}, nil
}

// DailyPath 返回指定日期的日报文件路径
func (s *JSONStore) DailyPath(date string) string {
	return filepath.Join(s.dailyDir, date+".json")
}

// WeeklyPath 返回指定 ISO 周的周报文件路径
func (s *JSONStore) WeeklyPath(isoWeek string) string {
	return filepath.Join(s.weeklyDir, isoWeek+".json")
}

// LoadDaily 读取日报。文件不存在时返回的错误可用 errors.Is(err, fs.ErrNotExist) 识别。
func (s *JSONStore) LoadDaily(date string) (*domain.DailyReport, error) {
	raw, err := os.ReadFile(s.DailyPath(date))
	if err != nil {
		return nil, err
	}

	var report domain.DailyReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("解析日报 %s 失败", date), err)
	}
	return &report, nil
}

// SaveDaily 保存日报，紧凑格式
func (s *JSONStore) SaveDaily(report *domain.DailyReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return common.WrapError(common.ErrCodeStorage, "序列化日报失败", err)
	}
	return writeFileAtomic(s.DailyPath(report.Date), raw)
}

// LoadWeekly 读取周报
func (s *JSONStore) LoadWeekly(isoWeek string) (*domain.WeeklyReport, error) {
	raw, err := os.ReadFile(s.WeeklyPath(isoWeek))
	if err != nil {
		return nil, err
	}

	var report domain.WeeklyReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("解析周报 %s 失败", isoWeek), err)
	}
	return &report, nil
}

// SaveWeekly 保存周报，带缩进方便人工查看
func (s *JSONStore) SaveWeekly(report *domain.WeeklyReport) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return common.WrapError(common.ErrCodeStorage, "序列化周报失败", err)
	}
	return writeFileAtomic(s.WeeklyPath(report.ISOWeek), raw)
}

// writeFileAtomic 先写临时文件再改名，保证输出文件要么完整要么不存在。
// 进程中途被杀时不会留下半截 JSON。
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("写入临时文件 %s 失败", tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return common.WrapError(common.ErrCodeStorage,
			fmt.Sprintf("替换文件 %s 失败", path), err)
	}
	return nil
}
