package service

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"

	"github.com/stretchr/testify/assert"
)

// fakeStore 内存版 ReportStore，缺失文件返回 fs.ErrNotExist
type fakeStore struct {
	dailies       map[string]*domain.DailyReport
	weeklies      map[string]*domain.WeeklyReport
	dailyErrs     map[string]error
	savedDailies  []*domain.DailyReport
	savedWeeklies []*domain.WeeklyReport
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dailies:   map[string]*domain.DailyReport{},
		weeklies:  map[string]*domain.WeeklyReport{},
		dailyErrs: map[string]error{},
	}
}

func (s *fakeStore) LoadDaily(date string) (*domain.DailyReport, error) {
	if err, ok := s.dailyErrs[date]; ok {
		return nil, err
	}
	report, ok := s.dailies[date]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: date, Err: fs.ErrNotExist}
	}
	return report, nil
}

func (s *fakeStore) SaveDaily(report *domain.DailyReport) error {
	s.dailies[report.Date] = report
	s.savedDailies = append(s.savedDailies, report)
	return nil
}

func (s *fakeStore) LoadWeekly(isoWeek string) (*domain.WeeklyReport, error) {
	report, ok := s.weeklies[isoWeek]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: isoWeek, Err: fs.ErrNotExist}
	}
	return report, nil
}

func (s *fakeStore) SaveWeekly(report *domain.WeeklyReport) error {
	s.weeklies[report.ISOWeek] = report
	s.savedWeeklies = append(s.savedWeeklies, report)
	return nil
}

func TestFormatISOWeek(t *testing.T) {
	assert.Equal(t, "2026-W02", FormatISOWeek(2026, 2))
	assert.Equal(t, "2025-W53", FormatISOWeek(2025, 53))
}

func TestParseISOWeek(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		year      int
		week      int
		expectErr bool
	}{
		{"正常解析", "2026-W02", 2026, 2, false},
		{"两位数周", "2025-W52", 2025, 52, false},
		{"缺少 W 分隔符", "2026-02", 0, 0, true},
		{"周数为 0", "2026-W00", 0, 0, true},
		{"周数超过 53", "2026-W54", 0, 0, true},
		{"非数字", "abcd-Wxy", 0, 0, true},
		{"空字符串", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, week, err := ParseISOWeek(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
				assert.True(t, common.HasCode(err, common.ErrCodeInvalidInput))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.year, year)
				assert.Equal(t, tt.week, week)
			}
		})
	}
}

func TestWeekDateRange(t *testing.T) {
	tests := []struct {
		name   string
		year   int
		week   int
		monday string
		sunday string
	}{
		{"2026 年第 2 周", 2026, 2, "2026-01-05", "2026-01-11"},
		{"2024 年第 1 周恰好从元旦开始", 2024, 1, "2024-01-01", "2024-01-07"},
		{"2020 年第 53 周跨年", 2020, 53, "2020-12-28", "2021-01-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monday, sunday := WeekDateRange(tt.year, tt.week)
			assert.Equal(t, tt.monday, monday.Format("2006-01-02"))
			assert.Equal(t, tt.sunday, sunday.Format("2006-01-02"))
			assert.Equal(t, time.Monday, monday.Weekday())
			assert.Equal(t, time.Sunday, sunday.Weekday())
		})
	}
}

func TestISOWeekOf(t *testing.T) {
	assert.Equal(t, "2026-W02", ISOWeekOf(time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)))
	// 2026-01-01 是周四，仍属于 2026 年第 1 周
	assert.Equal(t, "2026-W01", ISOWeekOf(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLastISOWeek(t *testing.T) {
	now := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-W02", LastISOWeek(now))
}

func TestMergeItemsByURL_FirstSeenOrder(t *testing.T) {
	existing := []*domain.Item{
		{URL: "a", Title: "A-day1"},
		{URL: "b", Title: "B-day1"},
	}
	incoming := []*domain.Item{
		{URL: "c", Title: "C-day2"},
		{URL: "a", Title: "A-day2"},
	}

	merged := mergeItemsByURL(existing, incoming)

	assert.Len(t, merged, 3)
	// 输出顺序 = URL 首次出现顺序
	assert.Equal(t, "a", merged[0].URL)
	assert.Equal(t, "b", merged[1].URL)
	assert.Equal(t, "c", merged[2].URL)
	// 同 URL 后写优先
	assert.Equal(t, "A-day2", merged[0].Title)
}

func TestMergeItemsByURL_MergedIsSticky(t *testing.T) {
	day1 := []*domain.Item{{URL: "pr", State: domain.StateOpen, Title: "open 快照"}}
	day2 := []*domain.Item{{URL: "pr", State: domain.StateMerged, Title: "merged 快照"}}
	day3 := []*domain.Item{{URL: "pr", State: domain.StateClosed, Title: "closed 快照"}}

	merged := mergeItemsByURL(day1, day2)
	merged = mergeItemsByURL(merged, day3)

	assert.Len(t, merged, 1)
	// merged 状态一旦记录就不可被后来的 closed 快照降级
	assert.Equal(t, domain.StateMerged, merged[0].State)
	assert.Equal(t, "merged 快照", merged[0].Title)
}

func TestMergeItemsByURL_StatelessLastWriteWins(t *testing.T) {
	day1 := []*domain.Item{{URL: "post", Title: "旧标题"}}
	day2 := []*domain.Item{{URL: "post", Title: "新标题"}}

	merged := mergeItemsByURL(day1, day2)

	assert.Len(t, merged, 1)
	assert.Equal(t, "新标题", merged[0].Title)
}

func TestMergeItemsByURL_EmptyURLSkipped(t *testing.T) {
	merged := mergeItemsByURL(
		[]*domain.Item{{URL: "", Title: "无链接"}},
		[]*domain.Item{{URL: "a", Title: "有链接"}},
	)

	assert.Len(t, merged, 1)
	assert.Equal(t, "a", merged[0].URL)
}

func TestAggregator_Aggregate(t *testing.T) {
	store := newFakeStore()
	// 2026-W02 = 01-05 ~ 01-11，只放 3 份日报
	store.dailies["2026-01-05"] = &domain.DailyReport{
		Date:         "2026-01-05",
		GithubOpened: []*domain.Item{{URL: "pr1", State: domain.StateOpen, Title: "day1"}},
		ChineseForum: []*domain.Item{{URL: "cn1", Title: "论坛贴"}},
	}
	store.dailies["2026-01-07"] = &domain.DailyReport{
		Date:         "2026-01-07",
		GithubOpened: []*domain.Item{{URL: "pr1", State: domain.StateMerged, Title: "day3"}},
	}
	store.dailies["2026-01-09"] = &domain.DailyReport{
		Date:         "2026-01-09",
		GithubOpened: []*domain.Item{{URL: "pr1", State: domain.StateClosed, Title: "day5"}},
		Reddit:       []*domain.Item{{URL: "r1", Title: "Reddit 贴"}},
	}

	aggregator := NewAggregator(store)
	weekly, err := aggregator.Aggregate(2026, 2)

	assert.NoError(t, err)
	assert.Equal(t, "2026-W02", weekly.ISOWeek)
	assert.Equal(t, "2026-01-05", weekly.DateRange.Start)
	assert.Equal(t, "2026-01-11", weekly.DateRange.End)
	assert.Equal(t, 3, weekly.DailyFilesFound)
	assert.Equal(t, []string{"2026-01-05", "2026-01-07", "2026-01-09"}, weekly.ActualDates)

	// PR 在周中被 merged，周五的 closed 快照不能降级它
	assert.Len(t, weekly.GithubOpened, 1)
	assert.Equal(t, domain.StateMerged, weekly.GithubOpened[0].State)

	assert.Len(t, weekly.ChineseForum, 1)
	assert.Len(t, weekly.Reddit, 1)
	assert.Empty(t, weekly.EnglishForum)
}

func TestAggregator_UnreadableDaySkipped(t *testing.T) {
	store := newFakeStore()
	store.dailies["2026-01-05"] = &domain.DailyReport{
		Date:   "2026-01-05",
		Reddit: []*domain.Item{{URL: "r1"}},
	}
	store.dailyErrs["2026-01-06"] = errors.New("corrupt json")

	aggregator := NewAggregator(store)
	weekly, err := aggregator.Aggregate(2026, 2)

	// 单日损坏只跳过该日，不让整周失败
	assert.NoError(t, err)
	assert.Equal(t, 1, weekly.DailyFilesFound)
	assert.Equal(t, []string{"2026-01-05"}, weekly.ActualDates)
}

func TestAggregator_EmptyWeek(t *testing.T) {
	store := newFakeStore()
	aggregator := NewAggregator(store)

	weekly, err := aggregator.Aggregate(2026, 2)

	assert.NoError(t, err)
	assert.Equal(t, 0, weekly.DailyFilesFound)
	assert.Empty(t, weekly.ActualDates)
	// 空周也必须是结构完整的文件
	assert.NotNil(t, weekly.ChineseForum)
	assert.NotNil(t, weekly.GithubMerged)
}

func TestWeeklyService_SkipWhenAIExists(t *testing.T) {
	store := newFakeStore()
	store.weeklies["2026-W02"] = &domain.WeeklyReport{
		ISOWeek: "2026-W02",
		AI:      &domain.AIMeta{Overview: "已有总结"},
	}

	gen := &fakeGenerator{}
	svc := NewWeeklyService(newTestOverview(gen), store, "test-model")

	err := svc.Process(context.Background(), "2026-W02", false)

	assert.NoError(t, err)
	assert.Equal(t, 0, gen.callCount())
	assert.Empty(t, store.savedWeeklies)
}

func TestWeeklyService_NoScoredItemsUsesSentinel(t *testing.T) {
	store := newFakeStore()
	store.weeklies["2026-W02"] = &domain.WeeklyReport{
		ISOWeek: "2026-W02",
		Reddit:  []*domain.Item{{URL: "r1", Title: "未评分条目"}},
	}

	gen := &fakeGenerator{}
	svc := NewWeeklyService(newTestOverview(gen), store, "test-model")

	err := svc.Process(context.Background(), "2026-W02", false)

	assert.NoError(t, err)
	assert.Equal(t, 0, gen.callCount())
	assert.Len(t, store.savedWeeklies, 1)
	assert.Equal(t, "本周无已评分内容。", store.savedWeeklies[0].AI.Overview)
}

func TestWeeklyService_GeneratesOverviewAndStats(t *testing.T) {
	store := newFakeStore()
	high := scoredItem("高分条目", 9)
	high.AITags = []string{"效率党必备"}
	low := scoredItem("低分条目", 4)
	store.weeklies["2026-W02"] = &domain.WeeklyReport{
		ISOWeek:      "2026-W02",
		ChineseForum: []*domain.Item{high},
		Reddit:       []*domain.Item{low},
	}

	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "本周主题是插件生态。", nil
	}}
	svc := NewWeeklyService(newTestOverview(gen), store, "test-model")

	err := svc.Process(context.Background(), "2026-W02", false)

	assert.NoError(t, err)
	assert.Len(t, store.savedWeeklies, 1)
	ai := store.savedWeeklies[0].AI
	assert.Equal(t, "本周主题是插件生态。", ai.Overview)
	assert.Equal(t, "test-model", ai.Model)
	assert.Equal(t, 2, ai.TotalItems)
	assert.Equal(t, 1, ai.HighScoreItems)
	assert.Equal(t, 6.5, ai.AverageScore)
	assert.Equal(t, []domain.TagCount{{Tag: "效率党必备", Count: 1}}, ai.TopTags)
}

func TestWeeklyService_GenerationFailureWritesPlaceholder(t *testing.T) {
	store := newFakeStore()
	store.weeklies["2026-W02"] = &domain.WeeklyReport{
		ISOWeek:      "2026-W02",
		ChineseForum: []*domain.Item{scoredItem("条目", 5)},
	}

	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "", errors.New("network unreachable")
	}}
	svc := NewWeeklyService(newTestOverview(gen), store, "test-model")

	err := svc.Process(context.Background(), "2026-W02", false)

	// 总结失败不让整次运行失败，文件仍然完整写出
	assert.NoError(t, err)
	assert.Len(t, store.savedWeeklies, 1)
	assert.Equal(t, "生成总结时发生错误。", store.savedWeeklies[0].AI.Overview)
}

func TestWeeklyService_MissingWeeklyFile(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{}
	svc := NewWeeklyService(newTestOverview(gen), store, "test-model")

	err := svc.Process(context.Background(), "2026-W02", false)

	assert.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeStorage))
}
