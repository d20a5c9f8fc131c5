package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"obsidian-digest/internal/common"
	"obsidian-digest/internal/domain"

	"github.com/stretchr/testify/assert"
)

func newTestDailyService(gen *fakeGenerator, store *fakeStore) *DailyService {
	svc := NewDailyService(newTestScorer(gen), newTestOverview(gen), store, "test-model")
	svc.SetCooldown(0)
	return svc
}

func TestExpandDateInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  []string
		expectErr bool
	}{
		{
			name:     "单日",
			input:    "2026-01-05",
			expected: []string{"2026-01-05"},
		},
		{
			name:     "三天范围",
			input:    "2026-01-05:2026-01-07",
			expected: []string{"2026-01-05", "2026-01-06", "2026-01-07"},
		},
		{
			name:     "起止同日",
			input:    "2026-01-05:2026-01-05",
			expected: []string{"2026-01-05"},
		},
		{
			name:     "跨月范围",
			input:    "2026-01-30:2026-02-02",
			expected: []string{"2026-01-30", "2026-01-31", "2026-02-01", "2026-02-02"},
		},
		{"空输入", "", nil, true},
		{"格式错误", "2026/01/05", nil, true},
		{"范围起点格式错误", "bad:2026-01-07", nil, true},
		{"范围终点格式错误", "2026-01-05:bad", nil, true},
		{"起点晚于终点", "2026-01-07:2026-01-05", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandDateInput(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
				assert.True(t, common.HasCode(err, common.ErrCodeInvalidInput))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestDailyService_ProcessDate_FullRun(t *testing.T) {
	store := newFakeStore()
	store.dailies["2026-01-05"] = &domain.DailyReport{
		Date:         "2026-01-05",
		ChineseForum: []*domain.Item{{Title: "论坛贴", URL: "cn1", ContentText: "正文"}},
		Reddit:       []*domain.Item{{Title: "Reddit 贴", URL: "r1", ContentText: "正文"}},
	}

	gen := &fakeGenerator{respond: func(prompt string) (string, error) {
		// 总结调用返回自由文本，条目调用返回 JSON 标注
		if strings.Contains(prompt, "毒舌总结") {
			return "今天社区气氛不错。", nil
		}
		return annotationJSON(7), nil
	}}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessDate(context.Background(), "2026-01-05", ProcessOptions{})

	assert.NoError(t, err)
	assert.Len(t, store.savedDailies, 1)

	saved := store.savedDailies[0]
	assert.NotNil(t, saved.AI)
	assert.Equal(t, "今天社区气氛不错。", saved.AI.Overview)
	assert.Equal(t, "test-model", saved.AI.Model)
	assert.Equal(t, 2, saved.AI.ProcessedCount)
	assert.Equal(t, 2, saved.AI.SelectedCount)
	assert.True(t, saved.ChineseForum[0].Processed())
	assert.True(t, saved.Reddit[0].Processed())
}

func TestDailyService_ProcessDate_MissingFile(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessDate(context.Background(), "2026-01-05", ProcessOptions{})

	assert.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeStorage))
	assert.Equal(t, 0, gen.callCount())
}

func TestDailyService_ProcessDate_SkipAnalysis(t *testing.T) {
	store := newFakeStore()
	scored := scoredItem("已评分", 8)
	store.dailies["2026-01-05"] = &domain.DailyReport{
		Date:         "2026-01-05",
		ChineseForum: []*domain.Item{scored, {Title: "未评分", URL: "raw"}},
	}

	gen := &fakeGenerator{respond: func(string) (string, error) {
		return "只做总结。", nil
	}}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessDate(context.Background(), "2026-01-05",
		ProcessOptions{SkipAnalysis: true})

	assert.NoError(t, err)
	// 跳过分析时只发起一次总结调用，未评分条目不触发 AI
	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, 1, store.savedDailies[0].AI.SelectedCount)
	assert.Equal(t, 2, store.savedDailies[0].AI.ProcessedCount)
}

func TestDailyService_ProcessDate_OverviewPreserved(t *testing.T) {
	store := newFakeStore()
	existingAI := &domain.AIMeta{Overview: "旧总结", Model: "old-model"}
	store.dailies["2026-01-05"] = &domain.DailyReport{
		Date:         "2026-01-05",
		ChineseForum: []*domain.Item{scoredItem("已评分", 7)},
		AI:           existingAI,
	}

	gen := &fakeGenerator{}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessDate(context.Background(), "2026-01-05",
		ProcessOptions{SkipAnalysis: true})

	assert.NoError(t, err)
	// 已有总结且未指定覆盖，ai 块原样保留
	assert.Equal(t, "旧总结", store.savedDailies[0].AI.Overview)
	assert.Equal(t, 0, gen.callCount())
}

func TestDailyService_ProcessDate_NoValidItemsWritesSentinel(t *testing.T) {
	store := newFakeStore()
	store.dailies["2026-01-05"] = &domain.DailyReport{Date: "2026-01-05"}

	gen := &fakeGenerator{}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessDate(context.Background(), "2026-01-05", ProcessOptions{})

	assert.NoError(t, err)
	// 完成的运行永远写出结构完整的文件
	assert.Equal(t, "今日无事发生。", store.savedDailies[0].AI.Overview)
	assert.Equal(t, 0, gen.callCount())
}

func TestDailyService_ProcessRange_ContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	store.dailies["2026-01-06"] = &domain.DailyReport{Date: "2026-01-06"}
	// 2026-01-05 缺失，2026-01-06 存在

	gen := &fakeGenerator{}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessRange(context.Background(),
		[]string{"2026-01-05", "2026-01-06"}, ProcessOptions{})

	// 只要不是全军覆没就算成功
	assert.NoError(t, err)
	assert.Len(t, store.savedDailies, 1)
	assert.Equal(t, "2026-01-06", store.savedDailies[0].Date)
}

func TestDailyService_ProcessRange_AllFailed(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{}
	svc := newTestDailyService(gen, store)

	err := svc.ProcessRange(context.Background(),
		[]string{"2026-01-05", "2026-01-06"}, ProcessOptions{})

	assert.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeInternal))
}

func TestDailyService_ProcessRange_CooldownRespectsContext(t *testing.T) {
	store := newFakeStore()
	store.dailies["2026-01-05"] = &domain.DailyReport{Date: "2026-01-05"}
	store.dailies["2026-01-06"] = &domain.DailyReport{Date: "2026-01-06"}

	gen := &fakeGenerator{}
	svc := newTestDailyService(gen, store)
	svc.SetCooldown(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := svc.ProcessRange(ctx, []string{"2026-01-05", "2026-01-06"}, ProcessOptions{})

	// 冷却期间 context 到期应立即退出，而不是睡满冷却时间
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}
