package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"obsidian-digest/internal/common"
)

// 模拟浏览器身份，防止被防爬虫机制拦截
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// getJSON 通用函数：从指定 URL 获取 JSON 数据，带重试
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	err := common.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", defaultUserAgent)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	},
		common.WithMaxRetries(2),
		common.WithBaseDelay(time.Second),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeFetch,
			fmt.Sprintf("抓取 %s 失败", url), err)
	}
	return nil
}

// YesterdayRange 返回昨天 UTC 的起止时间和日期字符串
func YesterdayRange(now time.Time) (start, end time.Time, date string) {
	y := now.UTC().AddDate(0, 0, -1)
	start = time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
	end = start.Add(24*time.Hour - time.Nanosecond)
	return start, end, start.Format("2006-01-02")
}
