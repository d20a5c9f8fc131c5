package common

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryableFunc defines a function that can be retried.
// It should return an error if the operation failed and needs to be retried.
type RetryableFunc func() error

// DefaultOverloadMarkers 远端服务限流错误的识别特征。
// 限流错误只能靠错误信息的文本匹配来识别，特征集合保持可注入，
// 换服务商时改配置即可，不用动重试逻辑。
var DefaultOverloadMarkers = []string{
	"429",
	"Too Many Requests",
	"并发数过高",
	"RESOURCE_EXHAUSTED",
}

// Config holds the configuration for retry behavior.
type Config struct {
	maxRetries      int
	baseDelay       time.Duration
	maxDelay        time.Duration
	overloadMarkers []string
}

// Option is a functional option for configuring retry behavior.
type Option func(*Config)

// WithMaxRetries sets the maximum number of retry attempts.
// Default is 3 retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry.
// Default is 5 seconds.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithMaxDelay sets the maximum delay between retries.
// Default is 80 seconds.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithOverloadMarkers 覆盖限流错误的识别特征集合。
func WithOverloadMarkers(markers []string) Option {
	return func(c *Config) {
		if len(markers) > 0 {
			c.overloadMarkers = markers
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		maxRetries:      3,
		baseDelay:       5 * time.Second,
		maxDelay:        80 * time.Second,
		overloadMarkers: DefaultOverloadMarkers,
	}
}

// Do executes the provided function with exponential backoff retry logic.
// 任何错误都会触发重试，适合抓取这类"失败原因不可区分"的调用。
// It respects context cancellation and will stop retrying if the context is cancelled.
func Do(ctx context.Context, fn RetryableFunc, opts ...Option) error {
	if fn == nil {
		return errors.New("retry: function cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error

	if err := fn(); err == nil {
		return nil
	} else {
		lastErr = err
	}

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		if err := sleepWithContext(ctx, backoffDelay(attempt, cfg)); err != nil {
			return fmt.Errorf("retry aborted during backoff (attempt %d/%d): %w", attempt, cfg.maxRetries, err)
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.maxRetries+1, lastErr)
}

// CallWithGate 在限流门下执行一个调用单元，并只对"过载"类错误做指数退避重试。
//
// 约定：
//   - 门只在 fn 执行期间被持有，成功失败都会先 Release 再决定去留
//   - 退避 sleep 发生在门外，不占用其他调用方的并发槽位
//   - 错误信息命中 overloadMarkers 才重试，第 n 次重试前等待 baseDelay*2^(n-1)
//   - 其余错误视为不可重试，立即向上抛出
//   - 重试耗尽后返回带 ErrCodeRetryExhausted 的错误，便于上层区分统计
func CallWithGate(ctx context.Context, gate *Gate, fn RetryableFunc, opts ...Option) error {
	if fn == nil {
		return errors.New("retry: function cannot be nil")
	}
	if gate == nil {
		return errors.New("retry: gate cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	attempts := 0
	for {
		if err := gate.Acquire(ctx); err != nil {
			return err
		}
		err := fn()
		gate.Release()

		if err == nil {
			return nil
		}
		if !IsOverloaded(err, cfg.overloadMarkers) {
			// 非限流错误（解析失败、参数错误等）不值得重试
			return err
		}

		attempts++
		if attempts > cfg.maxRetries {
			return WrapError(ErrCodeRetryExhausted,
				fmt.Sprintf("重试 %d 次后仍被限流", cfg.maxRetries), err)
		}

		if serr := sleepWithContext(ctx, backoffDelay(attempts, cfg)); serr != nil {
			return fmt.Errorf("retry aborted during backoff (attempt %d/%d): %w", attempts, cfg.maxRetries, serr)
		}
	}
}

// IsOverloaded 判断错误是否属于远端限流/过载
func IsOverloaded(err error, markers []string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// backoffDelay 计算第 attempt 次重试前的等待时间: baseDelay * 2^(attempt-1)，上限 maxDelay
func backoffDelay(attempt int, cfg *Config) time.Duration {
	delay := float64(cfg.baseDelay) * math.Pow(2, float64(attempt-1))
	if time.Duration(delay) > cfg.maxDelay {
		return cfg.maxDelay
	}
	return time.Duration(delay)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
