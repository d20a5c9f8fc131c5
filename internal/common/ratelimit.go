package common

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Gate 对外部 API 调用做准入控制：
// 1. 限制同时在途的调用数量 (并发槽位)
// 2. 保证任意两次调用的启动时刻至少间隔 minInterval
//
// 间隔以"启动到启动"计算，与调用何时结束无关。
// 每个调用方必须成对使用 Acquire/Release，且错误路径上也要 Release。
type Gate struct {
	sem         chan struct{}
	minInterval time.Duration

	mu        sync.Mutex
	lastStart time.Time
	nowFunc   func() time.Time // 便于测试注入时钟
}

// NewGate 创建准入门。maxConcurrent 必须为正数，minInterval 可以为 0。
func NewGate(maxConcurrent int, minInterval time.Duration) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if minInterval < 0 {
		minInterval = 0
	}
	return &Gate{
		sem:         make(chan struct{}, maxConcurrent),
		minInterval: minInterval,
		nowFunc:     time.Now,
	}
}

// Acquire 阻塞直到同时满足：有空闲并发槽位，且距离上一次放行的启动时刻
// 已经过去 minInterval。放行时记录新的启动时刻。
// context 取消时返回 ctx.Err()，且不占用槽位。
func (g *Gate) Acquire(ctx context.Context) error {
	if ctx == nil {
		return errors.New("gate: context cannot be nil")
	}

	// 先抢并发槽位
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// 再在锁内做"读上次启动时刻 -> 等待 -> 写新启动时刻"的原子操作，
	// 避免两个 worker 基于同一个旧时间戳各自计算出重叠的等待窗口
	g.mu.Lock()
	now := g.nowFunc()
	if wait := g.minInterval - now.Sub(g.lastStart); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			g.mu.Unlock()
			<-g.sem
			return ctx.Err()
		}
	}
	g.lastStart = g.nowFunc()
	g.mu.Unlock()

	return nil
}

// Release 归还并发槽位。不影响间隔计时。
func (g *Gate) Release() {
	select {
	case <-g.sem:
	default:
		// Release 多于 Acquire 属于调用方 bug，这里不 panic，直接忽略
	}
}
