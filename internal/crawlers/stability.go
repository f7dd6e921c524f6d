package crawlers

import (
	"context"
	"time"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// StabilityOptions 页面稳定性检测参数
type StabilityOptions struct {
	Container    string        // 滚动容器选择器, 为空时使用document.body
	PollInterval time.Duration // 轮询间隔
	StableReads  int           // 连续相同读数次数
	MaxPolls     int           // 最大轮询次数
}

// WaitForStable 轮询容器高度, 连续StableReads次相同视为稳定
// 达到MaxPolls或ctx结束返回false
func WaitForStable(ctx context.Context, page models.Page, opts StabilityOptions) bool {
	prev, run := -1, 0

	for i := 0; i < opts.MaxPolls; i++ {
		h, err := page.Height(ctx, opts.Container)
		if err == nil {
			if h == prev {
				run++
			} else {
				prev, run = h, 1
			}
			if run >= opts.StableReads {
				return true
			}
		} else {
			prev, run = -1, 0
		}

		if !Sleep(ctx, opts.PollInterval) {
			return false
		}
	}
	return false
}

// ScrollToBottom 滚动到当前最大高度
func ScrollToBottom(ctx context.Context, page models.Page, container string) error {
	h, err := page.Height(ctx, container)
	if err != nil {
		return err
	}
	return page.ScrollTo(ctx, h)
}

// Sleep 可被取消的等待, ctx结束返回false
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
