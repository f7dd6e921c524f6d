package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// ErrPoolClosed 标签页池已关闭
var ErrPoolClosed = errors.New("标签页池已关闭")

// Tab 池中的标签页
type Tab interface {
	Close() error
}

// PageHealthStatus 标签页健康状态
type PageHealthStatus struct {
	CleanFailureCount int       // 连续清理失败次数
	LastSuccessTime   time.Time // 最后一次成功归还时间
}

// PagePool 标签页池
// 限制同时打开的标签页数, 归还时清理状态后复用, 清理连续失败的标签页被销毁
type PagePool struct {
	create func() (Tab, error)
	clean  func(Tab) error

	slots chan struct{}
	idle  chan Tab

	mu     sync.Mutex
	health map[Tab]*PageHealthStatus
	closed bool
}

// NewPagePool 创建标签页池
// clean可以为nil, 表示归还时不清理
func NewPagePool(maxPages int, create func() (Tab, error), clean func(Tab) error) *PagePool {
	if maxPages < 1 {
		maxPages = 1
	}
	return &PagePool{
		create: create,
		clean:  clean,
		slots:  make(chan struct{}, maxPages),
		idle:   make(chan Tab, maxPages),
		health: make(map[Tab]*PageHealthStatus),
	}
}

// AcquirePage 获取标签页, 达到上限时阻塞直到有标签页归还或ctx结束
func (pp *PagePool) AcquirePage(ctx context.Context) (Tab, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pp.slots <- struct{}{}:
	}

	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		<-pp.slots
		return nil, ErrPoolClosed
	}
	pp.mu.Unlock()

	select {
	case tab := <-pp.idle:
		return tab, nil
	default:
	}

	tab, err := pp.create()
	if err != nil {
		<-pp.slots
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	pp.mu.Lock()
	pp.health[tab] = &PageHealthStatus{LastSuccessTime: time.Now()}
	size := len(pp.health)
	pp.mu.Unlock()

	utils.Debugf("创建新标签页, 当前标签页数: %d, 上限: %d", size, cap(pp.slots))
	return tab, nil
}

// ReleasePage 归还标签页
// 清理失败先重试一次, 连续两次归还都清理失败时销毁
func (pp *PagePool) ReleasePage(tab Tab) {
	if tab == nil {
		return
	}
	defer func() { <-pp.slots }()

	pp.mu.Lock()
	health, tracked := pp.health[tab]
	closed := pp.closed
	pp.mu.Unlock()

	if closed || !tracked {
		pp.destroyPage(tab)
		return
	}

	if pp.clean != nil {
		err := pp.clean(tab)
		if err != nil {
			err = pp.clean(tab)
		}

		pp.mu.Lock()
		if err != nil {
			health.CleanFailureCount++
		} else {
			health.CleanFailureCount = 0
			health.LastSuccessTime = time.Now()
		}
		failures := health.CleanFailureCount
		pp.mu.Unlock()

		if err != nil {
			utils.Logger.Warn().Err(err).Int("failures", failures).Msg("清理标签页状态失败")
			if failures >= 2 {
				utils.Warn("标签页清理连续失败, 销毁该标签页")
				pp.destroyPage(tab)
				return
			}
		}
	}

	select {
	case pp.idle <- tab:
	default:
		pp.destroyPage(tab)
	}
}

// destroyPage 关闭并移除标签页
func (pp *PagePool) destroyPage(tab Tab) {
	pp.mu.Lock()
	delete(pp.health, tab)
	size := len(pp.health)
	pp.mu.Unlock()

	if err := tab.Close(); err != nil {
		utils.Logger.Debug().Err(err).Msg("关闭标签页失败")
	}
	utils.Debugf("销毁标签页, 当前标签页数: %d", size)
}

// CurrentSize 当前打开的标签页数
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.health)
}

// MaxSize 标签页上限
func (pp *PagePool) MaxSize() int {
	return cap(pp.slots)
}

// Close 关闭全部标签页, 之后归还的标签页直接关闭
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	tabs := make([]Tab, 0, len(pp.health))
	for tab := range pp.health {
		tabs = append(tabs, tab)
	}
	pp.health = make(map[Tab]*PageHealthStatus)
	pp.mu.Unlock()

	var errs []error
	for _, tab := range tabs {
		if err := tab.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	utils.Debugf("标签页池已关闭, 关闭 %d 个标签页", len(tabs))
	return errors.Join(errs...)
}
