package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RecoveryAshes/catalogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/observability"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// RobotsChecker robots.txt检查
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// CrawlerOptions 遍历器的可选依赖
type CrawlerOptions struct {
	RunID      string
	Visited    *VisitedSet     // 多个遍历器共享时传入
	Checkpoint CheckpointStore // nil表示不做断点续爬
	Robots     RobotsChecker   // nil表示不检查robots.txt
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// Crawler 单个站点的类目树遍历器
// 同一个入口内顺序遍历, 不同入口可以并发调用CrawlRoot
type Crawler struct {
	site    models.SiteAdapter
	config  models.CrawlConfig
	fetcher models.Fetcher
	sink    models.Sink

	planner    *Planner
	paginator  *Paginator
	normalizer *Normalizer
	visited    *VisitedSet

	checkpoint CheckpointStore
	robots     RobotsChecker
	metrics    *observability.Metrics
	runID      string
	log        zerolog.Logger

	mu     sync.Mutex
	stats  models.TaskStats
	failed []models.FailedNodeInfo
}

// NewCrawler 创建站点遍历器
func NewCrawler(site models.SiteAdapter, config models.CrawlConfig, fetcher models.Fetcher, sink models.Sink, opts CrawlerOptions) *Crawler {
	if opts.RunID == "" {
		opts.RunID = models.NewRunID()
	}
	if opts.Visited == nil {
		opts.Visited = NewVisitedSet()
	}

	return &Crawler{
		site:       site,
		config:     config,
		fetcher:    fetcher,
		sink:       sink,
		planner:    NewPlanner(site, config, opts.Visited),
		paginator:  NewPaginator(site, config),
		normalizer: NewNormalizer(site, opts.RunID, opts.Now),
		visited:    opts.Visited,
		checkpoint: opts.Checkpoint,
		robots:     opts.Robots,
		metrics:    opts.Metrics,
		runID:      opts.RunID,
		log:        utils.WithRun(site.Name, opts.RunID),
	}
}

// Site 站点适配器
func (c *Crawler) Site() models.SiteAdapter {
	return c.site
}

// CrawlRoot 深度优先遍历一个入口
// 单个节点的失败只影响该分支; 只有ctx取消会中止遍历
func (c *Crawler) CrawlRoot(ctx context.Context, root models.ListingNode) (models.TaskStats, error) {
	var stats models.TaskStats
	start := time.Now()

	defer func() {
		stats.Duration = time.Since(start).Seconds()
		c.mu.Lock()
		c.stats.Add(stats)
		c.mu.Unlock()
	}()

	frontier, err := NewFrontier(root, c.visited)
	if err != nil {
		return stats, err
	}

	c.log.Info().
		Str("url", root.URL).
		Str("path", root.PathString()).
		Msg("🚀 开始遍历入口")

	first := true
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		node, ok := frontier.Pop()
		if !ok {
			break
		}
		if !c.visited.Claim(node.URL) {
			continue
		}

		if skip := c.shouldSkip(ctx, node); skip {
			stats.NodesSkipped++
			continue
		}

		if !first && c.config.Delay > 0 && !crawlers.Sleep(ctx, c.config.Delay) {
			return stats, ctx.Err()
		}
		first = false

		stats.NodesVisited++
		c.metrics.NodeVisited(c.site.Name)

		children, err := c.visitWithRetry(ctx, node, &stats)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.NodesFailed++
			c.metrics.NodeFailed(c.site.Name)
			c.recordFailure(node, err, c.config.MaxRetries)
			if c.checkpoint != nil {
				if cerr := c.checkpoint.MarkFailed(ctx, c.site.Name, node.URL); cerr != nil {
					c.log.Warn().Err(cerr).Str("url", node.URL).Msg("写入检查点失败")
				}
			}
			c.log.Error().Err(err).Str("url", node.URL).Msg("❌ 节点失败, 跳过该分支")
			continue
		}

		frontier.Push(children)
	}

	c.log.Info().
		Str("url", root.URL).
		Int("nodes", stats.NodesVisited).
		Int("records", stats.RecordsEmitted).
		Int("rejected", stats.RecordsRejected).
		Msg("✅ 入口遍历完成")

	return stats, nil
}

// shouldSkip 断点续爬或robots.txt跳过
func (c *Crawler) shouldSkip(ctx context.Context, node models.ListingNode) bool {
	if c.checkpoint != nil && c.config.Resume {
		done, err := c.checkpoint.IsDone(ctx, c.site.Name, node.URL)
		if err != nil {
			c.log.Warn().Err(err).Str("url", node.URL).Msg("读取检查点失败")
		} else if done {
			c.log.Debug().Str("url", node.URL).Msg("检查点中已完成, 跳过")
			return true
		}
	}

	if c.robots != nil {
		allowed, err := c.robots.Allowed(ctx, node.URL)
		if err == nil && !allowed {
			c.log.Warn().Err(models.ErrRobotsDisallowed).Str("url", node.URL).Msg("跳过节点")
			return true
		}
	}
	return false
}

// visitWithRetry 带退避的节点重试
// 只有在该节点还没有输出任何记录时才重试, 避免重复写入
func (c *Crawler) visitWithRetry(ctx context.Context, node models.ListingNode, stats *models.TaskStats) ([]models.ListingNode, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff * time.Duration(1<<(attempt-1))
			c.log.Warn().
				Err(lastErr).
				Str("url", node.URL).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("🔄 重试节点")
			if !crawlers.Sleep(ctx, backoff) {
				return nil, ctx.Err()
			}
			stats.Retries++
		}

		navTimeout := c.config.NavigationTimeout * time.Duration(1+attempt)
		children, emitted, err := c.visit(ctx, node, navTimeout, stats)
		if err == nil {
			return children, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if emitted {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrMaxRetriesReached, lastErr)
}

// visit 处理一个节点: 导航, 规划, 抽取或展开
// emitted表示本次访问是否已经输出过记录
func (c *Crawler) visit(ctx context.Context, node models.ListingNode, navTimeout time.Duration, stats *models.TaskStats) (children []models.ListingNode, emitted bool, err error) {
	start := time.Now()

	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	page, err := c.fetcher.Navigate(navCtx, node.URL)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrFetchTimeout) {
			err = fmt.Errorf("%w: %v", models.ErrFetchTimeout, err)
		}
		return nil, false, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			c.log.Debug().Err(cerr).Str("url", node.URL).Msg("关闭页面失败")
		}
	}()

	action, err := c.planner.Plan(ctx, node, page)
	if err != nil {
		return nil, false, err
	}
	counted := node.WithCount(action.Count)

	if action.Kind == models.ActionExpand {
		stats.NodesExpanded++
		c.metrics.ObserveNode(c.site.Name, action.Kind.String(), time.Since(start))
		c.log.Info().
			Str("url", node.URL).
			Str("path", node.PathString()).
			Str("count", action.Count.String()).
			Int("children", len(action.Children)).
			Msg("📂 展开子类目")
		return action.Children, false, nil
	}

	if action.Degraded {
		stats.DegradedEvents++
		c.metrics.Degraded(c.site.Name)
	}

	c.log.Info().
		Str("url", node.URL).
		Str("path", node.PathString()).
		Str("count", action.Count.String()).
		Msg("📄 抽取列表")

	pstats, err := c.paginator.Paginate(ctx, page, func(pageNum int, items []models.RawProductFields) {
		for _, raw := range items {
			if c.emit(ctx, raw, counted, stats) {
				emitted = true
			}
		}
	})

	stats.PagesVisited += pstats.Pages
	stats.EmptyPages += pstats.EmptyPages
	stats.PageFailures += pstats.Failures
	c.metrics.PagesDone(c.site.Name, pstats.Pages)
	c.metrics.ObserveNode(c.site.Name, action.Kind.String(), time.Since(start))

	if err != nil {
		return nil, emitted, err
	}

	if pstats.Items == 0 {
		c.log.Warn().Err(models.ErrExtractionEmpty).Str("url", node.URL).Msg("列表没有商品")
	}

	c.log.Info().
		Str("url", node.URL).
		Int("pages", pstats.Pages).
		Int("items", pstats.Items).
		Str("stop", pstats.StopReason).
		Msg("列表完成")

	if c.checkpoint != nil {
		if err := c.checkpoint.MarkDone(ctx, c.site.Name, node.URL); err != nil {
			c.log.Warn().Err(err).Str("url", node.URL).Msg("写入检查点失败")
		}
	}

	return nil, emitted, nil
}

// emit 归一化并写入一条记录, 返回记录是否已交给写入端
func (c *Crawler) emit(ctx context.Context, raw models.RawProductFields, node models.ListingNode, stats *models.TaskStats) bool {
	record, err := c.normalizer.Normalize(raw, node)
	if err != nil {
		stats.RecordsRejected++
		var rej *models.Rejection
		reason := "unknown"
		if errors.As(err, &rej) {
			reason = string(rej.Reason)
		}
		c.metrics.RecordRejected(c.site.Name, reason)
		c.log.Debug().Err(err).Str("url", node.URL).Msg("记录被拒绝")
		return false
	}

	if err := c.sink.Persist(ctx, record); err != nil {
		stats.SinkFailures++
		c.metrics.SinkFailed(c.site.Name)
		c.log.Error().
			Err(fmt.Errorf("%w: %v", models.ErrSinkFailure, err)).
			Str("name", record.Name).
			Msg("写入记录失败")
		return true
	}

	stats.RecordsEmitted++
	c.metrics.RecordEmitted(c.site.Name)
	return true
}

// recordFailure 记录失败节点, 用于报告
func (c *Crawler) recordFailure(node models.ListingNode, err error, retries int) {
	errType := "unknown"
	switch {
	case errors.Is(err, models.ErrFetchTimeout):
		errType = "fetch_timeout"
	case errors.Is(err, models.ErrBrowserCrashed):
		errType = "browser_crashed"
	case errors.Is(err, models.ErrMaxRetriesReached):
		errType = "max_retries"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, models.FailedNodeInfo{
		URL:       node.URL,
		ErrorType: errType,
		ErrorMsg:  err.Error(),
		Retries:   retries,
	})
}

// GetStats 获取累计统计
func (c *Crawler) GetStats() models.TaskStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// FailedNodes 失败节点列表
func (c *Crawler) FailedNodes() []models.FailedNodeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.FailedNodeInfo(nil), c.failed...)
}
