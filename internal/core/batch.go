package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// RootJob 一个待遍历的入口
type RootJob struct {
	Crawler *Crawler
	Root    models.ListingNode
}

// WorkerLimiter 按系统资源限制并发数
type WorkerLimiter interface {
	MaxWorkers(requested int) int
}

// capacityWaiter 打开新入口前等待资源
type capacityWaiter interface {
	WaitForCapacity(ctx context.Context, maxWait time.Duration) error
}

// BatchCrawler 并发遍历多个入口
type BatchCrawler struct {
	concurrency  int
	limiter      WorkerLimiter
	showProgress bool
}

// BatchResult 单个入口的结果
type BatchResult struct {
	Site        string
	Root        models.ListingNode
	Success     bool
	Error       error
	Stats       models.TaskStats
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量遍历摘要
type BatchSummary struct {
	TotalRoots    int
	SuccessCount  int
	FailCount     int
	Stats         models.TaskStats
	TotalDuration float64
	StartTime     time.Time
	EndTime       time.Time
	Results       []BatchResult
	FailedNodes   []models.FailedNodeInfo
}

// NewBatchCrawler 创建批量遍历器, limiter可以为nil
func NewBatchCrawler(concurrency int, limiter WorkerLimiter, showProgress bool) *BatchCrawler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchCrawler{
		concurrency:  concurrency,
		limiter:      limiter,
		showProgress: showProgress,
	}
}

// Run 遍历全部入口
// 单个入口失败不影响其他入口; ctx取消时等待进行中的入口退出后返回ctx.Err()
func (bc *BatchCrawler) Run(ctx context.Context, jobs []RootJob) (*BatchSummary, error) {
	workers := bc.concurrency
	if bc.limiter != nil {
		workers = bc.limiter.MaxWorkers(workers)
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	utils.Infof("🚀 开始批量遍历: %d个入口, 并发 %d", len(jobs), workers)

	summary := &BatchSummary{
		TotalRoots: len(jobs),
		StartTime:  time.Now(),
		Results:    make([]BatchResult, len(jobs)),
	}

	var bar interface {
		Add(int) error
		Finish() error
	}
	if bc.showProgress && len(jobs) > 1 {
		bar = utils.NewProgressBar(len(jobs), "遍历入口")
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var barMu sync.Mutex

dispatch:
	for i, job := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		if waiter, ok := bc.limiter.(capacityWaiter); ok {
			if err := waiter.WaitForCapacity(ctx, 30*time.Second); err != nil {
				<-sem
				break dispatch
			}
		}

		wg.Add(1)
		go func(i int, job RootJob) {
			defer wg.Done()
			defer func() { <-sem }()

			summary.Results[i] = bc.crawlRoot(ctx, job)

			if bar != nil {
				barMu.Lock()
				_ = bar.Add(1)
				barMu.Unlock()
			}
		}(i, job)
	}

	wg.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	summary.EndTime = time.Now()
	summary.TotalDuration = summary.EndTime.Sub(summary.StartTime).Seconds()

	seen := make(map[*Crawler]bool)
	results := summary.Results[:0]
	for i, result := range summary.Results {
		if result.ProcessedAt.IsZero() {
			continue
		}
		results = append(results, result)
		summary.Stats.Add(result.Stats)
		if result.Success {
			summary.SuccessCount++
		} else {
			summary.FailCount++
		}

		c := jobs[i].Crawler
		if !seen[c] {
			seen[c] = true
			summary.FailedNodes = append(summary.FailedNodes, c.FailedNodes()...)
		}
	}
	summary.Results = results
	summary.Stats.Duration = summary.TotalDuration

	bc.printSummary(summary)

	return summary, ctx.Err()
}

// crawlRoot 遍历单个入口
func (bc *BatchCrawler) crawlRoot(ctx context.Context, job RootJob) BatchResult {
	result := BatchResult{
		Site:        job.Crawler.Site().Name,
		Root:        job.Root,
		ProcessedAt: time.Now(),
	}

	stats, err := job.Crawler.CrawlRoot(ctx, job.Root)
	result.Stats = stats
	result.Duration = time.Since(result.ProcessedAt).Seconds()

	if err != nil {
		result.Error = err
		if !errors.Is(err, context.Canceled) {
			utils.Errorf("❌ 入口遍历失败 [%s]: %v", job.Root.URL, err)
		}
		return result
	}

	result.Success = true
	return result
}

// BuildReport 生成运行报告
func (s *BatchSummary) BuildReport(runID string, sites []string, config models.CrawlConfig) *models.CrawlReport {
	report := &models.CrawlReport{
		RunID:       runID,
		Sites:       sites,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Duration:    s.TotalDuration,
		Stats:       s.Stats,
		Roots:       make([]models.RootResult, 0, len(s.Results)),
		FailedNodes: s.FailedNodes,
		Config:      config,
	}

	for _, r := range s.Results {
		root := models.RootResult{
			Site:     r.Site,
			URL:      r.Root.URL,
			Labels:   r.Root.LabelPath,
			Success:  r.Success,
			Stats:    r.Stats,
			Duration: r.Duration,
		}
		if r.Error != nil {
			root.Error = r.Error.Error()
		}
		report.Roots = append(report.Roots, root)
	}
	return report
}

// printSummary 打印批量遍历摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 遍历摘要")
	utils.Info("==================================================")
	utils.Infof("入口数: %d", summary.TotalRoots)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📂 访问节点: %d (展开 %d, 跳过 %d, 失败 %d)",
		summary.Stats.NodesVisited, summary.Stats.NodesExpanded,
		summary.Stats.NodesSkipped, summary.Stats.NodesFailed)
	utils.Infof("📄 翻页: %d (空页 %d)", summary.Stats.PagesVisited, summary.Stats.EmptyPages)
	utils.Infof("📦 输出记录: %d (拒绝 %d, 写入失败 %d)",
		summary.Stats.RecordsEmitted, summary.Stats.RecordsRejected, summary.Stats.SinkFailures)
	if summary.Stats.DegradedEvents > 0 {
		utils.Warnf("⚠️  退化遍历: %d", summary.Stats.DegradedEvents)
	}
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的入口:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.Root.URL, result.Error)
			}
		}
	}
}
