package core

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/catalogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// 翻页停止原因
const (
	StopNoNext        = "no_next"        // 下一页按钮不存在或被禁用
	StopFailedAdvance = "failed_advance" // 点击后页码没有前进
	StopMaxPages      = "max_pages"      // 达到页数上限
	StopEmptyPages    = "empty_pages"    // 连续空页
	StopScrollDone    = "scroll_done"    // 滚动加载完成
)

// PageStats 单个列表的翻页统计
type PageStats struct {
	Pages          int    `json:"pages"`
	EmptyPages     int    `json:"empty_pages"`
	Failures       int    `json:"failures"`
	Items          int    `json:"items"`
	FailedAdvances int    `json:"failed_advances"`
	StopReason     string `json:"stop_reason"`
}

// EmitFunc 每页抽取结果的回调
type EmitFunc func(pageNum int, items []models.RawProductFields)

// Paginator 叶子列表翻页器
type Paginator struct {
	strategy  models.PaginationStrategy
	sel       models.Selectors
	extractor *CardExtractor
	stability crawlers.StabilityOptions
	config    models.CrawlConfig
}

// NewPaginator 创建翻页器
func NewPaginator(site models.SiteAdapter, config models.CrawlConfig) *Paginator {
	return &Paginator{
		strategy:  site.Strategy,
		sel:       site.Selectors,
		extractor: NewCardExtractor(site.Selectors),
		stability: crawlers.StabilityOptions{
			Container:    site.Selectors.Container,
			PollInterval: config.PollInterval,
			StableReads:  config.StableReads,
			MaxPolls:     config.MaxPolls,
		},
		config: config,
	}
}

// Paginate 遍历列表的全部页, 每页结果交给emit
// 抽取失败累计达到上限时返回错误, 其余情况只是停止翻页
func (p *Paginator) Paginate(ctx context.Context, page models.Page, emit EmitFunc) (PageStats, error) {
	if p.strategy == models.StrategyScroll {
		return p.paginateScroll(ctx, page, emit)
	}
	return p.paginateClick(ctx, page, emit)
}

func (p *Paginator) paginateClick(ctx context.Context, page models.Page, emit EmitFunc) (PageStats, error) {
	var stats PageStats
	emptyRun := 0

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if pageNum > p.config.MaxPages {
			utils.Warnf("⚠️  达到最大页数 %d, 停止翻页: %s", p.config.MaxPages, page.URL())
			stats.StopReason = StopMaxPages
			return stats, nil
		}

		stats.Pages++
		doc, items, err := p.loadAndExtract(ctx, page)
		if err != nil {
			stats.Failures++
			utils.Logger.Warn().Err(err).
				Str("url", page.URL()).
				Int("page", pageNum).
				Msg("页面抽取失败, 跳过")
			if stats.Failures >= p.config.MaxPageFailures {
				return stats, fmt.Errorf("列表 %s 抽取失败 %d 次: %w", page.URL(), stats.Failures, err)
			}
		} else if len(items) == 0 {
			stats.EmptyPages++
			emptyRun++
			utils.Debugf("第 %d 页没有商品: %s", pageNum, page.URL())
			if emptyRun >= p.config.MaxEmptyPages {
				utils.Warnf("⚠️  连续 %d 个空页, 放弃列表: %s", emptyRun, page.URL())
				stats.StopReason = StopEmptyPages
				return stats, nil
			}
		} else {
			emptyRun = 0
			stats.Items += len(items)
			emit(pageNum, items)
		}

		signature := ""
		if doc != nil {
			signature = p.extractor.CardSignature(doc)
		}

		reason, err := p.advance(ctx, page, signature)
		if err != nil {
			return stats, err
		}
		if reason != "" {
			if reason == StopFailedAdvance {
				stats.FailedAdvances++
				utils.Warnf("⚠️  翻页未生效, 停止在第 %d 页: %s", pageNum, page.URL())
			}
			stats.StopReason = reason
			return stats, nil
		}
	}
}

// loadAndExtract 加载当前页并抽取
// 页面上完全没有卡片元素时等待后重读一次
func (p *Paginator) loadAndExtract(ctx context.Context, page models.Page) (*goquery.Document, []models.RawProductFields, error) {
	var (
		doc   *goquery.Document
		items []models.RawProductFields
	)

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 && !crawlers.Sleep(ctx, p.config.SettleDelay) {
			return nil, nil, ctx.Err()
		}

		p.settle(ctx, page)

		rawHTML, err := page.HTML(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("读取页面HTML失败: %w", err)
		}
		doc, err = ParseDocument(rawHTML)
		if err != nil {
			return nil, nil, err
		}
		items = p.extractor.ExtractDocument(doc)

		if len(items) > 0 || p.extractor.CountCards(doc) > 0 {
			break
		}
	}

	return doc, items, nil
}

// settle 滚动到底部并等待高度稳定, 触发懒加载
func (p *Paginator) settle(ctx context.Context, page models.Page) {
	if err := crawlers.ScrollToBottom(ctx, page, p.stability.Container); err != nil {
		utils.Debugf("滚动失败 [%s]: %v", page.URL(), err)
	}
	if !crawlers.WaitForStable(ctx, page, p.stability) {
		utils.Debugf("页面高度未稳定, 继续抽取: %s", page.URL())
	}
}

// advance 点击下一页并确认翻页生效
// 返回非空的停止原因表示不再翻页
func (p *Paginator) advance(ctx context.Context, page models.Page, prevSignature string) (string, error) {
	before := models.UnknownCount
	if p.sel.ActivePage != "" {
		before = EstimateCount(ctx, page, p.sel.ActivePage, p.config.CountTimeout)
	}

	clicked, err := page.Click(ctx, p.sel.Next)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		utils.Debugf("点击下一页失败 [%s]: %v", page.URL(), err)
		return StopNoNext, nil
	}
	if !clicked {
		return StopNoNext, nil
	}

	if !crawlers.Sleep(ctx, p.config.SettleDelay) {
		return "", ctx.Err()
	}
	crawlers.WaitForStable(ctx, page, p.stability)

	if before.Known {
		after := EstimateCount(ctx, page, p.sel.ActivePage, p.config.CountTimeout)
		if !after.Known || after.Value != before.Value+1 {
			utils.Debugf("页码指示 %s -> %s", before, after)
			return StopFailedAdvance, nil
		}
		return "", nil
	}

	// 没有页码指示时比较首张卡片
	rawHTML, err := page.HTML(ctx)
	if err != nil {
		return StopFailedAdvance, nil
	}
	doc, err := ParseDocument(rawHTML)
	if err != nil {
		return StopFailedAdvance, nil
	}
	if sig := p.extractor.CardSignature(doc); sig != "" && sig == prevSignature {
		return StopFailedAdvance, nil
	}
	return "", nil
}

func (p *Paginator) paginateScroll(ctx context.Context, page models.Page, emit EmitFunc) (PageStats, error) {
	stats := PageStats{Pages: 1, StopReason: StopScrollDone}

	var doc *goquery.Document
	prevCount, run := -1, 0

	for poll := 0; poll < p.config.MaxPolls; poll++ {
		if err := crawlers.ScrollToBottom(ctx, page, p.stability.Container); err != nil {
			utils.Debugf("滚动失败 [%s]: %v", page.URL(), err)
		}
		if !crawlers.Sleep(ctx, p.config.PollInterval) {
			return stats, ctx.Err()
		}

		rawHTML, err := page.HTML(ctx)
		if err != nil {
			stats.Failures++
			if stats.Failures >= p.config.MaxPageFailures {
				return stats, fmt.Errorf("列表 %s 读取失败 %d 次: %w", page.URL(), stats.Failures, err)
			}
			continue
		}
		doc, err = ParseDocument(rawHTML)
		if err != nil {
			return stats, err
		}

		n := p.extractor.CountCards(doc)
		if n == prevCount {
			run++
		} else {
			prevCount, run = n, 1
		}
		if run >= p.stability.StableReads {
			break
		}
	}

	if doc == nil {
		return stats, fmt.Errorf("列表 %s 没有可读取的内容: %w", page.URL(), models.ErrExtractionEmpty)
	}

	items := p.extractor.ExtractDocument(doc)
	if len(items) == 0 && p.extractor.CountCards(doc) == 0 {
		// 卡片可能尚未渲染, 重读一次
		var err error
		if _, items, err = p.loadAndExtract(ctx, page); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failures++
			utils.Logger.Warn().Err(err).
				Str("url", page.URL()).
				Msg("重读列表失败")
		}
	}
	if len(items) == 0 {
		stats.EmptyPages++
		utils.Warnf("⚠️  滚动加载后没有商品: %s", page.URL())
		return stats, nil
	}

	stats.Items = len(items)
	emit(1, items)
	return stats, nil
}
