package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// fakePage 脚本化的页面: pages[i]为第i页的HTML
type fakePage struct {
	url   string
	pages []string
	idx   int

	// activeSel 页码指示选择器, 返回 idx+1
	activeSel string
	// stuck 点击下一页后页码不变
	stuck bool
	// texts 其他选择器的固定文本
	texts map[string]string
	// htmlErr 第i页读取HTML失败
	htmlErr map[int]bool
	// render 非空时覆盖HTML输出, calls从1开始
	render func(calls int) string
	// failAfter 大于0时, 第failAfter次之后的HTML读取失败
	failAfter int

	mu        sync.Mutex
	htmlCalls int
	clicks    int
	closed    bool
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", models.ErrPageClosed
	}
	p.htmlCalls++
	if p.failAfter > 0 && p.htmlCalls > p.failAfter {
		return "", errors.New("渲染失败")
	}
	if p.render != nil {
		return p.render(p.htmlCalls), nil
	}
	if p.htmlErr[p.idx] {
		return "", errors.New("渲染失败")
	}
	if len(p.pages) == 0 {
		return "<html><body></body></html>", nil
	}
	return p.pages[p.idx], nil
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeSel != "" && selector == p.activeSel {
		return fmt.Sprintf("%d", p.idx+1), nil
	}
	if t, ok := p.texts[selector]; ok {
		return t, nil
	}
	return "", models.ErrElementNotFound
}

func (p *fakePage) Height(ctx context.Context, containerSelector string) (int, error) {
	return 1000, nil
}

func (p *fakePage) ScrollTo(ctx context.Context, y int) error { return nil }

func (p *fakePage) Click(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx+1 >= len(p.pages) {
		return false, nil
	}
	p.clicks++
	if !p.stuck {
		p.idx++
	}
	return true, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeFetcher 按URL返回新页面
type fakeFetcher struct {
	mu sync.Mutex

	pages map[string]func() *fakePage
	// failures URL前N次导航失败
	failures map[string]int

	navigations map[string]int
	opened      []*fakePage
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:       make(map[string]func() *fakePage),
		failures:    make(map[string]int),
		navigations: make(map[string]int),
	}
}

func (f *fakeFetcher) add(url string, build func() *fakePage) {
	f.pages[url] = build
}

func (f *fakeFetcher) Navigate(ctx context.Context, url string) (models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.navigations[url]++
	if f.failures[url] > 0 {
		f.failures[url]--
		return nil, fmt.Errorf("导航 %s: %w", url, models.ErrFetchTimeout)
	}
	build, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("导航 %s: %w", url, models.ErrFetchTimeout)
	}
	page := build()
	page.url = url
	f.opened = append(f.opened, page)
	return page, nil
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.opened {
		if !p.isClosed() {
			return false
		}
	}
	return true
}

// fakeSink 内存记录, fail为true时全部写入失败
type fakeSink struct {
	mu      sync.Mutex
	records []models.ProductRecord
	fail    bool
	closed  bool
}

func (s *fakeSink) Persist(ctx context.Context, record models.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("连接断开")
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Name)
	}
	return out
}

// testCrawlConfig 去掉等待的配置
func testCrawlConfig() models.CrawlConfig {
	c := models.DefaultCrawlConfig()
	c.PollInterval = time.Millisecond
	c.StableReads = 1
	c.MaxPolls = 5
	c.SettleDelay = 0
	c.CountTimeout = 50 * time.Millisecond
	c.NavigationTimeout = time.Second
	c.RetryBackoff = time.Millisecond
	c.Threshold = 250
	return c
}

// testSite 测试用站点
func testSite(strategy models.PaginationStrategy) models.SiteAdapter {
	return models.SiteAdapter{
		Name:       "demo",
		SourceID:   "9",
		SourceName: "Demo",
		BaseURL:    "https://shop.test",
		Fetcher:    models.FetcherBrowser,
		Strategy:   strategy,
		Selectors: models.Selectors{
			Card:       ".card",
			Name:       ".name",
			Price:      ".price",
			Count:      ".count",
			ChildLink:  "a.sub",
			Next:       ".next",
			ActivePage: ".active",
		},
	}
}

// cardsHTML 生成n张商品卡片, 名称带前缀
func cardsHTML(prefix string, n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<div class="card"><span class="name">%s %d</span><span class="price">S/ %d.50</span></div>`, prefix, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}
