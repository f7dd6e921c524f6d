package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

const maxBrowserLaunches = 3

// RodOptions 浏览器获取器配置
type RodOptions struct {
	Headless       bool
	UserAgent      string
	ReadySelector  string        // 导航后等待出现的元素, 为空时只等待load事件
	ReadyTimeout   time.Duration // 等待ReadySelector的最长时间
	MaxTabs        int           // 同时打开的标签页上限
	BlockResources bool          // 拦截图片/字体/媒体请求
	Monitor        *ResourceMonitor
}

// RodFetcher 基于go-rod的无头浏览器获取器
// 浏览器崩溃后自动重启, 累计启动超过上限后返回ErrBrowserCrashed
type RodFetcher struct {
	opts RodOptions

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     *PagePool
	launches int
	closed   bool
}

// NewRodFetcher 启动浏览器
func NewRodFetcher(opts RodOptions) (*RodFetcher, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if opts.MaxTabs < 1 {
		opts.MaxTabs = 1
	}
	if opts.Monitor != nil {
		opts.MaxTabs = opts.Monitor.MaxWorkers(opts.MaxTabs)
	}

	f := &RodFetcher{opts: opts}
	if err := f.launchBrowser(); err != nil {
		return nil, err
	}
	return f, nil
}

// launchBrowser 启动并连接浏览器, 调用方持有mu或处于构造阶段
func (f *RodFetcher) launchBrowser() error {
	if f.launches >= maxBrowserLaunches {
		return fmt.Errorf("%w: 已重启 %d 次", models.ErrBrowserCrashed, f.launches)
	}
	f.launches++

	l := launcher.New().Headless(f.opts.Headless)

	// 允许访问自签名或过期证书的站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	f.launcher = l
	f.browser = browser
	f.pool = NewPagePool(f.opts.MaxTabs, f.newTab(browser), cleanTab)

	utils.Debugf("浏览器已启动: %s (第%d次, 标签页上限: %d)", controlURL, f.launches, f.opts.MaxTabs)
	return nil
}

// closeBrowser 关闭标签页池和浏览器进程, 调用方持有mu
func (f *RodFetcher) closeBrowser() error {
	var errs []error
	if f.pool != nil {
		errs = append(errs, f.pool.Close())
	}
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if f.launcher != nil {
		f.launcher.Kill()
	}
	f.pool, f.browser, f.launcher = nil, nil, nil
	utils.Debug("浏览器已关闭")
	return errors.Join(errs...)
}

// rodTab 浏览器标签页及其请求拦截器
type rodTab struct {
	page   *rod.Page
	router *rod.HijackRouter
}

func (t *rodTab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
	}
	return t.page.Close()
}

// newTab 返回在指定浏览器上创建标签页的函数
func (f *RodFetcher) newTab(browser *rod.Browser) func() (Tab, error) {
	return func() (Tab, error) {
		page, err := browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, err
		}

		err = proto.NetworkSetUserAgentOverride{UserAgent: f.opts.UserAgent}.Call(page)
		if err != nil {
			utils.Logger.Warn().Err(err).Msg("设置User-Agent失败")
		}

		tab := &rodTab{page: page}
		if f.opts.BlockResources {
			tab.router = setupNetworkIntercept(page)
		}
		return tab, nil
	}
}

// setupNetworkIntercept 拦截与商品列表无关的静态资源
func setupNetworkIntercept(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		switch ctx.Request.Type() {
		case proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont, proto.NetworkResourceTypeMedia:
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()
	return router
}

// cleanTab 清理标签页的存储状态, 避免不同分类之间互相影响
func cleanTab(t Tab) error {
	tab, ok := t.(*rodTab)
	if !ok {
		return fmt.Errorf("未知标签页类型: %T", t)
	}
	_, err := tab.page.Timeout(5 * time.Second).Eval(`() => {
		try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}
	}`)
	return err
}

// currentPool 返回当前浏览器的标签页池
func (f *RodFetcher) currentPool() (*PagePool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrPoolClosed
	}
	return f.pool, nil
}

// Navigate 打开URL并等待页面就绪
func (f *RodFetcher) Navigate(ctx context.Context, url string) (p models.Page, err error) {
	// go-rod在连接断开时可能panic, 统一转为浏览器崩溃
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("捕获panic: URL=%s, 错误=%v, 类型=panic恢复", url, r)
			f.restart()
			p, err = nil, fmt.Errorf("%w: %v", models.ErrBrowserCrashed, r)
		}
	}()

	pool, err := f.currentPool()
	if err != nil {
		return nil, err
	}

	t, err := pool.AcquirePage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: 等待标签页: %v", models.ErrFetchTimeout, err)
		}
		return nil, err
	}
	tab := t.(*rodTab)

	page := &rodPage{url: url, tab: tab, pool: pool}
	defer func() {
		if err != nil {
			page.Close()
		}
	}()

	utils.Debugf("访问页面: %s", url)

	if err := tab.page.Context(ctx).Navigate(url); err != nil {
		return nil, f.navigationError(ctx, url, err)
	}
	if err := tab.page.Context(ctx).WaitLoad(); err != nil {
		return nil, f.navigationError(ctx, url, err)
	}

	if f.opts.ReadySelector != "" {
		_, err := tab.page.Context(ctx).Timeout(f.opts.ReadyTimeout).Element(f.opts.ReadySelector)
		if err != nil {
			if ctx.Err() != nil {
				return nil, f.navigationError(ctx, url, err)
			}
			// 就绪元素缺失不算失败, 交给后续步骤判断页面内容
			utils.Logger.Debug().Str("url", url).Str("selector", f.opts.ReadySelector).Msg("等待就绪元素超时")
		}
	}

	utils.Debugf("页面加载完成: %s", url)
	return page, nil
}

// navigationError 区分超时与浏览器崩溃
func (f *RodFetcher) navigationError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", models.ErrFetchTimeout, url, err)
	}
	if !f.alive() {
		f.restart()
		return fmt.Errorf("%w: %s: %v", models.ErrBrowserCrashed, url, err)
	}
	return fmt.Errorf("导航失败 [%s]: %w", url, err)
}

// alive 检查浏览器连接
func (f *RodFetcher) alive() bool {
	f.mu.Lock()
	browser := f.browser
	f.mu.Unlock()
	if browser == nil {
		return false
	}
	_, err := proto.BrowserGetVersion{}.Call(browser.Timeout(5 * time.Second))
	return err == nil
}

// restart 关闭当前浏览器并重新启动
func (f *RodFetcher) restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	utils.Warn("⚠️  浏览器连接异常, 正在重启")
	if err := f.closeBrowser(); err != nil {
		utils.Logger.Debug().Err(err).Msg("关闭崩溃的浏览器失败")
	}
	if err := f.launchBrowser(); err != nil {
		utils.Error(err, "重启浏览器失败")
		f.closed = true
	}
}

// Close 关闭浏览器
func (f *RodFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.closeBrowser()
}

// rodPage 浏览器中的一个已打开页面
type rodPage struct {
	url  string
	tab  *rodTab
	pool *PagePool

	once sync.Once
}

func (p *rodPage) URL() string { return p.url }

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.tab.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("读取页面HTML失败: %w", err)
	}
	return html, nil
}

// elementTimeout 元素查找的最长等待, rod默认会一直等到元素出现
const elementTimeout = 2 * time.Second

func (p *rodPage) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.tab.page.Context(ctx).Timeout(elementTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrElementNotFound, selector)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("读取元素文本失败 [%s]: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (p *rodPage) Height(ctx context.Context, container string) (int, error) {
	res, err := p.tab.page.Context(ctx).Eval(`(sel) => {
		const el = (sel && document.querySelector(sel)) || document.body;
		return el ? el.scrollHeight : 0;
	}`, container)
	if err != nil {
		return 0, fmt.Errorf("读取页面高度失败: %w", err)
	}
	return res.Value.Int(), nil
}

func (p *rodPage) ScrollTo(ctx context.Context, y int) error {
	_, err := p.tab.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y)
	if err != nil {
		return fmt.Errorf("滚动页面失败: %w", err)
	}
	return nil
}

// Click 点击首个匹配元素, 元素被禁用时返回false
func (p *rodPage) Click(ctx context.Context, selector string) (bool, error) {
	page := p.tab.page.Context(ctx)

	has, el, err := page.Has(selector)
	if err != nil {
		return false, fmt.Errorf("查找元素失败 [%s]: %w", selector, err)
	}
	if !has {
		return false, nil
	}

	if disabled(el) {
		return false, nil
	}

	if err := el.ScrollIntoView(); err != nil {
		utils.Logger.Debug().Err(err).Str("selector", selector).Msg("滚动到元素失败")
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// 元素被遮挡时退回脚本点击
		if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
			return false, fmt.Errorf("点击元素失败 [%s]: %w", selector, errors.Join(err, jsErr))
		}
	}
	return true, nil
}

// disabled 检查disabled属性和常见的禁用样式
func disabled(el *rod.Element) bool {
	if attr, err := el.Attribute("disabled"); err == nil && attr != nil {
		return true
	}
	if attr, err := el.Attribute("aria-disabled"); err == nil && attr != nil && *attr == "true" {
		return true
	}
	if class, err := el.Attribute("class"); err == nil && class != nil {
		for _, c := range strings.Fields(*class) {
			if c == "disabled" || strings.HasSuffix(c, "--disabled") {
				return true
			}
		}
	}
	return false
}

// Close 把标签页归还给池
func (p *rodPage) Close() error {
	p.once.Do(func() {
		p.pool.ReleasePage(p.tab)
	})
	return nil
}
