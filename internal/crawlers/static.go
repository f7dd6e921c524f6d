package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// DefaultUserAgent 默认User-Agent
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// StaticOptions 静态获取器配置
type StaticOptions struct {
	UserAgent string
	Timeout   time.Duration // 单次HTTP请求超时
	Insecure  bool          // 跳过TLS证书验证
}

// StaticFetcher 基于Colly的静态HTML获取器
// 适用于服务端渲染的商品列表, 不执行JavaScript
type StaticFetcher struct {
	opts   StaticOptions
	client *http.Client
}

// NewStaticFetcher 创建静态获取器
func NewStaticFetcher(opts StaticOptions) *StaticFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		utils.Debugf("静态获取器: TLS证书验证已禁用")
	}

	return &StaticFetcher{
		opts:   opts,
		client: &http.Client{Transport: transport, Timeout: opts.Timeout},
	}
}

// Navigate 获取URL的HTML
func (f *StaticFetcher) Navigate(ctx context.Context, rawURL string) (models.Page, error) {
	finalURL, html, err := f.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return &staticPage{fetcher: f, url: finalURL, html: html}, nil
}

// Close 释放空闲连接
func (f *StaticFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// fetch 用一次性的collector请求页面, 返回最终URL和解码后的HTML
func (f *StaticFetcher) fetch(ctx context.Context, rawURL string) (string, string, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetClient(f.client)

	var (
		body        []byte
		contentType string
		encoding    string
		finalURL    = rawURL
		fetchErr    error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL.String()
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
			encoding = r.Headers.Get("Content-Encoding")
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	err := c.Visit(rawURL)
	if fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		if isTimeout(ctx, fetchErr) {
			return "", "", fmt.Errorf("%w: %s: %v", models.ErrFetchTimeout, rawURL, fetchErr)
		}
		return "", "", fmt.Errorf("请求失败 [%s]: %w", rawURL, fetchErr)
	}

	decoded, err := decompressResponse(encoding, body)
	if err != nil {
		return "", "", fmt.Errorf("解压响应失败 [%s]: %w", rawURL, err)
	}

	if !isHTML(contentType, decoded) {
		return "", "", fmt.Errorf("响应不是HTML [%s]: %s", rawURL, mimetype.Detect(decoded).String())
	}

	utils.Debugf("页面获取完成: %s (%d 字节)", finalURL, len(decoded))
	return finalURL, string(decoded), nil
}

// isTimeout 判断是否为超时错误
func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isHTML 按Content-Type或内容特征判断是否为HTML
func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	return mimetype.Detect(body).Is("text/html")
}

// decompressResponse 根据Content-Encoding解压响应体
// Colly已自动解压gzip但保留了响应头, 因此gzip按魔数判断
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	default:
		return body, nil
	}
}

// staticPage 静态获取的页面
// 没有滚动和渲染, 点击翻页等价于跟随链接重新请求
type staticPage struct {
	fetcher *StaticFetcher

	mu     sync.Mutex
	url    string
	html   string
	doc    *goquery.Document
	closed bool
}

func (p *staticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *staticPage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", models.ErrPageClosed
	}
	return p.html, nil
}

// document 惰性解析, 调用方持有mu
func (p *staticPage) document() (*goquery.Document, error) {
	if p.doc == nil {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
		if err != nil {
			return nil, err
		}
		p.doc = doc
	}
	return p.doc, nil
}

func (p *staticPage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", models.ErrPageClosed
	}
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", models.ErrElementNotFound, selector)
	}
	return strings.TrimSpace(sel.Text()), nil
}

// Height 静态页面没有布局, 以文档长度代替
func (p *staticPage) Height(ctx context.Context, container string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, models.ErrPageClosed
	}
	return len(p.html), nil
}

func (p *staticPage) ScrollTo(ctx context.Context, y int) error {
	return nil
}

// Click 跟随首个可用匹配元素的href
func (p *staticPage) Click(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, models.ErrPageClosed
	}
	doc, err := p.document()
	if err != nil {
		p.mu.Unlock()
		return false, err
	}
	base := p.url

	var href string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, off := s.Attr("disabled"); off || s.HasClass("disabled") || s.AttrOr("aria-disabled", "") == "true" {
			return true
		}
		if h, ok := s.Attr("href"); ok && strings.TrimSpace(h) != "" && !strings.HasPrefix(h, "#") && !strings.HasPrefix(h, "javascript:") {
			href = strings.TrimSpace(h)
			return false
		}
		return true
	})
	p.mu.Unlock()

	if href == "" {
		return false, nil
	}

	target, err := resolveURL(base, href)
	if err != nil {
		return false, err
	}

	finalURL, html, err := p.fetcher.fetch(ctx, target)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	p.url, p.html, p.doc = finalURL, html, nil
	p.mu.Unlock()
	return true, nil
}

func (p *staticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.doc = nil
	return nil
}

// resolveURL 把相对链接解析为绝对URL
func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("无效的页面URL %q: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("无效的链接 %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}
