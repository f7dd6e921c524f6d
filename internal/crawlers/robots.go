package crawlers

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// RobotsGate 按主机缓存robots.txt并判断路径是否允许访问
// 获取失败时默认允许
type RobotsGate struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData // host -> 规则, nil表示无规则
}

// NewRobotsGate 创建robots检查器
func NewRobotsGate(userAgent string, timeout time.Duration) *RobotsGate {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &RobotsGate{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed 检查URL是否允许抓取
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}

	data := g.rules(ctx, parsed)
	if data == nil {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return data.FindGroup(g.userAgent).Test(path), nil
}

// rules 读取并缓存主机的robots.txt
func (g *RobotsGate) rules(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	g.mu.Lock()
	defer g.mu.Unlock()

	if data, ok := g.cache[u.Host]; ok {
		return data
	}

	data := g.fetch(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
	g.cache[u.Host] = data
	return data
}

func (g *RobotsGate) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		utils.Debugf("获取robots.txt失败 [%s]: %v", robotsURL, err)
		return nil
	}
	defer resp.Body.Close()

	// FromResponse 对4xx视为全部允许, 5xx视为全部禁止
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		utils.Debugf("解析robots.txt失败 [%s]: %v", robotsURL, err)
		return nil
	}
	return data
}
