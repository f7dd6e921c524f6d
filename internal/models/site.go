package models

import (
	"fmt"
	"strings"
)

// FetcherKind 页面获取方式
type FetcherKind string

const (
	FetcherBrowser FetcherKind = "browser" // 无头浏览器(Rod)
	FetcherStatic  FetcherKind = "static"  // 静态HTML(Colly)
)

// PaginationStrategy 翻页策略
type PaginationStrategy string

const (
	StrategyClick  PaginationStrategy = "click"  // 点击下一页
	StrategyScroll PaginationStrategy = "scroll" // 无限滚动累积
)

// ChildScope 子类目链接的范围限制
type ChildScope string

const (
	ChildScopeAny        ChildScope = ""            // 不限制
	ChildScopeParentPath ChildScope = "parent_path" // 子链接路径必须以当前节点路径为前缀
)

// Selectors 站点的CSS选择器集合
type Selectors struct {
	Card         string `mapstructure:"card" json:"card"`                   // 商品卡片
	Name         string `mapstructure:"name" json:"name"`                   // 卡片内名称
	Presentation string `mapstructure:"presentation" json:"presentation"`   // 卡片内规格(可选, 拼接到名称后)
	Price        string `mapstructure:"price" json:"price"`                 // 卡片内价格节点(可多个)
	UnitRef      string `mapstructure:"unit_ref" json:"unit_ref"`           // 卡片内单位参考(可选)
	Count        string `mapstructure:"count" json:"count"`                 // 结果数量标签(可选)
	ChildLink    string `mapstructure:"child_link" json:"child_link"`       // 子类目链接
	Next         string `mapstructure:"next" json:"next"`                   // 下一页按钮
	ActivePage   string `mapstructure:"active_page" json:"active_page"`     // 当前页码指示
	Container    string `mapstructure:"container" json:"container"`         // 滚动容器
	ReadyWaitFor string `mapstructure:"ready_wait_for" json:"ready_wait_for"` // 导航后等待出现的元素(可选)
}

// SiteAdapter 单个站点的适配参数
// 遍历算法与站点无关, 站点差异全部集中在这里
type SiteAdapter struct {
	Name       string `mapstructure:"name" json:"name"`
	SourceID   string `mapstructure:"source_id" json:"source_id"`
	SourceName string `mapstructure:"source_name" json:"source_name"`
	BaseURL    string `mapstructure:"base_url" json:"base_url"`

	// URLTemplate 类目URL模板, 支持{base} {category} {subcategory}
	URLTemplate string `mapstructure:"url_template" json:"url_template"`

	// Categories 类目表: 类目 -> 子类目列表(可为空)
	Categories map[string][]string `mapstructure:"categories" json:"categories"`

	// StartURLs 固定入口(与类目表二选一或并用)
	StartURLs []string `mapstructure:"start_urls" json:"start_urls"`

	Fetcher   FetcherKind        `mapstructure:"fetcher" json:"fetcher"`
	Strategy  PaginationStrategy `mapstructure:"strategy" json:"strategy"`
	Threshold int                `mapstructure:"threshold" json:"threshold"`

	// ChildLinkContains 子类目链接必须包含的片段(可选)
	ChildLinkContains string `mapstructure:"child_link_contains" json:"child_link_contains"`

	// ChildScope 为parent_path时, 导航菜单里的同级类目不会被当作子类目
	ChildScope ChildScope `mapstructure:"child_scope" json:"child_scope,omitempty"`

	Selectors Selectors `mapstructure:"selectors" json:"selectors"`
}

// Validate 校验适配器
func (s *SiteAdapter) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "站点名称不能为空"}
	}
	if s.Selectors.Card == "" || s.Selectors.Name == "" || s.Selectors.Price == "" {
		return &ValidationError{Field: s.Name + ".selectors", Reason: "card/name/price选择器必须配置"}
	}
	switch s.Strategy {
	case StrategyClick:
		if s.Selectors.Next == "" {
			return &ValidationError{Field: s.Name + ".selectors.next", Reason: "click策略需要next选择器"}
		}
	case StrategyScroll:
	default:
		return &ValidationError{Field: s.Name + ".strategy", Reason: fmt.Sprintf("未知翻页策略: %q", s.Strategy)}
	}
	switch s.Fetcher {
	case FetcherBrowser, FetcherStatic:
	default:
		return &ValidationError{Field: s.Name + ".fetcher", Reason: fmt.Sprintf("未知获取方式: %q", s.Fetcher)}
	}
	switch s.ChildScope {
	case ChildScopeAny, ChildScopeParentPath:
	default:
		return &ValidationError{Field: s.Name + ".child_scope", Reason: fmt.Sprintf("未知子类目范围: %q", s.ChildScope)}
	}
	if s.Threshold < 0 {
		return &ValidationError{Field: s.Name + ".threshold", Reason: "阈值不能为负数"}
	}
	if s.URLTemplate == "" && len(s.StartURLs) == 0 {
		return &ValidationError{Field: s.Name, Reason: "url_template与start_urls至少配置一个"}
	}
	return nil
}

// CategoryURL 按模板生成类目URL
func (s *SiteAdapter) CategoryURL(category, subcategory string) string {
	u := strings.NewReplacer(
		"{base}", strings.TrimRight(s.BaseURL, "/"),
		"{category}", category,
		"{subcategory}", subcategory,
	).Replace(s.URLTemplate)

	scheme := ""
	if i := strings.Index(u, "://"); i >= 0 {
		scheme, u = u[:i+3], u[i+3:]
	}
	for strings.Contains(u, "//") {
		u = strings.ReplaceAll(u, "//", "/")
	}
	if subcategory == "" {
		u = strings.TrimSuffix(u, "/")
	}
	return scheme + u
}
