package core

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// Planner 决定列表节点直接抽取还是展开子类目
type Planner struct {
	threshold     int
	maxDepth      int
	countSel      string
	childSel      string
	childContains string
	childScope    models.ChildScope
	countTimeout  time.Duration
	visited       *VisitedSet
}

// NewPlanner 创建规划器
// 站点配置了阈值时优先于全局阈值
func NewPlanner(site models.SiteAdapter, config models.CrawlConfig, visited *VisitedSet) *Planner {
	threshold := config.Threshold
	if site.Threshold > 0 {
		threshold = site.Threshold
	}
	if visited == nil {
		visited = NewVisitedSet()
	}
	return &Planner{
		threshold:     threshold,
		maxDepth:      config.MaxDepth,
		countSel:      site.Selectors.Count,
		childSel:      site.Selectors.ChildLink,
		childContains: site.ChildLinkContains,
		childScope:    site.ChildScope,
		countTimeout:  config.CountTimeout,
		visited:       visited,
	}
}

// Threshold 生效的阈值
func (p *Planner) Threshold() int {
	return p.threshold
}

// Plan 读取计数并给出决策
// 计数未知或低于阈值时直接抽取; 否则展开子类目, 没有子类目时退化为直接抽取
func (p *Planner) Plan(ctx context.Context, node models.ListingNode, page models.Page) (models.Action, error) {
	count := EstimateCount(ctx, page, p.countSel, p.countTimeout)
	if err := ctx.Err(); err != nil {
		return models.Action{}, err
	}
	action := p.decide(ctx, node, page, count)
	action.Count = count
	return action, nil
}

func (p *Planner) decide(ctx context.Context, node models.ListingNode, page models.Page, count models.Count) models.Action {
	if !count.Known || count.Value < p.threshold {
		return models.ExtractDirect()
	}

	if node.Depth >= p.maxDepth {
		utils.Warnf("⚠️  计数 %d 超过阈值 %d, 但已达最大深度 %d, 直接抽取: %s",
			count.Value, p.threshold, p.maxDepth, node.URL)
		return models.DegradedExtract()
	}

	children, err := p.children(ctx, node, page)
	if err != nil {
		utils.Logger.Warn().Err(err).Str("url", node.URL).Msg("读取子类目失败")
	}
	if len(children) == 0 {
		utils.Logger.Warn().
			Err(models.ErrPlannerAmbiguous).
			Str("url", node.URL).
			Int("count", count.Value).
			Int("threshold", p.threshold).
			Msg("没有可展开的子类目, 退化为直接抽取")
		return models.DegradedExtract()
	}

	return models.Expand(children)
}

// children 枚举子类目链接
func (p *Planner) children(ctx context.Context, node models.ListingNode, page models.Page) ([]models.ListingNode, error) {
	if p.childSel == "" {
		return nil, nil
	}

	rawHTML, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(rawHTML)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(page.URL())
	if err != nil || page.URL() == "" {
		base, err = url.Parse(node.URL)
		if err != nil {
			return nil, err
		}
	}

	self := models.CanonicalURL(node.URL)
	seen := map[string]bool{self: true}
	var children []models.ListingNode

	doc.Find(p.childSel).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()

		if p.childContains != "" && !strings.Contains(abs, p.childContains) {
			return
		}

		key := models.CanonicalURL(abs)
		if p.childScope == models.ChildScopeParentPath && !underPath(self, key) {
			return
		}
		if seen[key] || p.visited.Contains(key) {
			return
		}
		seen[key] = true

		label := cleanText(a.Text())
		if label == "" {
			label = strings.TrimSpace(a.AttrOr("title", ""))
		}
		if label == "" {
			label = labelFromURL(key)
		}

		children = append(children, node.Child(key, label))
	})

	return children, nil
}

// underPath 判断child是否位于parent路径之下(同主机, 路径多至少一段)
func underPath(parent, child string) bool {
	pu, err := url.Parse(parent)
	if err != nil {
		return false
	}
	cu, err := url.Parse(child)
	if err != nil || !strings.EqualFold(pu.Host, cu.Host) {
		return false
	}
	prefix := strings.TrimRight(pu.Path, "/") + "/"
	rest := strings.TrimPrefix(cu.Path, prefix)
	return rest != cu.Path && strings.Trim(rest, "/") != ""
}

// labelFromURL 用URL最后一段生成类目名: "lacteos-y-huevos" -> "Lacteos Y Huevos"
func labelFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(parsed.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return SlugLabel(seg)
}

// SlugLabel 把URL片段转成类目名
func SlugLabel(slug string) string {
	slug = strings.NewReplacer("-", " ", "_", " ").Replace(strings.Trim(slug, "/"))
	return cases.Title(language.Spanish).String(slug)
}
