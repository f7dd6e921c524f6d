package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/catalogcrawl/internal/core"
	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// MaxSitesFileSize 站点文件最大大小 (1MB)
const MaxSitesFileSize = 1 * 1024 * 1024

//go:embed sites.yaml
var builtinSites []byte

// sitesFile 站点文件结构
type sitesFile struct {
	Sites []models.SiteAdapter `mapstructure:"sites"`
}

// SiteCatalog 已加载的站点适配器
type SiteCatalog struct {
	sites map[string]models.SiteAdapter
	order []string
}

// LoadSites 加载内置站点, userFile非空时合并用户站点
// 同名站点整体替换
func LoadSites(userFile string) (*SiteCatalog, error) {
	catalog := &SiteCatalog{sites: make(map[string]models.SiteAdapter)}

	builtin, err := parseSites(bytes.NewReader(builtinSites), "sites.yaml")
	if err != nil {
		return nil, err
	}
	catalog.merge(builtin)

	if userFile != "" {
		info, err := os.Stat(userFile)
		if err != nil {
			return nil, &models.ConfigError{FilePath: userFile, Cause: err}
		}
		if info.Size() > MaxSitesFileSize {
			return nil, &models.ConfigError{
				FilePath: userFile,
				Cause:    fmt.Errorf("站点文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxSitesFileSize),
			}
		}

		data, err := os.ReadFile(userFile)
		if err != nil {
			return nil, &models.ConfigError{FilePath: userFile, Cause: err}
		}
		user, err := parseSites(bytes.NewReader(data), userFile)
		if err != nil {
			return nil, err
		}
		catalog.merge(user)
		utils.Debugf("已合并用户站点文件: %s (%d 个站点)", userFile, len(user))
	}

	for _, name := range catalog.order {
		site := catalog.sites[name]
		if err := site.Validate(); err != nil {
			return nil, err
		}
	}

	return catalog, nil
}

func parseSites(r *bytes.Reader, source string) ([]models.SiteAdapter, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, &models.ConfigError{FilePath: source, Cause: err}
	}

	var file sitesFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, &models.ConfigError{FilePath: source, Cause: fmt.Errorf("站点配置绑定失败: %w", err)}
	}
	return file.Sites, nil
}

func (c *SiteCatalog) merge(sites []models.SiteAdapter) {
	for _, site := range sites {
		site.Name = strings.ToLower(strings.TrimSpace(site.Name))
		if _, exists := c.sites[site.Name]; !exists {
			c.order = append(c.order, site.Name)
		}
		c.sites[site.Name] = site
	}
}

// Get 按名称查找站点
func (c *SiteCatalog) Get(name string) (models.SiteAdapter, error) {
	site, ok := c.sites[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.SiteAdapter{}, fmt.Errorf("未知站点: %q (可用: %s)", name, strings.Join(c.order, ", "))
	}
	return site, nil
}

// Names 站点名称, 按加载顺序
func (c *SiteCatalog) Names() []string {
	return append([]string(nil), c.order...)
}

// BuildRoots 生成遍历入口
// urls非空时只使用给定的URL; 否则由类目表和固定入口生成, categories非空时只保留这些类目
func BuildRoots(site models.SiteAdapter, categories []string, seeds []utils.Seed) ([]models.ListingNode, error) {
	if len(seeds) > 0 {
		roots := make([]models.ListingNode, 0, len(seeds))
		for _, seed := range seeds {
			if err := models.ValidateURL(seed.URL); err != nil {
				return nil, err
			}
			labels := seed.Labels
			if len(labels) == 0 {
				labels = labelsFromPath(site, seed.URL)
			}
			roots = append(roots, models.NewRootNode(seed.URL, labels...))
		}
		return roots, nil
	}

	filter := make(map[string]bool, len(categories))
	for _, c := range categories {
		filter[strings.ToLower(strings.TrimSpace(c))] = true
	}

	var roots []models.ListingNode

	if site.URLTemplate != "" {
		names := make([]string, 0, len(site.Categories))
		for name := range site.Categories {
			if len(filter) == 0 || filter[strings.ToLower(name)] {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, cat := range names {
			subs := site.Categories[cat]
			if len(subs) == 0 {
				roots = append(roots, models.NewRootNode(site.CategoryURL(cat, ""), core.SlugLabel(cat)))
				continue
			}
			for _, sub := range subs {
				roots = append(roots, models.NewRootNode(site.CategoryURL(cat, sub), core.SlugLabel(cat), core.SlugLabel(sub)))
			}
		}
	}

	for _, u := range site.StartURLs {
		labels := labelsFromPath(site, u)
		if len(filter) > 0 && (len(labels) == 0 || !filter[strings.ToLower(labels[0])]) {
			continue
		}
		roots = append(roots, models.NewRootNode(u, labels...))
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("站点 %s 没有匹配的入口", site.Name)
	}
	return roots, nil
}

// labelsFromPath 没有给定类目名时, 用URL最后一段作为类目
func labelsFromPath(site models.SiteAdapter, rawURL string) []string {
	path := strings.TrimPrefix(rawURL, strings.TrimRight(site.BaseURL, "/"))
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	last := segs[len(segs)-1]
	if last == "" || strings.Contains(last, "://") {
		return nil
	}
	return []string{core.SlugLabel(last)}
}
