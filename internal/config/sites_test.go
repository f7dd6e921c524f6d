package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

func TestLoadSites_Builtin(t *testing.T) {
	catalog, err := LoadSites("")
	if err != nil {
		t.Fatalf("LoadSites() error = %v", err)
	}

	want := []string{"plazavea", "tottus", "jumbo", "inkafarma", "cruzverde", "cruzverdecl", "falabellacol"}
	if got := catalog.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	inka, err := catalog.Get("InkaFarma")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if inka.Strategy != models.StrategyScroll || inka.Threshold != 250 || inka.SourceID != "20608430301" {
		t.Errorf("inkafarma配置不符: %+v", inka)
	}
	if inka.Selectors.ChildLink == "" || inka.Selectors.Count == "" {
		t.Errorf("inkafarma缺少计数或子类目选择器: %+v", inka.Selectors)
	}
	if inka.ChildScope != models.ChildScopeParentPath {
		t.Errorf("inkafarma子类目应限定在当前类目下, got %q", inka.ChildScope)
	}

	if _, err := catalog.Get("wong"); err == nil {
		t.Error("未知站点应返回错误")
	}
}

func TestLoadSites_ClickPaginatedSites(t *testing.T) {
	catalog, err := LoadSites("")
	if err != nil {
		t.Fatalf("LoadSites() error = %v", err)
	}

	tests := []struct {
		name     string
		sourceID string
		category string
		root     string
	}{
		{"cruzverde", "800.149.695", "medicamentos", "https://www.cruzverde.com.co/medicamentos"},
		{"cruzverdecl", "89.807.200", "medicamentos", "https://www.cruzverde.cl/medicamentos"},
		{"falabellacol", "76.212.492", "tecnologia", "https://www.falabella.com.co/falabella-co/search?Ntt=tecnologia"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, err := catalog.Get(tt.name)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if site.SourceID != tt.sourceID || site.Strategy != models.StrategyClick || site.Fetcher != models.FetcherBrowser {
				t.Errorf("站点配置不符: %+v", site)
			}
			if site.Selectors.Next == "" || site.Selectors.Container == "" {
				t.Errorf("需要next和滚动容器选择器: %+v", site.Selectors)
			}

			roots, err := BuildRoots(site, []string{tt.category}, nil)
			if err != nil {
				t.Fatalf("BuildRoots() error = %v", err)
			}
			if len(roots) != 1 || roots[0].URL != tt.root {
				t.Errorf("roots = %+v, want %s", roots, tt.root)
			}
		})
	}
}

func TestLoadSites_UserOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	content := `
sites:
  - name: jumbo
    source_id: "1"
    source_name: Jumbo Test
    base_url: https://jumbo.test
    fetcher: static
    strategy: scroll
    start_urls: [https://jumbo.test/despensa]
    selectors:
      card: .card
      name: .name
      price: .price
  - name: metro
    source_id: "2"
    source_name: Metro
    base_url: https://metro.test
    url_template: "{base}/{category}"
    fetcher: browser
    strategy: click
    categories:
      abarrotes: []
    selectors:
      card: .card
      name: .name
      price: .price
      next: .next
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入站点文件失败: %v", err)
	}

	catalog, err := LoadSites(path)
	if err != nil {
		t.Fatalf("LoadSites() error = %v", err)
	}

	jumbo, _ := catalog.Get("jumbo")
	if jumbo.Fetcher != models.FetcherStatic || jumbo.BaseURL != "https://jumbo.test" {
		t.Errorf("同名站点应被替换: %+v", jumbo)
	}
	if names := catalog.Names(); len(names) != 5 || names[4] != "metro" {
		t.Errorf("Names() = %v", names)
	}
}

func TestLoadSites_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"缺少选择器", "sites:\n  - name: roto\n    fetcher: browser\n    strategy: scroll\n    start_urls: [https://x.test]\n"},
		{"click缺少next", "sites:\n  - name: roto\n    fetcher: browser\n    strategy: click\n    start_urls: [https://x.test]\n    selectors: {card: .c, name: .n, price: .p}\n"},
		{"YAML格式错误", "sites: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sites.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSites(path); err == nil {
				t.Error("LoadSites() 应返回错误")
			}
		})
	}

	_, err := LoadSites(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("文件不存在应返回ConfigError, got %v", err)
	}
}

func TestBuildRoots(t *testing.T) {
	catalog, err := LoadSites("")
	if err != nil {
		t.Fatalf("LoadSites() error = %v", err)
	}
	plazavea, _ := catalog.Get("plazavea")
	inka, _ := catalog.Get("inkafarma")
	tottus, _ := catalog.Get("tottus")

	t.Run("类目过滤", func(t *testing.T) {
		roots, err := BuildRoots(plazavea, []string{"lacteos-y-huevos"}, nil)
		if err != nil {
			t.Fatalf("BuildRoots() error = %v", err)
		}
		if len(roots) != 4 {
			t.Fatalf("入口数 = %d, want 4", len(roots))
		}
		if roots[0].URL != "https://www.plazavea.com.pe/lacteos-y-huevos/leche" {
			t.Errorf("URL = %s", roots[0].URL)
		}
		if !reflect.DeepEqual(roots[0].LabelPath, []string{"Lacteos Y Huevos", "Leche"}) {
			t.Errorf("LabelPath = %v", roots[0].LabelPath)
		}
	})

	t.Run("没有子类目", func(t *testing.T) {
		roots, err := BuildRoots(inka, []string{"farmacia"}, nil)
		if err != nil {
			t.Fatalf("BuildRoots() error = %v", err)
		}
		if len(roots) != 1 || roots[0].URL != "https://inkafarma.pe/categoria/farmacia" {
			t.Errorf("roots = %+v", roots)
		}
	})

	t.Run("固定入口", func(t *testing.T) {
		roots, err := BuildRoots(tottus, nil, nil)
		if err != nil {
			t.Fatalf("BuildRoots() error = %v", err)
		}
		if len(roots) != len(tottus.StartURLs) || roots[0].LabelPath[0] != "Abarrotes" {
			t.Errorf("roots = %+v", roots)
		}
	})

	t.Run("自定义URL", func(t *testing.T) {
		seeds := []utils.Seed{
			{URL: "https://inkafarma.pe/categoria/salud/vitaminas", Labels: []string{"Salud", "Vitaminas"}},
			{URL: "https://inkafarma.pe/categoria/belleza"},
		}
		roots, err := BuildRoots(inka, []string{"farmacia"}, seeds)
		if err != nil {
			t.Fatalf("BuildRoots() error = %v", err)
		}
		if len(roots) != 2 {
			t.Fatalf("自定义URL应忽略类目过滤: %+v", roots)
		}
		if !reflect.DeepEqual(roots[1].LabelPath, []string{"Belleza"}) {
			t.Errorf("LabelPath = %v", roots[1].LabelPath)
		}
	})

	t.Run("无匹配类目", func(t *testing.T) {
		if _, err := BuildRoots(plazavea, []string{"electro"}, nil); err == nil {
			t.Error("应返回错误")
		}
	})

	t.Run("非法URL", func(t *testing.T) {
		if _, err := BuildRoots(inka, nil, []utils.Seed{{URL: "ftp://x"}}); err == nil {
			t.Error("应返回错误")
		}
	})
}
