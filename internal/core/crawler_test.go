package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

const rootHTML = `<html><body>
<span class="count">500 resultados</span>
<a class="sub" href="/abarrotes/leche">Leche</a>
<a class="sub" href="/abarrotes/arroz">Arroz</a>
</body></html>`

// leafPage 单页叶子列表
func leafPage(prefix string, n int) func() *fakePage {
	return func() *fakePage {
		return &fakePage{pages: []string{cardsHTML(prefix, n)}}
	}
}

// treeFetcher 一个需要展开的入口和两个叶子
func treeFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.add("https://shop.test/abarrotes", func() *fakePage {
		return &fakePage{
			pages: []string{rootHTML},
			texts: map[string]string{".count": "500 resultados"},
		}
	})
	f.add("https://shop.test/abarrotes/leche", leafPage("Leche", 3))
	f.add("https://shop.test/abarrotes/arroz", leafPage("Arroz", 2))
	return f
}

func TestCrawler_ExpandsAndExtracts(t *testing.T) {
	fetcher := treeFetcher()
	sink := &fakeSink{}
	c := NewCrawler(testSite(models.StrategyClick), testCrawlConfig(), fetcher, sink, CrawlerOptions{RunID: "run-1"})

	root := models.NewRootNode("https://shop.test/abarrotes", "Abarrotes")
	stats, err := c.CrawlRoot(context.Background(), root)
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}

	want := []string{"Leche 1", "Leche 2", "Leche 3", "Arroz 1", "Arroz 2"}
	if got := sink.names(); !reflect.DeepEqual(got, want) {
		t.Errorf("记录顺序 = %v, want %v", got, want)
	}
	if stats.NodesVisited != 3 || stats.NodesExpanded != 1 || stats.RecordsEmitted != 5 {
		t.Errorf("统计不符: %+v", stats)
	}
	if !fetcher.allClosed() {
		t.Error("所有页面都应被关闭")
	}

	rec := sink.records[0]
	if !reflect.DeepEqual(rec.LabelPath, []string{"Abarrotes", "Leche"}) {
		t.Errorf("LabelPath = %v", rec.LabelPath)
	}
	if rec.RunID != "run-1" || rec.ListingURL != "https://shop.test/abarrotes/leche" {
		t.Errorf("记录元数据不符: %+v", rec)
	}

	if got := c.GetStats(); got.RecordsEmitted != 5 {
		t.Errorf("累计统计 = %+v", got)
	}
}

func TestCrawler_Retry(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxRetries  int
		wantRecords int
		wantFailed  int
		wantRetries int
	}{
		{"首次失败后成功", 1, 2, 3, 0, 1},
		{"重试耗尽", 5, 1, 0, 1, 1},
		{"不重试", 1, 0, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher()
			fetcher.add("https://shop.test/leche", leafPage("Leche", 3))
			fetcher.failures["https://shop.test/leche"] = tt.failures

			config := testCrawlConfig()
			config.MaxRetries = tt.maxRetries
			sink := &fakeSink{}
			c := NewCrawler(testSite(models.StrategyClick), config, fetcher, sink, CrawlerOptions{})

			stats, err := c.CrawlRoot(context.Background(), models.NewRootNode("https://shop.test/leche", "Lacteos"))
			if err != nil {
				t.Fatalf("节点失败不应中止遍历: %v", err)
			}
			if len(sink.records) != tt.wantRecords {
				t.Errorf("记录数 = %d, want %d", len(sink.records), tt.wantRecords)
			}
			if stats.NodesFailed != tt.wantFailed || stats.Retries != tt.wantRetries {
				t.Errorf("统计不符: %+v", stats)
			}

			failed := c.FailedNodes()
			if len(failed) != tt.wantFailed {
				t.Fatalf("失败节点 = %v", failed)
			}
			if tt.wantFailed > 0 && failed[0].ErrorType != "max_retries" {
				t.Errorf("ErrorType = %s", failed[0].ErrorType)
			}
		})
	}
}

func TestCrawler_FailedBranchDoesNotStopSiblings(t *testing.T) {
	fetcher := treeFetcher()
	fetcher.failures["https://shop.test/abarrotes/leche"] = 10

	config := testCrawlConfig()
	config.MaxRetries = 1
	sink := &fakeSink{}
	c := NewCrawler(testSite(models.StrategyClick), config, fetcher, sink, CrawlerOptions{})

	stats, err := c.CrawlRoot(context.Background(), models.NewRootNode("https://shop.test/abarrotes"))
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	if want := []string{"Arroz 1", "Arroz 2"}; !reflect.DeepEqual(sink.names(), want) {
		t.Errorf("记录 = %v, want %v", sink.names(), want)
	}
	if stats.NodesFailed != 1 {
		t.Errorf("NodesFailed = %d", stats.NodesFailed)
	}
}

func TestCrawler_FailedBranchWrittenToCheckpoint(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("NewFileCheckpointStore() error = %v", err)
	}
	fetcher := treeFetcher()
	fetcher.failures["https://shop.test/abarrotes/leche"] = 10

	config := testCrawlConfig()
	config.MaxRetries = 1
	c := NewCrawler(testSite(models.StrategyClick), config, fetcher, &fakeSink{}, CrawlerOptions{Checkpoint: store})

	ctx := context.Background()
	if _, err := c.CrawlRoot(ctx, models.NewRootNode("https://shop.test/abarrotes")); err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}

	failed, err := store.FailedNodes(ctx, "demo")
	if err != nil {
		t.Fatalf("FailedNodes() error = %v", err)
	}
	if want := []string{"https://shop.test/abarrotes/leche"}; !reflect.DeepEqual(failed, want) {
		t.Errorf("FailedNodes() = %v, want %v", failed, want)
	}
	if done, _ := store.IsDone(ctx, "demo", "https://shop.test/abarrotes/arroz"); !done {
		t.Error("成功的叶子应写入检查点")
	}
}

func TestCrawler_SinkFailureCountedWithoutRetry(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.add("https://shop.test/leche", leafPage("Leche", 4))
	sink := &fakeSink{fail: true}

	c := NewCrawler(testSite(models.StrategyClick), testCrawlConfig(), fetcher, sink, CrawlerOptions{})
	stats, err := c.CrawlRoot(context.Background(), models.NewRootNode("https://shop.test/leche"))
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	if stats.SinkFailures != 4 || stats.RecordsEmitted != 0 {
		t.Errorf("统计不符: %+v", stats)
	}
	if n := fetcher.navigations["https://shop.test/leche"]; n != 1 {
		t.Errorf("写入失败不应触发重新导航, 导航次数 = %d", n)
	}
}

func TestCrawler_Rejections(t *testing.T) {
	html := `<html><body>
<div class="card"><span class="name">Aceite 1L</span><span class="price">S/ 9.90</span></div>
<div class="card"><span class="name">Sin precio</span><span class="price">Agotado</span></div>
</body></html>`

	fetcher := newFakeFetcher()
	fetcher.add("https://shop.test/aceites", func() *fakePage {
		return &fakePage{pages: []string{html}}
	})
	sink := &fakeSink{}
	c := NewCrawler(testSite(models.StrategyClick), testCrawlConfig(), fetcher, sink, CrawlerOptions{})

	stats, err := c.CrawlRoot(context.Background(), models.NewRootNode("https://shop.test/aceites"))
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	if stats.RecordsEmitted != 1 || stats.RecordsRejected != 1 {
		t.Errorf("统计不符: %+v", stats)
	}
}

func TestCrawler_CheckpointSkipsCompletedLeaves(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("NewFileCheckpointStore() error = %v", err)
	}
	ctx := context.Background()
	if err := store.MarkDone(ctx, "demo", "https://shop.test/abarrotes/leche"); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}

	config := testCrawlConfig()
	config.Resume = true
	fetcher := treeFetcher()
	sink := &fakeSink{}
	c := NewCrawler(testSite(models.StrategyClick), config, fetcher, sink, CrawlerOptions{Checkpoint: store})

	stats, err := c.CrawlRoot(ctx, models.NewRootNode("https://shop.test/abarrotes"))
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	if stats.NodesSkipped != 1 {
		t.Errorf("NodesSkipped = %d", stats.NodesSkipped)
	}
	if fetcher.navigations["https://shop.test/abarrotes/leche"] != 0 {
		t.Error("已完成的叶子不应再导航")
	}
	if want := []string{"Arroz 1", "Arroz 2"}; !reflect.DeepEqual(sink.names(), want) {
		t.Errorf("记录 = %v", sink.names())
	}

	// 展开的节点不写检查点, 叶子写入
	if done, _ := store.IsDone(ctx, "demo", "https://shop.test/abarrotes"); done {
		t.Error("展开节点不应写入检查点")
	}
	if done, _ := store.IsDone(ctx, "demo", "https://shop.test/abarrotes/arroz"); !done {
		t.Error("完成的叶子应写入检查点")
	}
}

func TestCrawler_SharedVisitedAcrossRoots(t *testing.T) {
	fetcher := treeFetcher()
	sink := &fakeSink{}
	visited := NewVisitedSet()
	c := NewCrawler(testSite(models.StrategyClick), testCrawlConfig(), fetcher, sink, CrawlerOptions{Visited: visited})

	ctx := context.Background()
	if _, err := c.CrawlRoot(ctx, models.NewRootNode("https://shop.test/abarrotes")); err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	stats, err := c.CrawlRoot(ctx, models.NewRootNode("https://shop.test/abarrotes/leche/"))
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	if stats.NodesVisited != 0 {
		t.Errorf("已访问的入口不应重复遍历: %+v", stats)
	}
	if len(sink.records) != 5 {
		t.Errorf("记录数 = %d, want 5", len(sink.records))
	}
}

type denyRobots struct{ path string }

func (d denyRobots) Allowed(ctx context.Context, rawURL string) (bool, error) {
	return rawURL != d.path, nil
}

func TestCrawler_RobotsDisallowed(t *testing.T) {
	fetcher := treeFetcher()
	sink := &fakeSink{}
	c := NewCrawler(testSite(models.StrategyClick), testCrawlConfig(), fetcher, sink, CrawlerOptions{
		Robots: denyRobots{path: "https://shop.test/abarrotes/arroz"},
	})

	stats, err := c.CrawlRoot(context.Background(), models.NewRootNode("https://shop.test/abarrotes"))
	if err != nil {
		t.Fatalf("CrawlRoot() error = %v", err)
	}
	if stats.NodesSkipped != 1 || len(sink.records) != 3 {
		t.Errorf("统计不符: %+v, 记录 %d", stats, len(sink.records))
	}
}

func TestCrawler_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCrawler(testSite(models.StrategyClick), testCrawlConfig(), treeFetcher(), &fakeSink{}, CrawlerOptions{})
	_, err := c.CrawlRoot(ctx, models.NewRootNode("https://shop.test/abarrotes"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("CrawlRoot() error = %v, want context.Canceled", err)
	}
}
