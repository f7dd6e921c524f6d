package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/catalogcrawl/internal/core"
	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name        string
		site        string
		urls        string
		threshold   int
		maxPages    int
		concurrency int
		sinks       []string
		expectError bool
	}{
		{"只指定站点", "plazavea", "", 0, 0, 0, nil, false},
		{"完整参数", "tottus", "https://tottus.com.pe/despensa", 250, 50, 4, []string{"jsonl", "postgres"}, false},
		{"省略协议", "jumbo", "jumbo.com.pe/abarrotes", 0, 0, 0, nil, false},
		{"缺少站点", "", "", 0, 0, 0, nil, true},
		{"负阈值", "plazavea", "", -1, 0, 0, nil, true},
		{"并发过大", "plazavea", "", 0, 0, 64, nil, true},
		{"未知写入端", "plazavea", "", 0, 0, 0, []string{"csv"}, true},
		{"非法URL", "plazavea", "ftp://shop.test/x", 0, 0, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.site, tt.urls, "", tt.threshold, tt.maxPages, tt.concurrency, tt.sinks)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"已有协议", "https://www.plazavea.com.pe/abarrotes", "https://www.plazavea.com.pe/abarrotes"},
		{"补全https", "inkafarma.pe/categoria/salud", "https://inkafarma.pe/categoria/salud"},
		{"去掉空白", "  https://shop.test/a  ", "https://shop.test/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if err != nil {
				t.Fatalf("NormalizeURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCollectSeeds(t *testing.T) {
	file := filepath.Join(t.TempDir(), "urls.txt")
	content := "# 入口\nhttps://shop.test/abarrotes | Abarrotes > Arroz\n\nhttps://shop.test/lacteos\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	seeds, err := collectSeeds("shop.test/bebidas, https://shop.test/limpieza", file)
	if err != nil {
		t.Fatalf("collectSeeds() error = %v", err)
	}
	if len(seeds) != 4 {
		t.Fatalf("入口数 = %d, want 4", len(seeds))
	}
	if seeds[0].URL != "https://shop.test/bebidas" {
		t.Errorf("seeds[0] = %s", seeds[0].URL)
	}
	if got := seeds[2].Labels; len(got) != 2 || got[1] != "Arroz" {
		t.Errorf("seeds[2].Labels = %v", got)
	}

	none, err := collectSeeds("", "")
	if err != nil || len(none) != 0 {
		t.Errorf("无入口时应返回空, got %v, %v", none, err)
	}
}

func TestEffectiveThreshold(t *testing.T) {
	cfg := models.DefaultCrawlConfig()
	cfg.Threshold = 300

	if got := effectiveThreshold(models.SiteAdapter{Threshold: 250}, cfg); got != 250 {
		t.Errorf("站点阈值优先, got %d", got)
	}
	if got := effectiveThreshold(models.SiteAdapter{}, cfg); got != 300 {
		t.Errorf("站点未配置时使用全局阈值, got %d", got)
	}
}

func TestFinishTask(t *testing.T) {
	tests := []struct {
		name   string
		runErr error
		want   models.TaskStatus
	}{
		{"正常结束", nil, models.TaskStatusCompleted},
		{"中断", fmt.Errorf("遍历中断: %w", context.Canceled), models.TaskStatusCancelled},
		{"失败", errors.New("浏览器不可用"), models.TaskStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &models.CrawlTask{ID: "run-1", Status: models.TaskStatusRunning}
			summary := &core.BatchSummary{Stats: models.TaskStats{RecordsEmitted: 7}}

			finishTask(task, summary, tt.runErr)

			if task.Status != tt.want {
				t.Errorf("Status = %s, want %s", task.Status, tt.want)
			}
			if task.CompletedAt == nil || task.Stats.RecordsEmitted != 7 {
				t.Errorf("任务未更新: %+v", task)
			}
			if (task.ErrorMessage != "") != (tt.want == models.TaskStatusFailed) {
				t.Errorf("ErrorMessage = %q", task.ErrorMessage)
			}
		})
	}
}
