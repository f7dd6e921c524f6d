package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ReportDir 报告目录
func (r *Reporter) ReportDir(runID string) string {
	return filepath.Join(r.outputDir, "reports", runID)
}

// GenerateReport 保存运行报告和失败节点列表
func (r *Reporter) GenerateReport(report *models.CrawlReport) error {
	dir := r.ReportDir(report.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	if err := r.saveJSONReport(dir, "crawl_report.json", report); err != nil {
		return err
	}

	if len(report.FailedNodes) > 0 {
		if err := r.saveJSONReport(dir, "failed_nodes.json", report.FailedNodes); err != nil {
			return err
		}
	}

	Infof("✅ 报告已生成: %s", dir)
	return nil
}

// SaveTask 保存任务快照, 与报告放在同一目录
func (r *Reporter) SaveTask(task *models.CrawlTask) error {
	dir := r.ReportDir(task.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}
	return r.saveJSONReport(dir, "task.json", task)
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条, max为-1时显示不定长进度
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
