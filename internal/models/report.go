package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 运行报告
type CrawlReport struct {
	// 任务信息
	RunID string   `json:"run_id"`
	Sites []string `json:"sites"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 汇总统计
	Stats TaskStats `json:"stats"`

	// 每个入口的结果
	Roots []RootResult `json:"roots"`

	// 失败节点
	FailedNodes []FailedNodeInfo `json:"failed_nodes"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// RootResult 单个入口节点的结果
type RootResult struct {
	Site     string    `json:"site"`
	URL      string    `json:"url"`
	Labels   []string  `json:"labels"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Stats    TaskStats `json:"stats"`
	Duration float64   `json:"duration"`
}

// FailedNodeInfo 失败节点信息
type FailedNodeInfo struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // fetch_timeout, browser_crashed, pagination 等
	ErrorMsg  string `json:"error_msg"`
	Retries   int    `json:"retries"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
