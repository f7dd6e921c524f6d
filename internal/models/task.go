package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// TaskStats 遍历统计
type TaskStats struct {
	NodesVisited    int     `json:"nodes_visited"`    // 访问的列表节点
	NodesExpanded   int     `json:"nodes_expanded"`   // 展开的节点
	NodesFailed     int     `json:"nodes_failed"`     // 重试耗尽放弃的节点
	NodesSkipped    int     `json:"nodes_skipped"`    // 断点续爬跳过的节点
	PagesVisited    int     `json:"pages_visited"`    // 翻过的页数
	EmptyPages      int     `json:"empty_pages"`      // 空页数
	PageFailures    int     `json:"page_failures"`    // 抽取失败页数
	RecordsEmitted  int     `json:"records_emitted"`  // 成功输出的记录
	RecordsRejected int     `json:"records_rejected"` // 被拒绝的记录
	SinkFailures    int     `json:"sink_failures"`    // 写入失败次数
	DegradedEvents  int     `json:"degraded_events"`  // 退化遍历次数
	Retries         int     `json:"retries"`          // 重试次数
	Duration        float64 `json:"duration"`         // 总耗时(秒)
}

// Add 累加另一份统计
func (s *TaskStats) Add(o TaskStats) {
	s.NodesVisited += o.NodesVisited
	s.NodesExpanded += o.NodesExpanded
	s.NodesFailed += o.NodesFailed
	s.NodesSkipped += o.NodesSkipped
	s.PagesVisited += o.PagesVisited
	s.EmptyPages += o.EmptyPages
	s.PageFailures += o.PageFailures
	s.RecordsEmitted += o.RecordsEmitted
	s.RecordsRejected += o.RecordsRejected
	s.SinkFailures += o.SinkFailures
	s.DegradedEvents += o.DegradedEvents
	s.Retries += o.Retries
}

// CrawlConfig 遍历配置
type CrawlConfig struct {
	// 规划
	Threshold int `mapstructure:"threshold" json:"threshold"` // 站点未配置阈值时的默认值
	MaxDepth  int `mapstructure:"max_depth" json:"max_depth"` // 最大展开深度

	// 翻页
	MaxPages        int `mapstructure:"max_pages" json:"max_pages"`                 // 单个列表最大页数
	MaxEmptyPages   int `mapstructure:"max_empty_pages" json:"max_empty_pages"`     // 连续空页上限
	MaxPageFailures int `mapstructure:"max_page_failures" json:"max_page_failures"` // 累计抽取失败上限

	// 等待与稳定性
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" json:"navigation_timeout"`
	CountTimeout      time.Duration `mapstructure:"count_timeout" json:"count_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	StableReads       int           `mapstructure:"stable_reads" json:"stable_reads"`
	MaxPolls          int           `mapstructure:"max_polls" json:"max_polls"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" json:"settle_delay"` // 点击/导航后的固定等待

	// 重试
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`

	// 调度
	Concurrency   int           `mapstructure:"concurrency" json:"concurrency"` // 顶级类目并发数
	Delay         time.Duration `mapstructure:"delay" json:"delay"`             // 节点之间的间隔
	Headless      bool          `mapstructure:"headless" json:"headless"`
	RespectRobots bool          `mapstructure:"respect_robots" json:"respect_robots"`
	Resume        bool          `mapstructure:"resume" json:"resume"`
	UserAgent     string        `mapstructure:"user_agent" json:"user_agent"`
}

// DefaultCrawlConfig 默认遍历配置
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Threshold:         250,
		MaxDepth:          4,
		MaxPages:          200,
		MaxEmptyPages:     3,
		MaxPageFailures:   3,
		NavigationTimeout: 30 * time.Second,
		CountTimeout:      3 * time.Second,
		PollInterval:      time.Second,
		StableReads:       3,
		MaxPolls:          55,
		SettleDelay:       1500 * time.Millisecond,
		MaxRetries:        2,
		RetryBackoff:      2 * time.Second,
		Concurrency:       1,
		Headless:          true,
	}
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("阈值必须大于0")
	}
	if c.MaxDepth < 0 || c.MaxDepth > 10 {
		return fmt.Errorf("最大展开深度必须在0-10之间")
	}
	if c.MaxPages < 1 || c.MaxPages > 1000 {
		return fmt.Errorf("最大页数必须在1-1000之间")
	}
	if c.MaxEmptyPages < 1 {
		return fmt.Errorf("连续空页上限必须大于0")
	}
	if c.MaxPageFailures < 1 {
		return fmt.Errorf("抽取失败上限必须大于0")
	}
	if c.NavigationTimeout <= 0 || c.CountTimeout <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("超时与轮询间隔必须大于0")
	}
	if c.StableReads < 1 || c.MaxPolls < c.StableReads {
		return fmt.Errorf("稳定读取次数必须大于0且不超过最大轮询次数")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("重试次数必须在0-10之间")
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		return fmt.Errorf("并发数必须在1-16之间")
	}
	return nil
}

// CrawlTask 一次站点遍历任务
type CrawlTask struct {
	ID          string     `json:"id"`
	Site        string     `json:"site"`
	Roots       []string   `json:"roots"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Config CrawlConfig `json:"config"`
	Status TaskStatus  `json:"status"`
	Stats  TaskStats   `json:"stats"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewCrawlTask 创建新任务
func NewCrawlTask(site string, roots []ListingNode, config CrawlConfig) (*CrawlTask, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("站点 %s 没有可遍历的入口", site)
	}
	urls := make([]string, 0, len(roots))
	for _, r := range roots {
		if err := ValidateURL(r.URL); err != nil {
			return nil, err
		}
		urls = append(urls, r.URL)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &CrawlTask{
		ID:        generateID(),
		Site:      site,
		Roots:     urls,
		CreatedAt: time.Now(),
		Config:    config,
		Status:    TaskStatusPending,
	}, nil
}

// ToJSON 序列化为JSON
func (t *CrawlTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// FromJSON 从JSON反序列化
func (t *CrawlTask) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}
