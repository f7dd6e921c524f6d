package models

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Checkpoint 断点续爬状态
// 只记录已完成抽取的叶子节点, 展开节点在恢复时重新规划
type Checkpoint struct {
	// 任务信息
	RunID string `json:"run_id"` // 最近一次写入的运行ID
	Site  string `json:"site"`   // 站点名称

	// 进度信息
	CompletedNodes []string `json:"completed_nodes"`        // 已完成的叶子节点URL
	FailedNodes    []string `json:"failed_nodes,omitempty"` // 重试耗尽的节点URL, 恢复时会重新访问

	// 时间戳
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointFilename 生成检查点文件名
func CheckpointFilename(site string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, site)
	return fmt.Sprintf("checkpoint_%s.json", safe)
}

// IsCompleted 节点是否已完成
func (c *Checkpoint) IsCompleted(url string) bool {
	for _, u := range c.CompletedNodes {
		if u == url {
			return true
		}
	}
	return false
}

// MarkCompleted 记录完成的节点, 重复记录无副作用
// 之前失败过的节点从失败列表移除
func (c *Checkpoint) MarkCompleted(url string) {
	c.FailedNodes = removeString(c.FailedNodes, url)
	if c.IsCompleted(url) {
		return
	}
	c.CompletedNodes = append(c.CompletedNodes, url)
	c.UpdatedAt = time.Now()
}

// MarkFailed 记录重试耗尽的节点
func (c *Checkpoint) MarkFailed(url string) {
	for _, u := range c.FailedNodes {
		if u == url {
			return
		}
	}
	c.FailedNodes = append(c.FailedNodes, url)
	c.UpdatedAt = time.Now()
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// ToJSON 序列化为JSON
func (c *Checkpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *Checkpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 保存到文件
func (c *Checkpoint) SaveToFile(filepath string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadCheckpointFromFile 从文件加载
func LoadCheckpointFromFile(filepath string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, err
	}

	return &cp, nil
}
