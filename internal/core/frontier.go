package core

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// VisitedSet 一次运行内已访问的列表URL
// 多个入口并发遍历时共享同一个实例
type VisitedSet struct {
	mu   sync.RWMutex
	seen map[string]bool
}

// NewVisitedSet 创建已访问集合
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]bool)}
}

// Claim 标记URL为已访问, 之前未访问过时返回true
func (v *VisitedSet) Claim(rawURL string) bool {
	key := models.CanonicalURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seen[key] {
		return false
	}
	v.seen[key] = true
	return true
}

// Contains 检查URL是否已访问
func (v *VisitedSet) Contains(rawURL string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.seen[models.CanonicalURL(rawURL)]
}

// Len 已访问数量
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.seen)
}

// Frontier 单个入口的深度优先待访问栈
// 只在一个goroutine内使用
type Frontier struct {
	stack   []models.ListingNode
	visited *VisitedSet

	// 入口主机名, 子节点不允许跨站
	host string
}

// NewFrontier 以入口节点创建待访问栈
func NewFrontier(root models.ListingNode, visited *VisitedSet) (*Frontier, error) {
	parsed, err := url.Parse(root.URL)
	if err != nil {
		return nil, fmt.Errorf("URL格式无效: %w", err)
	}
	f := &Frontier{
		visited: visited,
		host:    strings.ToLower(parsed.Host),
	}
	f.stack = append(f.stack, root)
	return f, nil
}

// Push 压入子节点, 按给定顺序出栈
// 跨站或已访问的节点被过滤
func (f *Frontier) Push(children []models.ListingNode) int {
	pushed := 0
	for i := len(children) - 1; i >= 0; i-- {
		child := children[i]
		if err := f.check(child.URL); err != nil {
			continue
		}
		f.stack = append(f.stack, child)
		pushed++
	}
	return pushed
}

func (f *Frontier) check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("不支持的协议: %s", parsed.Scheme)
	}
	if strings.ToLower(parsed.Host) != f.host {
		return fmt.Errorf("跨站链接已过滤: %s (入口: %s)", parsed.Host, f.host)
	}
	if f.visited.Contains(rawURL) {
		return fmt.Errorf("URL已访问: %s", rawURL)
	}
	return nil
}

// Pop 取出下一个节点
func (f *Frontier) Pop() (models.ListingNode, bool) {
	if len(f.stack) == 0 {
		return models.ListingNode{}, false
	}
	n := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return n, true
}

// Len 待访问数量
func (f *Frontier) Len() int {
	return len(f.stack)
}
