package models

import (
	"strconv"
	"strings"
)

// Count 列表页的结果数量估计
// Known为false表示页面上没有可读的计数
type Count struct {
	Value int  `json:"value"`
	Known bool `json:"known"`
}

// UnknownCount 未知计数
var UnknownCount = Count{}

// KnownCount 构造已知计数
func KnownCount(n int) Count {
	return Count{Value: n, Known: true}
}

// String 便于日志输出
func (c Count) String() string {
	if !c.Known {
		return "unknown"
	}
	return strconv.Itoa(c.Value)
}

// ListingNode 类目树中的一个列表页节点
// 创建后不再修改: 要么直接抽取,要么展开为子节点
type ListingNode struct {
	// URL 列表页地址
	URL string `json:"url"`

	// LabelPath 类目路径 (类目, 子类目, ...)
	LabelPath []string `json:"label_path"`

	// EstimatedCount 页面计数标签读出的结果数
	EstimatedCount Count `json:"estimated_count"`

	// Depth 展开深度, 根节点为0
	Depth int `json:"depth"`
}

// NewRootNode 创建遍历根节点
func NewRootNode(url string, labels ...string) ListingNode {
	return ListingNode{
		URL:       url,
		LabelPath: append([]string(nil), labels...),
	}
}

// Child 派生子节点, 继承父节点的类目路径
func (n ListingNode) Child(url, label string) ListingNode {
	path := make([]string, 0, len(n.LabelPath)+1)
	path = append(path, n.LabelPath...)
	if label != "" {
		path = append(path, label)
	}
	return ListingNode{
		URL:       url,
		LabelPath: path,
		Depth:     n.Depth + 1,
	}
}

// WithCount 返回带计数的副本
func (n ListingNode) WithCount(c Count) ListingNode {
	n.LabelPath = append([]string(nil), n.LabelPath...)
	n.EstimatedCount = c
	return n
}

// Category 顶级类目
func (n ListingNode) Category() string {
	if len(n.LabelPath) == 0 {
		return ""
	}
	return n.LabelPath[0]
}

// SubCategory 最深一级子类目
func (n ListingNode) SubCategory() string {
	if len(n.LabelPath) < 2 {
		return ""
	}
	return n.LabelPath[len(n.LabelPath)-1]
}

// PathString 类目路径的可读形式
func (n ListingNode) PathString() string {
	return strings.Join(n.LabelPath, " > ")
}

// ActionKind 规划结果类型
type ActionKind int

const (
	ActionExtractDirect ActionKind = iota // 直接抽取
	ActionExpand                          // 展开子类目
)

// String 便于日志输出
func (k ActionKind) String() string {
	switch k {
	case ActionExpand:
		return "expand"
	default:
		return "extract_direct"
	}
}

// Action 遍历规划器的决策
type Action struct {
	Kind     ActionKind    `json:"kind"`
	Children []ListingNode `json:"children,omitempty"`

	// Count 规划时读到的计数
	Count Count `json:"count"`

	// Degraded 计数达到阈值却没能展开, 退化为直接抽取
	Degraded bool `json:"degraded,omitempty"`
}

// ExtractDirect 直接抽取
func ExtractDirect() Action {
	return Action{Kind: ActionExtractDirect}
}

// DegradedExtract 退化的直接抽取
func DegradedExtract() Action {
	return Action{Kind: ActionExtractDirect, Degraded: true}
}

// Expand 展开为子节点
func Expand(children []ListingNode) Action {
	return Action{Kind: ActionExpand, Children: children}
}
