package models

import (
	"context"
)

// Page 已渲染的页面会话
// 同一时刻只归属一个遍历步骤, 使用完毕必须Close
type Page interface {
	// URL 当前页面地址
	URL() string

	// HTML 返回当前渲染后的完整HTML
	HTML(ctx context.Context) (string, error)

	// Text 读取首个匹配元素的文本
	// 元素不存在或ctx超时返回ErrElementNotFound
	Text(ctx context.Context, selector string) (string, error)

	// Height 返回容器的scrollHeight, 容器不存在时退回document.body
	Height(ctx context.Context, containerSelector string) (int, error)

	// ScrollTo 滚动到指定高度
	ScrollTo(ctx context.Context, y int) error

	// Click 点击首个匹配的可用元素
	// 元素不存在或被禁用时返回false, 不报错
	Click(ctx context.Context, selector string) (bool, error)

	// Close 释放页面资源, 可重复调用
	Close() error
}

// Fetcher 页面获取器
type Fetcher interface {
	// Navigate 打开URL并等待DOM就绪
	// 超时返回包装了ErrFetchTimeout的错误
	Navigate(ctx context.Context, url string) (Page, error)

	// Close 关闭底层浏览器/连接
	Close() error
}

// Sink 商品记录的持久化目标
type Sink interface {
	// Persist 写入一条记录
	Persist(ctx context.Context, record ProductRecord) error

	// Close 刷新并关闭
	Close() error
}

// Extractor 从渲染后的HTML中抽取商品原始字段
type Extractor interface {
	Extract(html string) ([]RawProductFields, error)
}
