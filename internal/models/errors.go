package models

import (
	"errors"
	"fmt"
)

// 遍历错误分类
var (
	ErrFetchTimeout      = errors.New("页面加载超时")
	ErrExtractionEmpty   = errors.New("页面未解析到任何商品")
	ErrFieldRejected     = errors.New("商品字段被拒绝")
	ErrPlannerAmbiguous  = errors.New("计数超过阈值但未找到子类目")
	ErrSinkFailure       = errors.New("记录持久化失败")
	ErrBrowserCrashed    = errors.New("浏览器崩溃")
	ErrMaxRetriesReached = errors.New("已达最大重试次数")
	ErrRobotsDisallowed  = errors.New("robots.txt禁止访问")
	ErrElementNotFound   = errors.New("页面元素不存在")
	ErrPageClosed        = errors.New("页面已关闭")
)

// RejectReason 记录被拒绝的原因
type RejectReason string

const (
	RejectNoPrice RejectReason = "no_price"
	RejectNoName  RejectReason = "no_name"
)

// Rejection 单条记录归一化失败
// errors.Is(err, ErrFieldRejected) 对其成立
type Rejection struct {
	Reason RejectReason
	Name   string
}

// Error 实现error接口
func (r *Rejection) Error() string {
	if r.Name == "" {
		return fmt.Sprintf("商品被拒绝: %s", r.Reason)
	}
	return fmt.Sprintf("商品被拒绝 [%s]: %s", r.Name, r.Reason)
}

// Unwrap 支持errors.Is
func (r *Rejection) Unwrap() error {
	return ErrFieldRejected
}

// Reject 构造拒绝错误
func Reject(reason RejectReason, name string) error {
	return &Rejection{Reason: reason, Name: name}
}

// ValidationError 配置校验错误
type ValidationError struct {
	// Field 出错的字段
	Field string

	// Reason 错误原因
	Reason string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置校验失败 [%s]: %s", e.Field, e.Reason)
}

// ConfigError 配置文件错误
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
