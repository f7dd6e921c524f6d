// Package sinks 商品记录的持久化目标
package sinks

import (
	"context"
	"errors"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// MultiSink 同时写入多个目标
// 某个目标失败时其余目标照常写入, 错误合并返回
type MultiSink struct {
	sinks []models.Sink
}

// NewMultiSink 组合多个写入端
func NewMultiSink(sinks ...models.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Persist 写入全部目标
func (m *MultiSink) Persist(ctx context.Context, record models.ProductRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Persist(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部目标
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
