package sinks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
)

// JSONLSink 每条记录一行JSON
type JSONLSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	count  int
}

// NewJSONLSink 以追加方式打开记录文件
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开记录文件失败: %w", err)
	}
	return &JSONLSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Path 记录文件路径
func (s *JSONLSink) Path() string {
	return s.path
}

// Persist 写入一条记录
func (s *JSONLSink) Persist(ctx context.Context, record models.ProductRecord) error {
	data, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}
	if _, err := s.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	s.count++
	return nil
}

// Count 已写入的记录数
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close 刷新缓冲并关闭文件, 可重复调用
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
