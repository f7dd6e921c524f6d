package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// CheckpointStore 已完成叶子节点的持久化记录
type CheckpointStore interface {
	IsDone(ctx context.Context, site, nodeURL string) (bool, error)
	MarkDone(ctx context.Context, site, nodeURL string) error
	MarkFailed(ctx context.Context, site, nodeURL string) error
	Reset(ctx context.Context, site string) error
	Close() error
}

// FileCheckpointStore 每个站点一个JSON文件
type FileCheckpointStore struct {
	dir   string
	runID string

	mu    sync.Mutex
	cache map[string]*models.Checkpoint
}

// NewFileCheckpointStore 创建文件检查点存储
func NewFileCheckpointStore(dir, runID string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建检查点目录失败: %w", err)
	}
	return &FileCheckpointStore{
		dir:   dir,
		runID: runID,
		cache: make(map[string]*models.Checkpoint),
	}, nil
}

func (s *FileCheckpointStore) path(site string) string {
	return filepath.Join(s.dir, models.CheckpointFilename(site))
}

// load 读取站点检查点, 调用方持有锁
func (s *FileCheckpointStore) load(site string) (*models.Checkpoint, error) {
	if cp, ok := s.cache[site]; ok {
		return cp, nil
	}

	cp, err := models.LoadCheckpointFromFile(s.path(site))
	if errors.Is(err, os.ErrNotExist) {
		now := time.Now()
		cp = &models.Checkpoint{Site: site, RunID: s.runID, CreatedAt: now, UpdatedAt: now}
	} else if err != nil {
		return nil, fmt.Errorf("加载检查点失败: %w", err)
	} else {
		utils.Infof("📍 加载检查点: %s (已完成 %d 个节点)", site, len(cp.CompletedNodes))
	}

	s.cache[site] = cp
	return cp, nil
}

// IsDone 节点是否已完成
func (s *FileCheckpointStore) IsDone(ctx context.Context, site, nodeURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.load(site)
	if err != nil {
		return false, err
	}
	return cp.IsCompleted(models.CanonicalURL(nodeURL)), nil
}

// MarkDone 记录完成的节点并立即落盘
func (s *FileCheckpointStore) MarkDone(ctx context.Context, site, nodeURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.load(site)
	if err != nil {
		return err
	}
	cp.RunID = s.runID
	cp.MarkCompleted(models.CanonicalURL(nodeURL))
	return cp.SaveToFile(s.path(site))
}

// MarkFailed 记录重试耗尽的节点并立即落盘
func (s *FileCheckpointStore) MarkFailed(ctx context.Context, site, nodeURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.load(site)
	if err != nil {
		return err
	}
	cp.RunID = s.runID
	cp.MarkFailed(models.CanonicalURL(nodeURL))
	return cp.SaveToFile(s.path(site))
}

// FailedNodes 站点的失败节点
func (s *FileCheckpointStore) FailedNodes(ctx context.Context, site string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.load(site)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), cp.FailedNodes...), nil
}

// Reset 删除站点检查点
func (s *FileCheckpointStore) Reset(ctx context.Context, site string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, site)
	if err := os.Remove(s.path(site)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除检查点失败: %w", err)
	}
	return nil
}

// Close 无需释放资源
func (s *FileCheckpointStore) Close() error {
	return nil
}

// RedisCheckpointStore 每个站点一个Redis集合
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCheckpointStore 连接Redis并检查可用性
func NewRedisCheckpointStore(ctx context.Context, redisURL, prefix string) (*RedisCheckpointStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("解析Redis地址失败: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接Redis失败 [%s]: %w", utils.RedactDSN(redisURL), err)
	}

	if prefix == "" {
		prefix = "catalogcrawl:checkpoint"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix}, nil
}

// NewRedisCheckpointStoreFromClient 使用已有客户端
func NewRedisCheckpointStoreFromClient(client *redis.Client, prefix string) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "catalogcrawl:checkpoint"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix}
}

func (s *RedisCheckpointStore) key(site string) string {
	return s.prefix + ":" + site
}

func (s *RedisCheckpointStore) failedKey(site string) string {
	return s.key(site) + ":failed"
}

// IsDone 节点是否已完成
func (s *RedisCheckpointStore) IsDone(ctx context.Context, site, nodeURL string) (bool, error) {
	return s.client.SIsMember(ctx, s.key(site), models.CanonicalURL(nodeURL)).Result()
}

// MarkDone 记录完成的节点, 同时移出失败集合
func (s *RedisCheckpointStore) MarkDone(ctx context.Context, site, nodeURL string) error {
	u := models.CanonicalURL(nodeURL)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.key(site), u)
		pipe.SRem(ctx, s.failedKey(site), u)
		return nil
	})
	return err
}

// MarkFailed 记录重试耗尽的节点
func (s *RedisCheckpointStore) MarkFailed(ctx context.Context, site, nodeURL string) error {
	return s.client.SAdd(ctx, s.failedKey(site), models.CanonicalURL(nodeURL)).Err()
}

// FailedNodes 站点的失败节点
func (s *RedisCheckpointStore) FailedNodes(ctx context.Context, site string) ([]string, error) {
	return s.client.SMembers(ctx, s.failedKey(site)).Result()
}

// Reset 删除站点集合
func (s *RedisCheckpointStore) Reset(ctx context.Context, site string) error {
	return s.client.Del(ctx, s.key(site), s.failedKey(site)).Err()
}

// Close 关闭连接
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}
