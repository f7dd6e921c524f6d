package core

import (
	"context"
	"os"
	"testing"
)

func TestFileCheckpointStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileCheckpointStore(dir, "run-1")
	if err != nil {
		t.Fatalf("NewFileCheckpointStore() error = %v", err)
	}

	done, err := store.IsDone(ctx, "inkafarma", "https://inkafarma.pe/categoria/salud")
	if err != nil || done {
		t.Fatalf("新存储不应有已完成节点: %v %v", done, err)
	}

	if err := store.MarkDone(ctx, "inkafarma", "https://inkafarma.pe/categoria/salud/"); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}

	// 重新打开, 从文件读取
	reopened, err := NewFileCheckpointStore(dir, "run-2")
	if err != nil {
		t.Fatalf("NewFileCheckpointStore() error = %v", err)
	}
	done, err = reopened.IsDone(ctx, "inkafarma", "https://inkafarma.pe/categoria/salud")
	if err != nil || !done {
		t.Errorf("重新打开后应读到已完成节点: %v %v", done, err)
	}

	other, _ := reopened.IsDone(ctx, "plazavea", "https://inkafarma.pe/categoria/salud")
	if other {
		t.Error("检查点应按站点隔离")
	}

	if err := reopened.MarkFailed(ctx, "inkafarma", "https://inkafarma.pe/categoria/belleza"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	failed, err := reopened.FailedNodes(ctx, "inkafarma")
	if err != nil || len(failed) != 1 || failed[0] != "https://inkafarma.pe/categoria/belleza" {
		t.Errorf("FailedNodes() = %v, %v", failed, err)
	}
	if done, _ := reopened.IsDone(ctx, "inkafarma", "https://inkafarma.pe/categoria/belleza"); done {
		t.Error("失败节点不应视为已完成")
	}

	if err := reopened.Reset(ctx, "inkafarma"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	done, _ = reopened.IsDone(ctx, "inkafarma", "https://inkafarma.pe/categoria/salud")
	if done {
		t.Error("Reset后不应有已完成节点")
	}

	// 不存在时Reset不报错
	if err := reopened.Reset(ctx, "tottus"); err != nil {
		t.Errorf("Reset不存在的站点不应报错: %v", err)
	}
}

// 需要真实Redis: REDIS_URL=redis://localhost:6379/0 go test ./internal/core
func TestRedisCheckpointStore_Integration(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("未设置REDIS_URL")
	}
	ctx := context.Background()

	store, err := NewRedisCheckpointStore(ctx, redisURL, "catalogcrawl:test")
	if err != nil {
		t.Fatalf("NewRedisCheckpointStore() error = %v", err)
	}
	defer store.Close()
	defer store.Reset(ctx, "tottus")

	url := "https://www.tottus.com.pe/tottus-pe/lista/CATG16827/Abarrotes"
	if err := store.MarkDone(ctx, "tottus", url+"/"); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}
	if done, err := store.IsDone(ctx, "tottus", url); err != nil || !done {
		t.Errorf("IsDone() = %v, %v", done, err)
	}

	if err := store.MarkFailed(ctx, "tottus", url+"/Arroz"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if failed, err := store.FailedNodes(ctx, "tottus"); err != nil || len(failed) != 1 {
		t.Errorf("FailedNodes() = %v, %v", failed, err)
	}
	if err := store.MarkDone(ctx, "tottus", url+"/Arroz"); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}
	if failed, _ := store.FailedNodes(ctx, "tottus"); len(failed) != 0 {
		t.Errorf("完成后应移出失败集合: %v", failed)
	}
	if err := store.Reset(ctx, "tottus"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if done, _ := store.IsDone(ctx, "tottus", url); done {
		t.Error("Reset后不应有已完成节点")
	}
}
