package crawlers

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

const mb = 1024 * 1024

func newTestMonitor(available uint64, cpu float64) *ResourceMonitor {
	rm := &ResourceMonitor{
		config: ResourceMonitorConfig{
			SafetyReserveMemory: 512 * mb,
			PageMemoryUsage:     100 * mb,
			CPULoadThreshold:    90,
			MaxWorkersLimit:     16,
		},
		sampleMemory: func() (uint64, error) { return available, nil },
		sampleCPU:    func() (float64, error) { return cpu, nil },
	}
	rm.sample()
	return rm
}

func TestResourceMonitor_MaxWorkers(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		requested int
		want      int
	}{
		{"内存低于预留", 256 * mb, 8, 1},
		{"内存只够一个页面", 612 * mb, 8, 1},
		{"内存够三个页面", 812 * mb, 8, min(3, runtime.NumCPU())},
		{"请求数更小", 8192 * mb, 1, 1},
		{"请求数为零", 8192 * mb, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newTestMonitor(tt.available, 0)
			if got := rm.MaxWorkers(tt.requested); got != tt.want {
				t.Errorf("MaxWorkers(%d) = %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestResourceMonitor_CheckResourceAvailability(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		cpu       float64
		want      bool
	}{
		{"资源充足", 4096 * mb, 20, true},
		{"内存不足", 600 * mb, 20, false},
		{"CPU过载", 4096 * mb, 95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newTestMonitor(tt.available, tt.cpu)
			ok, reason := rm.CheckResourceAvailability()
			if ok != tt.want {
				t.Errorf("CheckResourceAvailability() = %v (%s), want %v", ok, reason, tt.want)
			}
			if !ok && reason == "" {
				t.Error("资源不足时应返回原因")
			}
		})
	}
}

func TestResourceMonitor_SampleFailureFallsBack(t *testing.T) {
	rm := newTestMonitor(0, 0)
	rm.sampleMemory = func() (uint64, error) { return 0, errors.New("无法读取") }
	rm.sample()

	if ok, _ := rm.CheckResourceAvailability(); !ok {
		t.Error("采样失败时应使用默认可用内存")
	}
}

func TestResourceMonitor_WaitForCapacity(t *testing.T) {
	t.Run("资源充足立即返回", func(t *testing.T) {
		rm := newTestMonitor(4096*mb, 10)
		if err := rm.WaitForCapacity(context.Background(), time.Minute); err != nil {
			t.Errorf("WaitForCapacity() error = %v", err)
		}
	})

	t.Run("等待超时后放行", func(t *testing.T) {
		rm := newTestMonitor(100*mb, 10)
		start := time.Now()
		if err := rm.WaitForCapacity(context.Background(), -time.Second); err != nil {
			t.Errorf("WaitForCapacity() error = %v", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Error("等待期限已过时不应等待")
		}
	})

	t.Run("取消", func(t *testing.T) {
		rm := newTestMonitor(100*mb, 10)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := rm.WaitForCapacity(ctx, time.Minute); !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForCapacity() error = %v, want Canceled", err)
		}
	})
}

func TestResourceMonitor_StartStop(t *testing.T) {
	rm := newTestMonitor(4096*mb, 10)
	rm.StartMonitoring(10 * time.Millisecond)
	rm.StartMonitoring(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	rm.StopMonitoring()
	rm.StopMonitoring()

	rm.mu.RLock()
	running := rm.isRunning
	rm.mu.RUnlock()
	if running {
		t.Error("StopMonitoring后不应继续运行")
	}
}
