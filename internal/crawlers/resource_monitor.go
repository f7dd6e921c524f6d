package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// ResourceMonitor 系统资源监控器
// 并发遍历多个入口时, 按可用内存和CPU负载限制同时打开的页面数
type ResourceMonitor struct {
	config ResourceMonitorConfig

	mu            sync.RWMutex
	availableMem  uint64
	cpuUsage      float64
	lastSampledAt time.Time

	cancelFunc context.CancelFunc
	isRunning  bool

	// 便于测试替换
	sampleMemory func() (uint64, error)
	sampleCPU    func() (float64, error)
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory uint64  // 保留给系统的内存(字节)
	PageMemoryUsage     uint64  // 单个页面平均内存消耗(字节)
	CPULoadThreshold    float64 // CPU负载阈值(%), 0表示不检查
	MaxWorkersLimit     int     // 绝对上限
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		PageMemoryUsage:     150 * 1024 * 1024,
		CPULoadThreshold:    90,
		MaxWorkersLimit:     16,
	}
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.PageMemoryUsage == 0 {
		config.PageMemoryUsage = 150 * 1024 * 1024
	}
	if config.MaxWorkersLimit <= 0 {
		config.MaxWorkersLimit = 16
	}

	rm := &ResourceMonitor{
		config: config,
		sampleMemory: func() (uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.Available, nil
		},
		sampleCPU: func() (float64, error) {
			// perCPU=false 返回所有核心的平均值
			percentages, err := cpu.Percent(100*time.Millisecond, false)
			if err != nil {
				return 0, err
			}
			if len(percentages) == 0 {
				return 0, fmt.Errorf("CPU使用率数据为空")
			}
			return percentages[0], nil
		},
	}
	rm.sample()
	return rm
}

// sample 采样内存和CPU
func (rm *ResourceMonitor) sample() {
	available, err := rm.sampleMemory()
	if err != nil {
		utils.Logger.Warn().Err(err).Msg("获取系统内存失败, 使用默认值")
		available = 2 * 1024 * 1024 * 1024
	}

	usage := 0.0
	if rm.config.CPULoadThreshold > 0 {
		if usage, err = rm.sampleCPU(); err != nil {
			utils.Logger.Warn().Err(err).Msg("获取CPU使用率失败")
		}
	}

	rm.mu.Lock()
	rm.availableMem = available
	rm.cpuUsage = usage
	rm.lastSampledAt = time.Now()
	rm.mu.Unlock()
}

// StartMonitoring 启动后台采样
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// MaxWorkers 在请求的并发数和资源允许的上限之间取较小值, 至少为1
func (rm *ResourceMonitor) MaxWorkers(requested int) int {
	rm.mu.RLock()
	available := rm.availableMem
	rm.mu.RUnlock()

	byMemory := 1
	if available > rm.config.SafetyReserveMemory {
		byMemory = int((available - rm.config.SafetyReserveMemory) / rm.config.PageMemoryUsage)
	}

	result := requested
	for _, limit := range []int{byMemory, runtime.NumCPU(), rm.config.MaxWorkersLimit} {
		if limit < result {
			result = limit
		}
	}
	if result < 1 {
		result = 1
	}

	if result < requested {
		utils.Warnf("⚠️  资源受限, 并发数从 %d 降为 %d (可用内存 %.0fMB)",
			requested, result, float64(available)/(1024*1024))
	}
	return result
}

// CheckResourceAvailability 检查是否允许再打开一个页面
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	rm.mu.RLock()
	available, usage := rm.availableMem, rm.cpuUsage
	rm.mu.RUnlock()

	if available < rm.config.SafetyReserveMemory+rm.config.PageMemoryUsage {
		return false, fmt.Sprintf("内存不足(当前%dMB)", available/(1024*1024))
	}
	if rm.config.CPULoadThreshold > 0 && usage > rm.config.CPULoadThreshold {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
	}
	return true, ""
}

// WaitForCapacity 等待资源可用, 最多等待maxWait
// 超时后仍然放行, 避免遍历无限停顿
func (rm *ResourceMonitor) WaitForCapacity(ctx context.Context, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for {
		ok, reason := rm.CheckResourceAvailability()
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			utils.Warnf("⚠️  %s, 等待超时后继续", reason)
			return nil
		}
		utils.Debugf("%s, 等待资源释放", reason)
		if !Sleep(ctx, time.Second) {
			return ctx.Err()
		}
		rm.sample()
	}
}
