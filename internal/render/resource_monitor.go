package render

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/atlascrawl/atlas/internal/logging"
)

// resourceMonitor samples memory and CPU and derives how many concurrent
// render tabs the host can sustain, generalizing the teacher's
// ResourceMonitor from a fixed JS-crawl profile to render.concurrency.
type resourceMonitor struct {
	config monitorConfig

	mu           sync.RWMutex
	lastMemStats runtime.MemStats
	totalMemory  uint64

	cacheMu       sync.RWMutex
	cachedMaxTabs int
	lastCacheTime time.Time

	cpuMu        sync.RWMutex
	lastCPUUsage float64

	cancel    context.CancelFunc
	isRunning bool
}

type monitorConfig struct {
	SafetyReserveMemory int64
	SafetyThreshold     int64
	CPULoadThreshold    int
	MaxTabsLimit        int
	TabMemoryUsage      int64
}

func newResourceMonitor(cfg monitorConfig) *resourceMonitor {
	if cfg.TabMemoryUsage == 0 {
		cfg.TabMemoryUsage = 100 * 1024 * 1024
	}

	var totalMem uint64
	if vm, err := mem.VirtualMemory(); err != nil {
		logging.Warnf("reading system memory failed, assuming 4GB: %v", err)
		totalMem = 4 * 1024 * 1024 * 1024
	} else {
		totalMem = vm.Total
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &resourceMonitor{
		config:       cfg,
		totalMemory:  totalMem,
		lastMemStats: memStats,
	}
}

func (rm *resourceMonitor) start(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel
	rm.isRunning = true
	go rm.loop(ctx, interval)
}

func (rm *resourceMonitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			rm.mu.Lock()
			rm.lastMemStats = memStats
			rm.mu.Unlock()

			usage := rm.sampleCPU()
			rm.cpuMu.Lock()
			rm.lastCPUUsage = usage
			rm.cpuMu.Unlock()
		}
	}
}

func (rm *resourceMonitor) sampleCPU() float64 {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		return 0.0
	}
	return percentages[0]
}

func (rm *resourceMonitor) stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isRunning && rm.cancel != nil {
		rm.cancel()
		rm.isRunning = false
		rm.cancel = nil
	}
}

// maxTabs computes the current concurrent-tab ceiling, caching the result
// for one second the way the teacher's CalculateMaxTabs does.
func (rm *resourceMonitor) maxTabs() int {
	rm.cacheMu.RLock()
	if time.Since(rm.lastCacheTime) < time.Second && rm.cachedMaxTabs > 0 {
		cached := rm.cachedMaxTabs
		rm.cacheMu.RUnlock()
		return cached
	}
	rm.cacheMu.RUnlock()

	rm.mu.RLock()
	alloc := rm.lastMemStats.Alloc
	rm.mu.RUnlock()

	available := int64(rm.totalMemory) - int64(alloc) - rm.config.SafetyReserveMemory

	byMemory := 1
	if available > rm.config.SafetyThreshold {
		surplus := available - rm.config.SafetyThreshold
		byMemory = int(surplus / rm.config.TabMemoryUsage)
		if byMemory < 1 {
			byMemory = 1
		}
	}

	byCPU := runtime.NumCPU()

	result := byMemory
	if byCPU < result {
		result = byCPU
	}
	if rm.config.MaxTabsLimit > 0 && rm.config.MaxTabsLimit < result {
		result = rm.config.MaxTabsLimit
	}
	if result < 1 {
		result = 1
	}

	rm.cacheMu.Lock()
	rm.cachedMaxTabs = result
	rm.lastCacheTime = time.Now()
	rm.cacheMu.Unlock()

	return result
}

// checkAvailability reports whether a new tab may be created right now.
func (rm *resourceMonitor) checkAvailability() (bool, string) {
	rm.mu.RLock()
	alloc := rm.lastMemStats.Alloc
	rm.mu.RUnlock()

	available := int64(rm.totalMemory) - int64(alloc) - rm.config.SafetyReserveMemory
	if available < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("insufficient memory (%dMB available)", available/(1024*1024))
	}

	if rm.config.CPULoadThreshold > 0 && rm.config.CPULoadThreshold < 200 {
		rm.cpuMu.RLock()
		usage := rm.lastCPUUsage
		rm.cpuMu.RUnlock()
		if usage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU load too high (%.1f%%)", usage)
		}
	}

	return true, ""
}
