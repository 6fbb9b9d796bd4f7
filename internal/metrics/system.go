package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// SystemSampler tracks host-wide CPU utilization and this process's heap
// allocation, sampled once per second by the Monitor thread and
// published into the Collector's system gauges.
type SystemSampler struct {
	mu         sync.RWMutex
	cpuPercent float64
	memStats   runtime.MemStats
}

// NewSystemSampler returns a sampler with no data yet; call Sample at
// least once before reading.
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{}
}

// Sample refreshes CPU and heap readings. It blocks for up to one
// second measuring CPU percentage, matching gopsutil's sampling window,
// so callers should run it on a dedicated ticker goroutine rather than
// a hot path.
func (s *SystemSampler) Sample() {
	percents, err := cpu.Percent(time.Second, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && len(percents) > 0 {
		s.cpuPercent = percents[0]
	}
	runtime.ReadMemStats(&s.memStats)
}

// CPUPercent returns the last sampled CPU utilization.
func (s *SystemSampler) CPUPercent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpuPercent
}

// HeapAllocBytes returns the last sampled heap allocation.
func (s *SystemSampler) HeapAllocBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memStats.HeapAlloc
}

// PublishTo writes the last sample into c's system gauges.
func (s *SystemSampler) PublishTo(c *Collector) {
	c.SystemCPUPercent.Set(s.CPUPercent())
	c.SystemMemoryBytes.Set(float64(s.HeapAllocBytes()))
}
