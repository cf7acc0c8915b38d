// Package monitoring samples host-level stats for health responses and
// system:pong replies.
package monitoring

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is a point-in-time host snapshot.
type SystemStats struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryUsedMB  uint64  `json:"memoryUsedMb"`
	DiskPercent   float64 `json:"diskPercent"`
	SampledAt     int64   `json:"sampledAt"`
}

// Sampler collects system stats with a short cache so health endpoints and
// chatty WebSocket clients do not hammer the OS.
type Sampler struct {
	mu     sync.Mutex
	last   SystemStats
	maxAge time.Duration
}

// NewSampler creates a sampler; samples are cached for maxAge.
func NewSampler(maxAge time.Duration) *Sampler {
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	return &Sampler{maxAge: maxAge}
}

// Sample returns current stats, refreshing when the cache has aged out.
func (s *Sampler) Sample() SystemStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.UnixMilli()-s.last.SampledAt < s.maxAge.Milliseconds() && s.last.SampledAt > 0 {
		return s.last
	}

	stats := SystemStats{SampledAt: now.UnixMilli()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	if usage, err := disk.Usage("/"); err == nil {
		stats.DiskPercent = usage.UsedPercent
	}

	s.last = stats
	return stats
}

// AsMap renders the stats for JSON payloads.
func (s *Sampler) AsMap() map[string]interface{} {
	stats := s.Sample()
	return map[string]interface{}{
		"cpuPercent":    stats.CPUPercent,
		"memoryPercent": stats.MemoryPercent,
		"memoryUsedMb":  stats.MemoryUsedMB,
		"diskPercent":   stats.DiskPercent,
		"sampledAt":     stats.SampledAt,
	}
}
