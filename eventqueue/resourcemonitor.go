package eventqueue

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// minSampleInterval is the minimum time between CPU re-samples; calls
// within the window reuse the last computed value rather than re-reading
// /proc (or the platform equivalent).
const minSampleInterval = 100 * time.Millisecond

// ResourceMonitor polls process memory and host CPU utilization for the
// queue's backpressure policy. CPU utilization is derived from per-core
// {user+nice+sys+irq+idle} tick deltas between samples, matching the
// runtime's documented heuristic rather than a single point-in-time
// percentage.
type ResourceMonitor struct {
	mu         sync.Mutex
	proc       *process.Process
	lastTimes  []cpu.TimesStat
	lastSample time.Time
	lastCPU    float64
	haveSample bool
}

// NewResourceMonitor constructs a monitor for the current process.
func NewResourceMonitor() *ResourceMonitor {
	m := &ResourceMonitor{}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.proc = p
	}
	return m
}

// MemoryUsage returns process RSS divided by host total RAM, in [0, 1].
// Unavailable samples return 0.
func (m *ResourceMonitor) MemoryUsage() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return 0
	}
	if m.proc == nil {
		return 0
	}
	info, err := m.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / float64(vm.Total)
}

// CPUUsage returns the fraction of CPU busy across all cores since the
// last sample. The first call returns 0.5 (no baseline yet); calls within
// minSampleInterval of the last reuse the previous value; on a read
// failure the last known value is reused.
func (m *ResourceMonitor) CPUUsage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.haveSample && now.Sub(m.lastSample) < minSampleInterval {
		return m.lastCPU
	}

	times, err := cpu.Times(true)
	if err != nil || len(times) == 0 {
		if m.haveSample {
			return m.lastCPU
		}
		m.haveSample = true
		m.lastSample = now
		m.lastCPU = 0.5
		return m.lastCPU
	}

	if !m.haveSample || len(m.lastTimes) != len(times) {
		m.lastTimes = times
		m.lastSample = now
		m.haveSample = true
		m.lastCPU = 0.5
		return m.lastCPU
	}

	var busyDelta, totalDelta float64
	for i, t := range times {
		prev := m.lastTimes[i]
		busy := (t.User + t.Nice + t.System + t.Irq) - (prev.User + prev.Nice + prev.System + prev.Irq)
		idle := t.Idle - prev.Idle
		total := busy + idle
		if total > 0 {
			busyDelta += busy
			totalDelta += total
		}
	}

	m.lastTimes = times
	m.lastSample = now
	if totalDelta <= 0 {
		return m.lastCPU
	}
	m.lastCPU = busyDelta / totalDelta
	return m.lastCPU
}
