package metrics

import (
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemSnapshot is a point-in-time view of host and process resources
type SystemSnapshot struct {
	HostCPUPercent    float64 `json:"host_cpu_percent"`
	HostMemoryPercent float64 `json:"host_memory_percent"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessRSSBytes   uint64  `json:"process_rss_bytes"`
	ProcessRSS        string  `json:"process_rss"`
	Goroutines        int     `json:"goroutines"`
	Uptime            string  `json:"uptime"`
}

// SystemProbe samples resource usage of the running process and its host
type SystemProbe struct {
	proc    *process.Process
	started time.Time
}

// NewSystemProbe creates a probe for the current process
func NewSystemProbe() (*SystemProbe, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &SystemProbe{proc: proc, started: time.Now()}, nil
}

// Snapshot samples current usage. Metrics the platform cannot report are left zero.
func (p *SystemProbe) Snapshot() SystemSnapshot {
	snapshot := SystemSnapshot{
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(p.started).Round(time.Second).String(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.HostCPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.HostMemoryPercent = vm.UsedPercent
	}
	if cpuPercent, err := p.proc.CPUPercent(); err == nil {
		snapshot.ProcessCPUPercent = cpuPercent
	}
	if memInfo, err := p.proc.MemoryInfo(); err == nil {
		snapshot.ProcessRSSBytes = memInfo.RSS
		snapshot.ProcessRSS = humanize.IBytes(memInfo.RSS)
	}

	return snapshot
}
