// Package sysinfo snapshots host resource usage for the system endpoints.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    uint64  `json:"memory_used_bytes"`
	MemoryTotal   uint64  `json:"memory_total_bytes"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskFree      uint64  `json:"disk_free_bytes"`
	DiskTotal     uint64  `json:"disk_total_bytes"`
	NumGoroutines int     `json:"num_goroutines"`
}

// Collect gathers a best-effort snapshot. Individual probe failures leave
// their fields zeroed rather than failing the whole call.
func Collect(diskPath string) Snapshot {
	var s Snapshot
	s.NumGoroutines = runtime.NumGoroutine()

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
		s.MemoryUsed = vm.Used
		s.MemoryTotal = vm.Total
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	if du, err := disk.Usage(diskPath); err == nil {
		s.DiskPercent = du.UsedPercent
		s.DiskFree = du.Free
		s.DiskTotal = du.Total
	}

	return s
}
