package api

import (
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/aggregate"
)

const (
	mb = 1024.0 * 1024.0
	gb = mb * 1024.0
)

// systemStats is one snapshot of the host the bridge runs on, usually a
// Raspberry Pi next to the broker. Values that could not be read stay 0.
type systemStats struct {
	AppRAMMB    float64 `json:"app_ram_mb"`
	RAMUsedMB   float64 `json:"ram_used_mb"`
	RAMTotalMB  float64 `json:"ram_total_mb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskTotalGB float64 `json:"disk_total_gb"`
}

func collectStats(logger *slog.Logger) systemStats {
	var s systemStats

	// RSS: physical RAM held by this process, without swap.
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			s.AppRAMMB = aggregate.Round2(float64(info.RSS) / mb)
		} else {
			logger.Warn("Cannot read process memory", "error", err)
		}
	}

	// Used = Total - Available. vm.Used would count the page cache, which
	// Linux hands back to applications on demand.
	if vm, err := mem.VirtualMemory(); err == nil {
		s.RAMUsedMB = aggregate.Round2(float64(vm.Total-vm.Available) / mb)
		s.RAMTotalMB = aggregate.Round2(float64(vm.Total) / mb)
	} else {
		logger.Warn("Cannot read host memory", "error", err)
	}

	if du, err := disk.Usage("/"); err == nil {
		s.DiskUsedGB = aggregate.Round2(float64(du.Used) / gb)
		s.DiskTotalGB = aggregate.Round2(float64(du.Total) / gb)
	} else {
		logger.Warn("Cannot read disk usage", "error", err)
	}
	return s
}
