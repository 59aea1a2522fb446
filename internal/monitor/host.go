/*
PURPOSE:
  Samples host CPU and memory usage for the session journal.

REQUIREMENTS:
  User-specified:
  - Record host load next to every iteration when --host-stats is set.

  Implementation-discovered:
  - The first CPU reading has no interval to average over; cpu.Percent(0)
    compares against the previous call.

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer (handler), internal/engine (Options)
  - Dependencies: github.com/shirou/gopsutil/v4

ERROR HANDLING:
  - Sample returns errors; the trainer logs them and journals no host data.

IMPLEMENTATION RULES:
  - Never block: no sampling interval.

USAGE:
  s, err := monitor.NewHostSampler().Sample()

SELF-HEALING INSTRUCTIONS:
  - On platforms without procfs gopsutil may fail; the journal still works.

RELATED FILES:
  - internal/output/json.go

MAINTENANCE:
  - Add fields to Sample when more host metrics are needed.
*/

package monitor

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sample is a point-in-time snapshot of host resource usage.
type Sample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemUsedBytes  uint64    `json:"mem_used_bytes"`
	MemTotalBytes uint64    `json:"mem_total_bytes"`
	MemPercent    float64   `json:"mem_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sampler collects a host sample.
type Sampler interface {
	Sample() (*Sample, error)
}

// HostSampler reads CPU and memory usage of the local machine.
type HostSampler struct{}

func NewHostSampler() *HostSampler {
	return &HostSampler{}
}

func (h *HostSampler) Sample() (*Sample, error) {
	// interval 0 compares against the previous call
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return nil, err
	}

	var overall float64
	if len(percentages) > 0 {
		overall = percentages[0]
	}

	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}

	return &Sample{
		CPUPercent:    overall,
		MemUsedBytes:  v.Used,
		MemTotalBytes: v.Total,
		MemPercent:    v.UsedPercent,
		Timestamp:     time.Now(),
	}, nil
}
