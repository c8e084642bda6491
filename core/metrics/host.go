package metrics

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSample is one point-in-time reading of the generator host's load.
// Long runs can saturate the generator itself; the coordinator publishes
// these periodically so a dataset capture records when that happened.
type HostSample struct {
	CPUPercent   float64 `json:"cpu_percent"`
	MemPercent   float64 `json:"mem_percent"`
	MemUsedBytes uint64  `json:"mem_used_bytes"`
}

// HostSampler reads host CPU and memory usage.
type HostSampler struct{}

// NewHostSampler returns a sampler. The first CPU reading after construction
// reports zero; gopsutil measures deltas between calls.
func NewHostSampler() *HostSampler {
	_, _ = cpu.Percent(0, false)
	return &HostSampler{}
}

// Sample reads the current host load.
func (s *HostSampler) Sample() (HostSample, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return HostSample{}, fmt.Errorf("failed to read CPU usage: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostSample{}, fmt.Errorf("failed to read memory usage: %w", err)
	}
	sample := HostSample{
		MemPercent:   vm.UsedPercent,
		MemUsedBytes: vm.Used,
	}
	if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	return sample, nil
}
