// Package metrics samples local host resource pressure so the Agent can
// decide db_status/api_status before each heartbeat. Sampled values never
// cross the wire themselves — only the derived health enums do — so this
// package does not widen the frozen HEARTBEAT frame schema.
package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// sampleTimeout bounds each gopsutil call so a slow /proc read can never
// stall the heartbeat loop.
const sampleTimeout = 2 * time.Second

// Snapshot is one point-in-time reading of host resource pressure.
type Snapshot struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// Sample collects a Snapshot. Any individual reading that fails is left at
// zero rather than aborting the whole sample — a single unavailable gauge
// (e.g. no disk mounted at "/") should not block heartbeat delivery.
func Sample(diskPath string) Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()

	var snap Snapshot

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemPercent = vm.UsedPercent
	}

	if diskPath == "" {
		diskPath = "/"
	}
	if du, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		snap.DiskPercent = du.UsedPercent
	}

	return snap
}

// Pressured reports whether resource usage has crossed a threshold severe
// enough that the Agent should report its local back-ends as degraded
// rather than connected, even though the connections themselves still work.
func (s Snapshot) Pressured() bool {
	const threshold = 95.0
	return s.MemPercent >= threshold || s.DiskPercent >= threshold
}
