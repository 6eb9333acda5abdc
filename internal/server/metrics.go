package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	apperrors "researchtools/internal/errors"
)

// collectSystemMetrics collects host metrics using gopsutil
func collectSystemMetrics(ctx context.Context) (map[string]interface{}, error) {
	metrics := make(map[string]interface{})

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU metrics: %w", err)
	}
	metrics["cpu"] = 0.0
	if len(cpuPercent) > 0 {
		metrics["cpu"] = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory metrics: %w", err)
	}
	metrics["memory"] = memInfo.UsedPercent

	diskInfo, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, fmt.Errorf("failed to get disk metrics: %w", err)
	}
	metrics["disk"] = diskInfo.UsedPercent

	network := map[string]interface{}{"in": uint64(0), "out": uint64(0)}
	if netInfo, err := net.IOCountersWithContext(ctx, false); err == nil && len(netInfo) > 0 {
		network["in"] = netInfo[0].BytesRecv
		network["out"] = netInfo[0].BytesSent
	}
	metrics["network"] = network

	metrics["processes"] = 0
	if processes, err := process.ProcessesWithContext(ctx); err == nil {
		metrics["processes"] = len(processes)
	}
	return metrics, nil
}

// handleSystemMetrics reports host metrics next to the service's own counters.
// Host collection failures are reported in place of the host block.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	system, err := s.collect(r.Context())
	if err != nil {
		s.logger.Warn("failed to collect system metrics", zap.Error(err))
		system = map[string]interface{}{"error": err.Error()}
	}

	app := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Jobs != nil {
		app["active_jobs"] = s.deps.Jobs.Active()
	}
	if s.deps.WS != nil {
		app["websocket_connections"] = s.deps.WS.GetConnectionCount()
	}
	if s.deps.Search != nil {
		app["indexed_sessions"] = s.deps.Search.Count()
	}

	apperrors.SendSuccess(w, map[string]interface{}{
		"system":    system,
		"service":   app,
		"timestamp": time.Now().UTC(),
	})
}
