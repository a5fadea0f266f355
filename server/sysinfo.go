package server

import (
	"os"
	"runtime"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// sysinfo describes the host the server runs on. Probes that fail are left out.
func (s *Server) sysinfo() map[string]interface{} {
	info := map[string]interface{}{
		"pid":        os.Getpid(),
		"goroutines": runtime.NumGoroutine(),
		"startedAt":  s.startTime.UTC().Format(time.RFC3339),
		"uptime":     humanize.RelTime(s.startTime, time.Now(), "", ""),
	}
	if h, err := host.Info(); err == nil {
		info["hostname"] = h.Hostname
		info["os"] = h.OS
		info["platform"] = h.Platform + " " + h.PlatformVersion
		info["kernel"] = h.KernelVersion
	} else {
		log.Debugf("host probe failed: %v", err)
	}
	if n, err := cpu.Counts(true); err == nil {
		info["cpus"] = n
	}
	if l, err := load.Avg(); err == nil {
		info["load"] = []float64{l.Load1, l.Load5, l.Load15}
	}
	if m, err := mem.VirtualMemory(); err == nil {
		info["memTotal"] = humanize.Bytes(m.Total)
		info["memAvailable"] = humanize.Bytes(m.Available)
		info["memUsedPercent"] = m.UsedPercent
	} else {
		log.Debugf("memory probe failed: %v", err)
	}
	return info
}
