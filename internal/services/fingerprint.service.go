package services

import (
	"autoservice/internal/models"
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const GB = 1024 * 1024 * 1024

// FingerprintService collects the machine context and caches it for ttl.
// Hardware rarely changes, so the default ttl is long.
type FingerprintService struct {
	mu        sync.RWMutex
	machine   *models.MachineContext
	fetchedAt time.Time
	ttl       time.Duration
	collect   func(ctx context.Context) (models.MachineContext, error)
}

func NewFingerprintService(ttl time.Duration) *FingerprintService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &FingerprintService{ttl: ttl, collect: CollectMachine}
}

// isCacheValid checks if cache is still valid
func (s *FingerprintService) isCacheValid() bool {
	return s.machine != nil && time.Since(s.fetchedAt) < s.ttl
}

// Machine returns cached machine context if valid, otherwise collects fresh
func (s *FingerprintService) Machine(ctx context.Context) (models.MachineContext, error) {
	s.mu.RLock()
	if s.isCacheValid() {
		defer s.mu.RUnlock()
		return *s.machine, nil
	}
	s.mu.RUnlock()

	mc, err := s.collect(ctx)
	if err != nil {
		return models.MachineContext{}, err
	}

	s.mu.Lock()
	s.machine = &mc
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return mc, nil
}

func (s *FingerprintService) Fingerprint(ctx context.Context) (models.PcFingerprint, error) {
	mc, err := s.Machine(ctx)
	if err != nil {
		return models.PcFingerprint{}, err
	}
	return mc.Fingerprint, nil
}

// CollectMachine reads host information and the hardware feature vector
func CollectMachine(ctx context.Context) (models.MachineContext, error) {
	var mc models.MachineContext

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		slog.WarnContext(ctx, "host info unavailable", "error", err)
	} else {
		mc.Host = models.HostInfo{
			Hostname:        info.Hostname,
			OS:              info.OS,
			Platform:        info.Platform,
			PlatformVersion: info.PlatformVersion,
			KernelArch:      info.KernelArch,
		}
	}

	cores, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return mc, fmt.Errorf("cpu core count: %w", err)
	}
	threads, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		slog.WarnContext(ctx, "cpu thread count unavailable", "error", err)
		threads = runtime.NumCPU()
	}
	fp := models.PcFingerprint{
		CPUCores:   float64(cores),
		CPUThreads: float64(threads),
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		fp.CPUMHz = infos[0].Mhz
		mc.Host.CPUModel = infos[0].ModelName
	} else if err != nil {
		slog.WarnContext(ctx, "cpu info unavailable", "error", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return mc, fmt.Errorf("memory: %w", err)
	}
	fp.RAMGB = math.Round(float64(vm.Total)/GB*10) / 10

	ssd, gpu := detectHardware(ctx)
	if ssd {
		fp.DiskSSD = 1
	}
	if gpu {
		fp.GPUPresent = 1
	}
	mc.Fingerprint = fp
	return mc, nil
}
