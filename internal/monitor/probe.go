package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Probe — источник ресурсных метрик хоста. В тестах подменяется фейком.
type Probe interface {
	Usage(ctx context.Context) domain.ResourceUsage
}

// HostProbe снимает CPU/память/диск через gopsutil.
// Контракт: отказ одного замера не срывает остальные — недоступное поле
// остается нулем, ошибка уходит в лог. Семплер всегда получает срез.
type HostProbe struct {
	diskPath string
	logger   *zap.Logger
}

func NewHostProbe(logger *zap.Logger) *HostProbe {
	return &HostProbe{
		diskPath: "/",
		logger:   logger.Named("probe"),
	}
}

func (p *HostProbe) Usage(ctx context.Context) domain.ResourceUsage {
	var u domain.ResourceUsage

	// Короткое окно выборки: точность heartbeat-уровня, не профилировщик
	cpuPercent, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		p.logger.Warn("cpu sample failed", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		u.CPUPercent = cpuPercent[0]
	}

	vMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		p.logger.Warn("memory sample failed", zap.Error(err))
	} else {
		u.MemoryPercent = vMem.UsedPercent
	}

	dUsage, err := disk.UsageWithContext(ctx, p.diskPath)
	if err != nil {
		// Windows-окружение: корня "/" нет, пробуем системный диск
		dUsage, err = disk.UsageWithContext(ctx, "C:")
	}
	if err != nil {
		p.logger.Warn("disk sample failed", zap.Error(err))
	} else {
		u.DiskPercent = dUsage.UsedPercent
	}

	return u
}
