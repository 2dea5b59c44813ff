package sections

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

// SystemInfo holds host-wide resource usage.
type SystemInfo struct {
	CPUModel   string  `json:"cpu_model" yaml:"cpu_model"`
	CPUCores   int     `json:"cpu_cores" yaml:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads" yaml:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`

	MemTotalMB float64 `json:"mem_total_mb" yaml:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb" yaml:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent" yaml:"mem_percent"`

	DiskTotalGB float64 `json:"disk_total_gb" yaml:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb" yaml:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent" yaml:"disk_percent"`

	LoadAvg1  float64 `json:"load_avg_1" yaml:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5" yaml:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15" yaml:"load_avg_15"`

	GPUs []string `json:"gpus,omitempty" yaml:"gpus,omitempty"`

	Collected time.Time `json:"collected" yaml:"collected"`
}

// SystemCollector gathers host statistics. Hardware inventory is read once
// and cached. Refresh publishes a snapshot that the System section prints,
// so a crash report never calls into gopsutil or ghw.
type SystemCollector struct {
	latest atomic.Pointer[SystemInfo]

	mu           sync.Mutex
	lastCPUTotal float64
	lastCPUIdle  float64

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
	gpus          []string
}

// NewSystemCollector creates a collector.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{}
}

// Refresh collects host statistics and publishes them for the System
// section. The first call also reads the hardware inventory. CPU usage is
// measured between consecutive calls.
func (c *SystemCollector) Refresh() SystemInfo {
	info := c.Collect()
	c.latest.Store(&info)
	return info
}

// Latest returns the snapshot published by the last Refresh.
func (c *SystemCollector) Latest() (SystemInfo, bool) {
	p := c.latest.Load()
	if p == nil {
		return SystemInfo{}, false
	}
	return *p, true
}

// Collect gathers all host statistics without publishing them.
func (c *SystemCollector) Collect() SystemInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := SystemInfo{Collected: time.Now()}
	c.collectHardware(&info)
	collectMemory(&info)
	c.collectCPU(&info)
	collectDisk(&info)
	collectLoad(&info)
	return info
}

func (c *SystemCollector) collectHardware(info *SystemInfo) {
	if !c.infoCollected {
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.Counts(false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.Counts(true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
		c.gpus = queryGPUs()
		c.infoCollected = true
	}
	info.CPUModel = c.cpuModel
	info.CPUCores = c.cpuCores
	info.CPUThreads = c.cpuThreads
	info.GPUs = c.gpus
}

func (c *SystemCollector) collectCPU(info *SystemInfo) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		totalDelta := total - c.lastCPUTotal
		idleDelta := idle - c.lastCPUIdle
		if totalDelta > 0 {
			info.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}
	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func collectMemory(info *SystemInfo) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	info.MemTotalMB = float64(vm.Total) / 1024 / 1024
	info.MemUsedMB = float64(vm.Used) / 1024 / 1024
	info.MemPercent = vm.UsedPercent
}

func collectDisk(info *SystemInfo) {
	usage, err := disk.Usage(rootDiskPath())
	if err != nil {
		return
	}
	info.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	info.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	info.DiskPercent = usage.UsedPercent
}

func collectLoad(info *SystemInfo) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	info.LoadAvg1 = avg.Load1
	info.LoadAvg5 = avg.Load5
	info.LoadAvg15 = avg.Load15
}

// queryGPUs lists graphics cards through ghw. Vendor tools are not spawned:
// the collector may run inside a crashing process.
func queryGPUs() []string {
	info, err := ghw.GPU()
	if err != nil || info == nil || len(info.GraphicsCards) == 0 {
		return nil
	}

	gpus := make([]string, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if d := card.DeviceInfo; d != nil {
			switch {
			case d.Vendor != nil && d.Product != nil:
				name = d.Vendor.Name + " " + d.Product.Name
			case d.Product != nil:
				name = d.Product.Name
			case d.Vendor != nil:
				name = d.Vendor.Name
			}
		}
		if name = strings.TrimSpace(name); name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, name)
	}
	return gpus
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}

// System prints the collector's last published snapshot. The second attempt
// prints memory and load only. Without a collector, or before the first
// Refresh, the section reports itself unavailable.
func System(c *SystemCollector) diagnostics.Section {
	sc := &scratch{}
	return diagnostics.NewSection(NameSystem, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		if c == nil {
			unavailable(sink, "System", "no collector")
			return nil
		}
		p := c.latest.Load()
		if p == nil {
			unavailable(sink, "System", "not collected yet")
			return nil
		}
		begin(sink, "System")
		defer end(sink)
		writeSystem(sink, sc, p, attempt == 1)
		return nil
	})
}

func writeSystem(sink diagnostics.Sink, sc *scratch, info *SystemInfo, full bool) {
	field(sink, "collected")
	sc.time(sink, info.Collected, time.RFC3339)
	sink.Newline()

	if full {
		field(sink, "cpu")
		sink.String(info.CPUModel)
		sink.String(" (")
		sink.Signed(int64(info.CPUCores))
		sink.String(" cores, ")
		sink.Signed(int64(info.CPUThreads))
		sink.String(" threads) ")
		sc.percent(sink, info.CPUPercent)
		sink.Newline()
	}

	field(sink, "memory")
	sc.float(sink, info.MemUsedMB, 1)
	sink.String(" / ")
	sc.float(sink, info.MemTotalMB, 1)
	sink.String(" MB ")
	sc.percent(sink, info.MemPercent)
	sink.Newline()

	if full {
		field(sink, "disk")
		sc.float(sink, info.DiskUsedGB, 1)
		sink.String(" / ")
		sc.float(sink, info.DiskTotalGB, 1)
		sink.String(" GB ")
		sc.percent(sink, info.DiskPercent)
		sink.Newline()
	}

	field(sink, "load")
	sc.float(sink, info.LoadAvg1, 2)
	sink.String(" ")
	sc.float(sink, info.LoadAvg5, 2)
	sink.String(" ")
	sc.float(sink, info.LoadAvg15, 2)
	sink.Newline()

	if full {
		for _, gpu := range info.GPUs {
			field(sink, "gpu")
			sink.Line(gpu)
		}
	}
}
