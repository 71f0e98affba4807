// Package ps reports the health of the host the scanner runs on.
package ps

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"product-scanner/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("ps")
}

func CPUStatus() (CPU, error) {
	list, err := cpu.Percent(time.Millisecond*50, false)
	if err != nil {
		return CPU{}, err
	}
	if len(list) == 0 {
		return CPU{}, nil
	}

	return CPU{
		Percent: list[0],
	}, nil
}

func MemoryStatus() (Memory, error) {
	memory, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	swapMemory, err := mem.SwapMemory()
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		Total:       memory.Total,
		Used:        memory.Used,
		UsedPercent: memory.UsedPercent,

		SwapTotal:       swapMemory.Total,
		SwapUsed:        swapMemory.Used,
		SwapUsedPercent: swapMemory.UsedPercent,
	}, nil
}

func DiskStatus(path string) (Disk, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return Disk{}, err
	}

	return Disk{
		Path:        path,
		Used:        humanize.IBytes(usage.Used),
		Total:       humanize.IBytes(usage.Total),
		UsedPercent: usage.UsedPercent,
	}, nil
}

func DirDiskUsage(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return size, nil
}

// Collect gathers everything Status holds. Parts that can not be read are
// logged and left zero.
func Collect(dir, ntpServer string) Status {
	var st Status
	var err error
	if st.CPU, err = CPUStatus(); err != nil {
		logger.Warnf("cpu status: %s", err)
	}
	if st.Memory, err = MemoryStatus(); err != nil {
		logger.Warnf("memory status: %s", err)
	}
	if st.Disk, err = DiskStatus(dir); err != nil {
		logger.Warnf("disk status of %s: %s", dir, err)
	}
	if size, err := DirDiskUsage(dir); err != nil {
		logger.Warnf("usage of %s: %s", dir, err)
	} else {
		st.Artifacts = humanize.IBytes(uint64(size))
	}
	if ntpServer != "" {
		if offset, err := ClockOffset(ntpServer); err != nil {
			logger.Warnf("clock offset from %s: %s", ntpServer, err)
		} else {
			st.ClockOffset = offset.String()
		}
	}

	return st
}

type Status struct {
	CPU    CPU    `json:"cpu"`
	Memory Memory `json:"memory"`
	Disk   Disk   `json:"disk"`
	// Artifacts is the size of the artifact directory.
	Artifacts   string `json:"artifacts"`
	ClockOffset string `json:"clockOffset,omitempty"`
}

type CPU struct {
	Percent float64 `json:"percent"`
}

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`

	SwapTotal       uint64  `json:"swapTotal"`
	SwapUsed        uint64  `json:"swapUsed"`
	SwapUsedPercent float64 `json:"swapUsedPercent"`
}

type Disk struct {
	Path        string  `json:"path"`
	Used        string  `json:"used"`
	Total       string  `json:"total"`
	UsedPercent float64 `json:"usedPercent"`
}
