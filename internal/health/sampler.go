package health

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Sampler reports the current CPU, memory, and disk utilization as
// percentages in [0,100]. The default implementation reads /proc and the
// working volume's statfs, matching the teacher's own directness about
// reaching for OS-level facts rather than a monitoring library (no example
// repo in the corpus imports one).
type Sampler interface {
	Sample(workingDir string) (cpuPct, memPct, diskPct float64, err error)
}

// ProcSampler implements Sampler against Linux's /proc filesystem.
type ProcSampler struct {
	prevIdle  uint64
	prevTotal uint64
	hasPrev   bool
}

// NewProcSampler creates a ProcSampler with no prior /proc/stat reading, so
// its first Sample call reports 0% CPU until a second call has a delta to
// compute against.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{}
}

// Sample reads /proc/stat for CPU, /proc/meminfo for memory, and statfs(2)
// on workingDir for disk utilization.
func (p *ProcSampler) Sample(workingDir string) (cpuPct, memPct, diskPct float64, err error) {
	cpuPct, err = p.sampleCPU()
	if err != nil {
		return 0, 0, 0, err
	}
	memPct, err = sampleMemory()
	if err != nil {
		return 0, 0, 0, err
	}
	diskPct, err = sampleDisk(workingDir)
	if err != nil {
		return 0, 0, 0, err
	}
	return cpuPct, memPct, diskPct, nil
}

// sampleCPU reads the aggregate "cpu" line of /proc/stat and returns the
// percentage of non-idle time since the previous call.
func (p *ProcSampler) sampleCPU() (float64, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, scanner.Err()
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, nil
	}

	var total, idle uint64
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		total += v
		// Field index 3 (0-based among the numeric fields) is "idle".
		if i == 3 {
			idle = v
		}
	}

	if !p.hasPrev {
		p.prevIdle, p.prevTotal = idle, total
		p.hasPrev = true
		return 0, nil
	}

	deltaTotal := total - p.prevTotal
	deltaIdle := idle - p.prevIdle
	p.prevIdle, p.prevTotal = idle, total

	if deltaTotal == 0 {
		return 0, nil
	}
	busy := float64(deltaTotal-deltaIdle) / float64(deltaTotal)
	return clamp01(busy) * 100, nil
}

// sampleMemory reads MemTotal/MemAvailable from /proc/meminfo.
func sampleMemory() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoValue(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseMeminfoValue(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	used := float64(total-available) / float64(total)
	return clamp01(used) * 100, nil
}

func parseMeminfoValue(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}

// sampleDisk reports the utilization of the filesystem backing dir.
func sampleDisk(dir string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	used := float64(total-free) / float64(total)
	return clamp01(used) * 100, nil
}
